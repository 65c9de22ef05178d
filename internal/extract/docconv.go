package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv"
)

// firstPageLines approximates page one when the converter emits no page
// breaks.
const firstPageLines = 60

// DocconvExtractor converts documents through docconv (poppler's pdftotext
// for PDFs). It handles PDFs the in-process parser cannot read but loses
// exact page boundaries when no form feeds are emitted.
type DocconvExtractor struct {
	log *slog.Logger
}

// Extract implements TextExtractor.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte) (PageText, error) {
	if len(data) == 0 {
		return PageText{}, fmt.Errorf("%w: empty input", ErrUnreadable)
	}
	res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", false)
	if err != nil {
		return PageText{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := ctx.Err(); err != nil {
		return PageText{}, err
	}
	return collect(ctx, splitPages(res.Body), e.log)
}

// textPages is a pageSource over already converted text.
type textPages []string

func (p textPages) NumPage() int                   { return len(p) }
func (p textPages) PageText(i int) (string, error) { return p[i-1], nil }

// splitPages splits on form feeds. Without them the leading lines stand in
// for page one and the remainder becomes page two.
func splitPages(body string) textPages {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	if strings.Contains(body, "\f") {
		return textPages(strings.Split(strings.TrimRight(body, "\f\n"), "\f"))
	}
	lines := strings.Split(body, "\n")
	if len(lines) <= firstPageLines {
		return textPages{body}
	}
	return textPages{
		strings.Join(lines[:firstPageLines], "\n"),
		strings.Join(lines[firstPageLines:], "\n"),
	}
}
