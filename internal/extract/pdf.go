package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads PDFs in-process and keeps the line layout of each page,
// which the metadata heuristics depend on.
type PDFExtractor struct {
	log *slog.Logger
}

// Extract implements TextExtractor.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (pt PageText, err error) {
	if len(data) == 0 {
		return PageText{}, fmt.Errorf("%w: empty input", ErrUnreadable)
	}
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pt, err = PageText{}, fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return PageText{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return collect(ctx, readerSource{r: r}, e.log)
}

type readerSource struct {
	r *pdf.Reader
}

func (s readerSource) NumPage() int { return s.r.NumPage() }

func (s readerSource) PageText(i int) (string, error) {
	page := s.r.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	rows, err := page.GetTextByRow()
	if err != nil || len(rows) == 0 {
		return page.GetPlainText(nil)
	}
	return joinRows(rows), nil
}

// joinRows renders rows top to bottom, one line per row. A space is inserted
// between runs separated by a visible horizontal gap.
func joinRows(rows pdf.Rows) string {
	sorted := make([]*pdf.Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position > sorted[j].Position })

	var b strings.Builder
	for n, row := range sorted {
		if n > 0 {
			b.WriteByte('\n')
		}
		texts := make([]pdf.Text, len(row.Content))
		copy(texts, row.Content)
		sort.SliceStable(texts, func(i, j int) bool { return texts[i].X < texts[j].X })

		prevEnd := 0.0
		for k, t := range texts {
			if k > 0 && t.X-prevEnd > 0.15*t.FontSize && !strings.HasPrefix(t.S, " ") {
				b.WriteByte(' ')
			}
			b.WriteString(t.S)
			prevEnd = t.X + t.W
		}
	}
	return b.String()
}
