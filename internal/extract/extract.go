// Package extract turns raw document bytes into page-level text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Backend names accepted by New.
const (
	BackendPDF     = "pdf"
	BackendDocconv = "docconv"
)

var (
	// ErrUnreadable is returned when the bytes cannot be parsed as a document.
	ErrUnreadable = errors.New("extract: unreadable document")
	// ErrNoText is returned when a document parses but carries no text, as
	// with scanned or image-only PDFs.
	ErrNoText = errors.New("extract: document has no extractable text")
)

// PageText is the text of a document, page by page.
type PageText struct {
	Pages []string
	// Full is Pages joined with "\n".
	Full string
}

// First returns the text of the first page, or "" for an empty document.
func (p PageText) First() string {
	if len(p.Pages) == 0 {
		return ""
	}
	return p.Pages[0]
}

// TextExtractor extracts page text from document bytes.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (PageText, error)
}

// New returns the extractor for backend.
func New(backend string, log *slog.Logger) (TextExtractor, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	switch backend {
	case BackendPDF, "":
		return &PDFExtractor{log: log}, nil
	case BackendDocconv:
		return &DocconvExtractor{log: log}, nil
	default:
		return nil, fmt.Errorf("extract: unknown backend %q", backend)
	}
}

// pageSource abstracts a parsed document so page collection can be tested
// without a real PDF.
type pageSource interface {
	NumPage() int
	PageText(i int) (string, error)
}

var blankRun = regexp.MustCompile(`[ \t]+`)

func normalizeSpaces(s string) string {
	return strings.TrimSpace(blankRun.ReplaceAllString(s, " "))
}

// collect reads every page of src. Pages that fail to extract become empty
// strings so page numbering is preserved.
func collect(ctx context.Context, src pageSource, log *slog.Logger) (PageText, error) {
	n := src.NumPage()
	pages := make([]string, 0, n)
	nonEmpty := 0
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return PageText{}, err
		}
		text, err := src.PageText(i)
		if err != nil {
			log.Warn("page extraction failed", slog.Int("page", i), slog.String("error", err.Error()))
			text = ""
		}
		text = normalizeSpaces(text)
		if text != "" {
			nonEmpty++
		}
		pages = append(pages, text)
	}
	if nonEmpty == 0 {
		return PageText{}, ErrNoText
	}
	log.Debug("text extracted", slog.Int("pages", n), slog.Int("pages_with_text", nonEmpty))
	return PageText{Pages: pages, Full: strings.Join(pages, "\n")}, nil
}
