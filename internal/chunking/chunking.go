// Package chunking splits document text into fixed-size overlapping child
// chunks and groups consecutive children into larger parent units.
//
// Sizes count Unicode code points, not bytes.
package chunking

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidParams is returned for a chunk overlap outside [0, size).
var ErrInvalidParams = errors.New("chunking: invalid parameters")

// Piece is one window of the input text.
type Piece struct {
	Text  string
	Index int
}

// Split cuts text into windows of size runes where consecutive windows share
// overlap runes. A non-positive size yields the whole text as one piece.
// Empty text yields no pieces.
func Split(text string, size, overlap int) ([]Piece, error) {
	if size <= 0 {
		return []Piece{{Text: text, Index: 0}}, nil
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d with size %d", ErrInvalidParams, overlap, size)
	}

	runes := []rune(text)
	n := len(runes)
	var out []Piece
	for start := 0; start < n; {
		end := min(n, start+size)
		out = append(out, Piece{Text: string(runes[start:end]), Index: len(out)})
		if end == n {
			break
		}
		start = end - overlap
	}
	return out, nil
}

// Group is a parent window over consecutive pieces.
type Group struct {
	ParentIndex  int
	Text         string
	ChildIndices []int
}

// GroupPieces joins windows of groupSize consecutive pieces, advancing by
// groupSize-groupOverlap (at least one). Piece texts are trimmed and joined
// with single spaces; windows without text are skipped. ChildIndices carry
// the pieces' own Index values. A non-positive groupSize puts every piece
// into a single group.
func GroupPieces(pieces []Piece, groupSize, groupOverlap int) []Group {
	if len(pieces) == 0 {
		return nil
	}
	if groupSize <= 0 {
		return []Group{{ParentIndex: 0, Text: joinTexts(pieces), ChildIndices: indices(pieces)}}
	}

	step := max(1, groupSize-groupOverlap)
	n := len(pieces)
	var out []Group
	for start := 0; start < n; start += step {
		end := min(n, start+groupSize)
		window := pieces[start:end]
		if text := joinTexts(window); text != "" {
			out = append(out, Group{ParentIndex: len(out), Text: text, ChildIndices: indices(window)})
		}
		if end == n {
			break
		}
	}
	return out
}

func joinTexts(pieces []Piece) string {
	parts := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func indices(pieces []Piece) []int {
	out := make([]int, len(pieces))
	for i, p := range pieces {
		out[i] = p.Index
	}
	return out
}
