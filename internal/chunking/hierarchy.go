package chunking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/mgruene/ARANDU-PUB/internal/metadata"
)

// Level values stored in chunk metadata.
const (
	LevelChild  = "child"
	LevelParent = "parent"
)

// Child is a small retrieval unit. Children are stored without vectors.
type Child struct {
	ID       string
	Text     string
	Index    int
	Metadata map[string]any
}

// Parent groups consecutive children and carries the embedding.
type Parent struct {
	ID           string
	Index        int
	Text         string
	ChildIndices []int
	Metadata     map[string]any
}

// ChildID returns the id of child i of docid.
func ChildID(docid string, i int) string { return fmt.Sprintf("%s_c_%04d", docid, i) }

// ParentID returns the id of parent i of docid.
func ParentID(docid string, i int) string { return fmt.Sprintf("%s_p_%04d", docid, i) }

var childIDSuffix = regexp.MustCompile(`_c_(\d{4})$`)

// Builder produces the child and parent tiers for one document.
type Builder struct {
	DocID      string
	SourceFile string
	Fields     metadata.Fields
	Log        *slog.Logger
}

func (b Builder) log() *slog.Logger {
	if b.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Log
}

func (b Builder) baseMetadata(level string) map[string]any {
	md := make(map[string]any, len(metadata.Required)+4)
	md["level"] = level
	md["docid"] = b.DocID
	for _, k := range metadata.Required {
		md[k] = b.Fields[k]
	}
	md["source_file"] = b.SourceFile
	return md
}

// Children splits text into child chunks carrying the document fields.
func (b Builder) Children(text string, size, overlap int) ([]Child, error) {
	pieces, err := Split(text, size, overlap)
	if err != nil {
		return nil, err
	}
	out := make([]Child, len(pieces))
	for i, p := range pieces {
		id := ChildID(b.DocID, p.Index)
		md := b.baseMetadata(LevelChild)
		md["chunk_index"] = p.Index
		md["chunk_id"] = id
		out[i] = Child{ID: id, Text: p.Text, Index: p.Index, Metadata: md}
	}
	b.log().Info("children built",
		slog.String("docid", b.DocID),
		slog.Int("count", len(out)),
		slog.Int("size", size),
		slog.Int("overlap", overlap),
	)
	return out, nil
}

// AlignAndPrune drops children with blank text or an empty id and makes sure
// every survivor has metadata with a chunk_index. A missing index is read
// from the id's _c_NNNN suffix, else taken from the child's position.
func AlignAndPrune(children []Child, log *slog.Logger) []Child {
	var emptyDoc, emptyID, filled int
	out := make([]Child, 0, len(children))
	for pos, c := range children {
		if strings.TrimSpace(c.Text) == "" {
			emptyDoc++
			continue
		}
		if c.ID == "" {
			emptyID++
			continue
		}
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		if v, ok := c.Metadata["chunk_index"]; !ok || v == nil || v == "" {
			c.Index = inferIndex(c.ID, pos)
			c.Metadata["chunk_index"] = c.Index
			filled++
		}
		out = append(out, c)
	}
	if emptyDoc+emptyID+filled > 0 && log != nil {
		log.Warn("children pruned",
			slog.Int("empty_doc", emptyDoc),
			slog.Int("empty_id", emptyID),
			slog.Int("filled_idx", filled),
			slog.Int("kept", len(out)),
			slog.Int("total_in", len(children)),
		)
	}
	return out
}

func inferIndex(id string, fallback int) int {
	if m := childIDSuffix.FindStringSubmatch(id); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return fallback
}

// FilterMinLen drops children whose trimmed text is shorter than minChars
// runes.
func FilterMinLen(children []Child, minChars int, log *slog.Logger) []Child {
	out := make([]Child, 0, len(children))
	for _, c := range children {
		if len([]rune(strings.TrimSpace(c.Text))) >= minChars {
			out = append(out, c)
		}
	}
	if dropped := len(children) - len(out); dropped > 0 && log != nil {
		log.Info("short chunks dropped",
			slog.Int("total", len(children)),
			slog.Int("kept", len(out)),
			slog.Int("dropped", dropped),
			slog.Int("min_chars", minChars),
		)
	}
	return out
}

// Parents groups children into parent units. When grouping yields nothing it
// retries with a single all-children group.
func (b Builder) Parents(children []Child, groupSize, groupOverlap int) []Parent {
	pieces := make([]Piece, len(children))
	for i, c := range children {
		pieces[i] = Piece{Text: c.Text, Index: c.Index}
	}
	groups := GroupPieces(pieces, groupSize, groupOverlap)
	if len(groups) == 0 {
		groups = GroupPieces(pieces, 0, 0)
	}

	out := make([]Parent, 0, len(groups))
	for _, g := range groups {
		if g.Text == "" {
			continue
		}
		idx, _ := json.Marshal(g.ChildIndices)
		md := b.baseMetadata(LevelParent)
		md["parent_index"] = g.ParentIndex
		md["child_indices_str"] = string(idx)
		md["children_count"] = len(g.ChildIndices)
		out = append(out, Parent{
			ID:           ParentID(b.DocID, g.ParentIndex),
			Index:        g.ParentIndex,
			Text:         g.Text,
			ChildIndices: g.ChildIndices,
			Metadata:     md,
		})
	}
	b.log().Info("parents built",
		slog.String("docid", b.DocID),
		slog.Int("count", len(out)),
		slog.Int("group_size", groupSize),
		slog.Int("overlap", groupOverlap),
	)
	return out
}
