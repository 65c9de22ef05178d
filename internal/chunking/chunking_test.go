package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgruene/ARANDU-PUB/internal/metadata"
)

func texts(pieces []Piece) []string {
	if len(pieces) == 0 {
		return nil
	}
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = p.Text
	}
	return out
}

func TestSplit(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name          string
		text          string
		size, overlap int
		want          []string
	}{
		{"example", "ABCDEFGHIJ", 4, 1, []string{"ABCD", "DEFG", "GHIJ"}},
		{"no overlap", "ABCDEFGHIJ", 5, 0, []string{"ABCDE", "FGHIJ"}},
		{"shorter than size", "ABC", 10, 2, []string{"ABC"}},
		{"runes not bytes", "äöüßäöü", 3, 1, []string{"äöü", "üßä", "äöü"}},
		{"empty", "", 4, 1, nil},
		{"size zero keeps whole text", "ABC", 0, 5, []string{"ABC"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Split(tc.text, tc.size, tc.overlap)
			require.NoError(t, err)
			assert.Equal(t, tc.want, texts(got))
			for i, p := range got {
				assert.Equal(t, i, p.Index)
			}
		})
	}
}

func TestSplit_RejectsBadOverlap(t *testing.T) {
	t.Parallel()
	for _, ov := range []int{4, 5, -1} {
		_, err := Split("ABCDEFGHIJ", 4, ov)
		require.ErrorIs(t, err, ErrInvalidParams, "overlap %d", ov)
	}
}

// Every rune of the input is covered and consecutive pieces share exactly
// overlap runes.
func TestSplit_Coverage(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("Lorem ipsum dolor sit amet. ", 50)
	const size, overlap = 97, 13

	pieces, err := Split(text, size, overlap)
	require.NoError(t, err)

	var rebuilt []rune
	for i, p := range pieces {
		r := []rune(p.Text)
		if i == 0 {
			rebuilt = append(rebuilt, r...)
			continue
		}
		prev := []rune(pieces[i-1].Text)
		assert.Equal(t, string(prev[len(prev)-overlap:]), string(r[:overlap]))
		rebuilt = append(rebuilt, r[overlap:]...)
	}
	assert.Equal(t, text, string(rebuilt))
}

func TestGroupPieces(t *testing.T) {
	t.Parallel()
	pieces := []Piece{{"a", 0}, {"b", 1}, {"c", 2}, {"d", 3}, {"e", 4}}

	got := GroupPieces(pieces, 3, 1)
	require.Len(t, got, 2)
	assert.Equal(t, []int{0, 1, 2}, got[0].ChildIndices)
	assert.Equal(t, []int{2, 3, 4}, got[1].ChildIndices)
	assert.Equal(t, "a b c", got[0].Text)
	assert.Equal(t, 1, got[1].ParentIndex)

	all := GroupPieces(pieces, 0, 0)
	require.Len(t, all, 1)
	assert.Equal(t, "a b c d e", all[0].Text)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, all[0].ChildIndices)

	// overlap >= size still advances by one
	slow := GroupPieces(pieces[:3], 2, 5)
	assert.Len(t, slow, 2)

	assert.Nil(t, GroupPieces(nil, 3, 1))
}

func TestGroupPieces_SkipsBlankWindows(t *testing.T) {
	t.Parallel()
	pieces := []Piece{{" ", 0}, {"", 1}, {"x", 2}}
	got := GroupPieces(pieces, 2, 0)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].ParentIndex)
	assert.Equal(t, []int{2}, got[0].ChildIndices)
}

// Parent child indices always refer to existing children.
func TestParents_IndexClosure(t *testing.T) {
	t.Parallel()
	b := Builder{DocID: "doc1", SourceFile: "a.pdf", Fields: metadata.NewFields()}
	children, err := b.Children(strings.Repeat("Text für die Arbeit. ", 40), 50, 10)
	require.NoError(t, err)
	children = FilterMinLen(AlignAndPrune(children, nil), 20, nil)

	known := map[int]bool{}
	for _, c := range children {
		known[c.Index] = true
	}
	parents := b.Parents(children, 3, 1)
	require.NotEmpty(t, parents)
	for i, p := range parents {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, ParentID("doc1", i), p.ID)
		for _, ci := range p.ChildIndices {
			assert.True(t, known[ci], "parent %d references unknown child %d", i, ci)
		}
	}
}

func TestBuilderMetadata(t *testing.T) {
	t.Parallel()
	f := metadata.NewFields()
	f[metadata.StudentName] = "Max Mustermann"
	f[metadata.WorkType] = metadata.WorkBachelor
	b := Builder{DocID: "d", SourceFile: "arbeit.pdf", Fields: f}

	children, err := b.Children("0123456789abcdefghijklmnopqrstuvwxyz", 20, 5)
	require.NoError(t, err)
	require.Len(t, children, 3)
	c := children[1]
	assert.Equal(t, "d_c_0001", c.ID)
	assert.Equal(t, LevelChild, c.Metadata["level"])
	assert.Equal(t, 1, c.Metadata["chunk_index"])
	assert.Equal(t, "d_c_0001", c.Metadata["chunk_id"])
	assert.Equal(t, "Max Mustermann", c.Metadata[metadata.StudentName])
	assert.Equal(t, "arbeit.pdf", c.Metadata["source_file"])

	parents := b.Parents(children, 2, 0)
	require.Len(t, parents, 2)
	p := parents[1]
	assert.Equal(t, LevelParent, p.Metadata["level"])
	assert.Equal(t, "[2]", p.Metadata["child_indices_str"])
	assert.Equal(t, 1, p.Metadata["children_count"])
	assert.Equal(t, metadata.WorkBachelor, p.Metadata[metadata.WorkType])
}

func TestAlignAndPrune(t *testing.T) {
	t.Parallel()
	in := []Child{
		{ID: "d_c_0000", Text: "kept", Index: 0, Metadata: map[string]any{"chunk_index": 0}},
		{ID: "d_c_0001", Text: "   "},
		{ID: "", Text: "no id"},
		{ID: "d_c_0007", Text: "repaired from id"},
		{ID: "custom", Text: "repaired from position", Metadata: map[string]any{"chunk_index": nil}},
	}
	got := AlignAndPrune(in, nil)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].Metadata["chunk_index"])
	assert.Equal(t, 7, got[1].Metadata["chunk_index"])
	assert.Equal(t, 7, got[1].Index)
	assert.Equal(t, 4, got[2].Metadata["chunk_index"])
}

func TestFilterMinLen(t *testing.T) {
	t.Parallel()
	in := []Child{{ID: "a", Text: "  kurz  "}, {ID: "b", Text: strings.Repeat("ä", 20)}}
	got := FilterMinLen(in, 20, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestParents_FallbackToSingleGroup(t *testing.T) {
	t.Parallel()
	b := Builder{DocID: "d"}
	// A single blank-padded child still forms one parent.
	got := b.Parents([]Child{{ID: "d_c_0000", Text: " inhalt ", Index: 0}}, 3, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "inhalt", got[0].Text)

	assert.Empty(t, b.Parents(nil, 3, 1))
}
