package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatten_InnerFillsNilOuter(t *testing.T) {
	t.Parallel()
	final, _, _ := Flatten(map[string]any{
		"metadata":     map[string]any{"student_name": "Doe"},
		"student_name": nil,
	})
	assert.Equal(t, "Doe", final[StudentName])
	for _, k := range Required {
		assert.Contains(t, final, k)
	}
}

func TestFlatten_OuterWinsAndTrims(t *testing.T) {
	t.Parallel()
	final, conf, source := Flatten(map[string]any{
		"metadata": map[string]any{
			"thesis_title": "Inner Title",
			"work_type":    "master",
			"extra":        "kept",
		},
		"thesis_title":    "  Outer Title  ",
		"work_type":       "",
		"confidence":      map[string]any{"thesis_title": 0.75},
		"metadata_source": "regex",
	})

	assert.Equal(t, "Outer Title", final[ThesisTitle])
	assert.Equal(t, "master", final[WorkType])
	assert.Equal(t, "kept", final["extra"])
	assert.NotContains(t, final, "confidence")
	assert.NotContains(t, final, "metadata")
	assert.Equal(t, Confidence{ThesisTitle: 0.75}, conf)
	assert.Equal(t, "regex", source)
}

func TestFlatten_Nil(t *testing.T) {
	t.Parallel()
	final, conf, source := Flatten(nil)
	assert.Len(t, final, len(Required))
	assert.Empty(t, conf)
	assert.Empty(t, source)
	assert.Equal(t, Required, MissingRequired(final))
}

func TestApplyOverrides(t *testing.T) {
	t.Parallel()
	md := map[string]any{StudentName: "Max", ThesisTitle: "Alt"}
	out := ApplyOverrides(md, map[string]any{
		ThesisTitle: " Neu ",
		StudentName: "",
		WorkType:    nil,
		"tags":      []any{},
	})

	assert.Equal(t, "Neu", out[ThesisTitle])
	assert.Equal(t, "Max", out[StudentName])
	assert.NotContains(t, out, WorkType)
	assert.NotContains(t, out, "tags")
	assert.Equal(t, "Alt", md[ThesisTitle], "input must not be mutated")
}

func TestResultMapRoundTrip(t *testing.T) {
	t.Parallel()
	f := NewFields()
	f[StudentName] = "Max Mustermann"
	r := Result{Fields: f, Confidence: Confidence{StudentName: 0.8}, Source: SourceRegex}

	final, conf, source := Flatten(r.Map())
	assert.Equal(t, f, FieldsOf(final))
	assert.Equal(t, Confidence{StudentName: 0.8}, conf)
	assert.Equal(t, SourceRegex, source)
}
