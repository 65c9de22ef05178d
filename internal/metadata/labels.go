package metadata

import (
	"fmt"
	"regexp"
	"strings"
)

// Character classes shared by every label pattern. ws tolerates non-breaking
// spaces, sep covers the separator glyphs seen on title pages, hyp the hyphen
// variants inside abbreviations like "Matr.-Nr.".
const (
	ws  = `[\s\x{00A0}]`
	sep = `[:：\-–—]`
	hyp = `[-\x{2010}\x{2011}]`
)

// FieldLabels pairs a field with the label patterns that announce it.
// Patterns are regular expression fragments matched case-insensitively.
type FieldLabels struct {
	Field    string
	Patterns []string
}

// LabelSet is an ordered label dictionary. Order matters: when a line could
// be read as more than one label, the earlier field wins.
type LabelSet []FieldLabels

// DefaultLabels holds the German and English label variants found on thesis
// title pages.
var DefaultLabels = LabelSet{
	{StudyProgram, []string{`(?:im` + ws + `+)studiengang`, `studiengang`, `degree` + ws + `*program`, `course` + ws + `*of` + ws + `*study`}},
	{MatriculationNumber, []string{
		`matrikel(?:nummer|` + ws + `nr\.?)`,
		`matr(?:\.|ikel)?` + ws + `?(?:` + hyp + `)?` + ws + `?nr\.?`,
		`matrikelnr\.?`, `matrikel`, `matriculation` + ws + `*no\.?`,
	}},
	{SubmissionDate, []string{`abgabedatum`, `eingereicht` + ws + `am`, `datum` + ws + `der` + ws + `abgabe`, `date`}},
	{ExaminerFirst, []string{`erstprüfer`, `1\.` + ws + `prüfer`, `erstgutachter`, `erstreferent`, `referent`, `first` + ws + `*supervisor`}},
	{ExaminerSecond, []string{`zweitprüfer`, `2\.` + ws + `prüfer`, `zweitgutachter`, `korreferent`, `2\.` + ws + `referent`, `second` + ws + `*supervisor`}},
	{ThesisTitle, []string{`thema`, `titel`, `title`}},
	{StudentName, []string{`vorgelegt` + ws + `von`, `eingereicht` + ws + `von`, `autor`, `kandidat`, `name`, `author`}},
}

// Merge returns a copy of s with extra patterns appended per field. Fields
// unknown to s are appended at the end. New languages are added this way.
func (s LabelSet) Merge(extra LabelSet) LabelSet {
	out := make(LabelSet, len(s))
	for i, fl := range s {
		out[i] = FieldLabels{Field: fl.Field, Patterns: append([]string(nil), fl.Patterns...)}
	}
	for _, e := range extra {
		found := false
		for i := range out {
			if out[i].Field == e.Field {
				out[i].Patterns = append(out[i].Patterns, e.Patterns...)
				found = true
				break
			}
		}
		if !found {
			out = append(out, FieldLabels{Field: e.Field, Patterns: append([]string(nil), e.Patterns...)})
		}
	}
	return out
}

// labelMatcher holds the compiled forms of a LabelSet.
type labelMatcher struct {
	order []string
	// whole matches "label [sep] value?" anchored at line start; val may be empty.
	whole map[string]*regexp.Regexp
	// inline holds the three same-line layouts per field.
	inline map[string][]*regexp.Regexp
	// starts detects any label at the start of a line.
	starts []*regexp.Regexp
}

func compileLabels(set LabelSet) (*labelMatcher, error) {
	m := &labelMatcher{
		whole:  make(map[string]*regexp.Regexp, len(set)),
		inline: make(map[string][]*regexp.Regexp, len(set)),
	}
	for _, fl := range set {
		alt := strings.Join(fl.Patterns, "|")
		whole, err := regexp.Compile(`(?i)^` + ws + `*(?:` + alt + `)` + ws + `*(?:` + sep + ws + `*)?(?P<val>.*?)` + ws + `*$`)
		if err != nil {
			return nil, fmt.Errorf("metadata: labels for %s: %w", fl.Field, err)
		}
		bounded := wordEnds(fl.Patterns)
		inline := make([]*regexp.Regexp, 0, 3)
		for _, p := range []string{
			`(?i)^` + ws + `*(?:` + bounded + `)` + ws + `*(?:` + sep + ws + `*)?(?P<val>.+)$`,
			`(?i)^` + ws + `*(?:` + bounded + `)` + ws + `{3,}(?P<val>.+)$`,
			`(?i)^` + ws + `*(?P<val>.+?)` + ws + `{3,}(?:` + alt + `)` + ws + `*$`,
		} {
			rx, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("metadata: inline labels for %s: %w", fl.Field, err)
			}
			inline = append(inline, rx)
		}
		for _, p := range fl.Patterns {
			rx, err := regexp.Compile(`(?i)^` + ws + `*(?:` + p + `)\b`)
			if err != nil {
				return nil, fmt.Errorf("metadata: label %q: %w", p, err)
			}
			m.starts = append(m.starts, rx)
		}
		m.order = append(m.order, fl.Field)
		m.whole[fl.Field] = whole
		m.inline[fl.Field] = inline
	}
	return m, nil
}

// wordEnds joins patterns into an alternation where every pattern ending in a
// letter must also end a word, so "name" does not match "Namensgebung".
func wordEnds(patterns []string) string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p
		if p == "" {
			continue
		}
		if c := p[len(p)-1]; c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			out[i] = `(?:` + p + `)\b`
		}
	}
	return strings.Join(out, "|")
}

// looksLikeLabel reports whether line starts with any known label.
func (m *labelMatcher) looksLikeLabel(line string) bool {
	s := strings.ToLower(strings.TrimSpace(line))
	for _, rx := range m.starts {
		if rx.MatchString(s) {
			return true
		}
	}
	return false
}

// pureLabel returns the field of a line that holds only a label and no
// inline value.
func (m *labelMatcher) pureLabel(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if s == "" {
		return "", false
	}
	for _, f := range m.order {
		sm := m.whole[f].FindStringSubmatch(s)
		if sm == nil {
			continue
		}
		if strings.TrimSpace(sm[m.whole[f].SubexpIndex("val")]) == "" {
			return f, true
		}
	}
	return "", false
}

// sameLine returns the first inline value for field across lines.
func (m *labelMatcher) sameLine(lines []string, field string) string {
	for _, ln := range lines {
		for _, rx := range m.inline[field] {
			sm := rx.FindStringSubmatch(ln)
			if sm == nil {
				continue
			}
			if v := TrimValue(sm[rx.SubexpIndex("val")]); v != "" {
				return v
			}
		}
	}
	return ""
}
