package metadata

import (
	"regexp"
	"strings"
)

// Confidence tiers per strategy.
const (
	confAuthorHead = 0.8
	confMatricHead = 0.85
	confTitleHead  = 0.75
	confInline     = 0.65
	confBlock      = 0.7
	confFreeDate   = 0.7
	confWorkStrong = 0.7
	confWorkWeak   = 0.6
	confLLM        = 0.5
)

// Candidate is a value proposed by a strategy.
type Candidate struct {
	Field      string
	Value      string
	Confidence float64
}

// Strategy is one heuristic in the ordered extraction list. Field is the field
// it targets, or "" for strategies that can fill several fields at once.
type Strategy struct {
	Name  string
	Field string
	Match func(p *page) []Candidate
}

// page is the first-page text split into lines.
type page struct {
	text  string
	lines []string
}

func newPage(text string) *page {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return &page{text: text, lines: strings.Split(text, "\n")}
}

var (
	authorLabel = regexp.MustCompile(`(?i)\b(?:vorgelegt` + ws + `+von|eingereicht` + ws + `+von|author)\b(?:` + sep + `\s*)?(?P<val>.*)$`)
	authorStart = regexp.MustCompile(`(?i)^\s*(?:vorgelegt` + ws + `+von|eingereicht` + ws + `+von|author)\b`)
	// authorStop cuts an author value at the next label word sharing its line.
	authorStop = regexp.MustCompile(`\b(?:Matr\.|Matr\b|Matrikel\w*|Matriculation|Studiengang|Course|Thema|Titel|Title|Abgabe\w*|Date\b|Erstprüfer|Zweitprüfer)`)
	matricLabel = regexp.MustCompile(`(?i)\b(?:Matr\.-?Nr\.|Matrikelnr\.|Matr\.` + ws + `?Nr\.|Matrikel` + ws + `?Nr\.|Matrikelnummer\b|Matriculation` + ws + `?No(?:\.|\b))(?:` + sep + `\s*)?(?P<val>.*)$`)
	titleLabel  = regexp.MustCompile(`(?i)\b(?:Thema|Titel|Title)\b(?:` + sep + `\s*)?(?P<val>.*)$`)
	digitRun    = regexp.MustCompile(`\b(\d{5,12})\b`)
)

// inlineOrder is the order in which the same-line scan visits fields.
var inlineOrder = []string{
	StudyProgram, SubmissionDate, ExaminerFirst, ExaminerSecond,
	StudentName, ThesisTitle, MatriculationNumber,
}

// defaultStrategies builds the extraction pipeline in priority order.
func defaultStrategies(lm *labelMatcher) []Strategy {
	s := []Strategy{
		{Name: "head_author", Field: StudentName, Match: headAuthor},
		{Name: "head_matriculation", Field: MatriculationNumber, Match: headMatriculation},
		{Name: "head_title", Field: ThesisTitle, Match: func(p *page) []Candidate { return headTitle(p, lm) }},
	}
	for _, f := range inlineOrder {
		if _, ok := lm.inline[f]; !ok {
			continue
		}
		field := f
		s = append(s, Strategy{
			Name:  "inline_" + field,
			Field: field,
			Match: func(p *page) []Candidate {
				if v := lm.sameLine(p.lines, field); v != "" {
					return []Candidate{{Field: field, Value: v, Confidence: confInline}}
				}
				return nil
			},
		})
	}
	return append(s,
		Strategy{Name: "block_pairing", Match: func(p *page) []Candidate { return blockPairs(p, lm) }},
		Strategy{Name: "free_date", Field: SubmissionDate, Match: freeDate},
		Strategy{Name: "work_type", Field: WorkType, Match: workType},
	)
}

// nextNonEmpty returns the first non-blank line among the three after start.
func nextNonEmpty(lines []string, start int) string {
	for j := start; j < len(lines) && j < start+3; j++ {
		if s := strings.TrimSpace(lines[j]); s != "" {
			return s
		}
	}
	return ""
}

func submatch(rx *regexp.Regexp, s, name string) (string, bool) {
	m := rx.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[rx.SubexpIndex(name)], true
}

func headAuthor(p *page) []Candidate {
	for i, raw := range p.lines {
		val, ok := submatch(authorLabel, raw, "val")
		if !ok {
			continue
		}
		val = TrimValue(val)
		if val == "" {
			val = nextNonEmpty(p.lines, i+1)
		}
		if loc := authorStop.FindStringIndex(val); loc != nil {
			val = val[:loc[0]]
		}
		toks := strings.Fields(val)
		if len(toks) < 2 {
			continue
		}
		if len(toks) > 4 {
			toks = toks[:4]
		}
		return []Candidate{{Field: StudentName, Value: strings.Join(toks, " "), Confidence: confAuthorHead}}
	}
	return nil
}

func headMatriculation(p *page) []Candidate {
	for i, raw := range p.lines {
		val, ok := submatch(matricLabel, raw, "val")
		if !ok {
			continue
		}
		cand := TrimValue(val)
		if cand == "" {
			cand = nextNonEmpty(p.lines, i+1)
		}
		if m := digitRun.FindStringSubmatch(cand); m != nil {
			return []Candidate{{Field: MatriculationNumber, Value: m[1], Confidence: confMatricHead}}
		}
	}
	return nil
}

// headTitle collects a title that may continue over several lines. It stops
// at two consecutive blank lines, an author line or any other label.
func headTitle(p *page, lm *labelMatcher) []Candidate {
	for i, raw := range p.lines {
		first, ok := submatch(titleLabel, raw, "val")
		if !ok {
			continue
		}
		var parts []string
		if f := TrimValue(first); f != "" {
			parts = append(parts, f)
		}
		blank := 0
		for j := i + 1; j < len(p.lines); j++ {
			s := strings.TrimRight(p.lines[j], " \t\r")
			if strings.TrimSpace(s) == "" {
				blank++
				if blank >= 2 {
					break
				}
				continue
			}
			blank = 0
			if authorStart.MatchString(s) || lm.looksLikeLabel(s) {
				break
			}
			parts = append(parts, strings.TrimSpace(s))
		}
		if cand := TrimValue(strings.Join(parts, " ")); len([]rune(cand)) >= 5 {
			return []Candidate{{Field: ThesisTitle, Value: cand, Confidence: confTitleHead}}
		}
	}
	return nil
}

// blockPairs handles multi-column layouts where a run of label-only lines is
// followed by a run of value lines of the same length.
func blockPairs(p *page, lm *labelMatcher) []Candidate {
	var out []Candidate
	lines := p.lines
	for i := 0; i < len(lines); {
		if strings.TrimSpace(lines[i]) == "" {
			i++
			continue
		}
		if _, ok := lm.pureLabel(lines[i]); !ok {
			i++
			continue
		}

		var keys []string
		j := i
		for ; j < len(lines); j++ {
			k, ok := lm.pureLabel(lines[j])
			if !ok {
				break
			}
			keys = append(keys, k)
		}
		lastLabel := j - 1
		if len(keys) < 2 {
			i++
			continue
		}

		var vals []string
		lastVal := lastLabel
		for k := lastLabel + 1; k < len(lines) && len(vals) < len(keys); k++ {
			c := strings.TrimSpace(lines[k])
			if c != "" && !lm.looksLikeLabel(c) {
				vals = append(vals, c)
				lastVal = k
			}
		}
		if len(vals) != len(keys) {
			i++
			continue
		}
		for n, k := range keys {
			out = append(out, Candidate{Field: k, Value: vals[n], Confidence: confBlock})
		}
		i = max(i, lastVal) + 1
	}
	return out
}

func freeDate(p *page) []Candidate {
	if iso := ISODate(p.text); iso != "" {
		return []Candidate{{Field: SubmissionDate, Value: iso, Confidence: confFreeDate}}
	}
	return nil
}

// workTypeKeywords is checked in order; the first substring hit wins.
var workTypeKeywords = []struct {
	needle, value string
	conf          float64
}{
	{"bachelor", WorkBachelor, confWorkStrong},
	{"master", WorkMaster, confWorkStrong},
	{"seminar", WorkSeminar, confWorkWeak},
	{"praxis", WorkPraxis, confWorkWeak},
	{"projekt", WorkProjekt, confWorkWeak},
}

func workType(p *page) []Candidate {
	t := strings.ToLower(p.text)
	for _, kw := range workTypeKeywords {
		if strings.Contains(t, kw.needle) {
			return []Candidate{{Field: WorkType, Value: kw.value, Confidence: kw.conf}}
		}
	}
	return nil
}
