package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	multiSpace   = regexp.MustCompile(`\s{2,}`)
	blankRun     = regexp.MustCompile(`[ \t]+`)
	whitespace   = regexp.MustCompile(`\s+`)
	numericDate  = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{2,4})\b`)
	namedDate    = regexp.MustCompile(`(?i)\b(\d{1,2})\.\s*(Januar|Februar|März|Maerz|April|Mai|Juni|Juli|August|September|Oktober|November|Dezember)\s*(\d{4})\b`)
	germanMonths = map[string]time.Month{
		"januar": time.January, "februar": time.February, "märz": time.March, "maerz": time.March,
		"april": time.April, "mai": time.May, "juni": time.June, "juli": time.July,
		"august": time.August, "september": time.September, "oktober": time.October,
		"november": time.November, "dezember": time.December,
	}
	// smallWords stay lower-case inside person names.
	smallWords = map[string]bool{
		"von": true, "van": true, "de": true, "der": true, "den": true, "zu": true,
		"zur": true, "zum": true, "und": true, "di": true, "da": true,
	}
)

// TrimValue strips surrounding whitespace, collapses inner whitespace runs and
// drops trailing punctuation left over from label separators.
func TrimValue(v string) string {
	v = strings.TrimSpace(strings.ReplaceAll(v, "\u00a0", " "))
	v = multiSpace.ReplaceAllString(v, " ")
	return strings.TrimRight(v, " \t;,:.")
}

// normalizeSpaces collapses blank runs and trims.
func normalizeSpaces(s string) string {
	return strings.TrimSpace(blankRun.ReplaceAllString(s, " "))
}

// ISODate finds the first German date in s and returns it as YYYY-MM-DD.
// Numeric dates (DD.MM.YY or DD.MM.YYYY) are tried before named months
// (DD. März YYYY). Two-digit years below 50 map to the 2000s, the rest to
// the 1900s. An impossible calendar date yields "".
func ISODate(s string) string {
	if s == "" {
		return ""
	}
	s = normalizeSpaces(s)

	if m := numericDate.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		mon, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if y < 100 {
			if y < 50 {
				y += 2000
			} else {
				y += 1900
			}
		}
		return formatDate(y, time.Month(mon), d)
	}

	if m := namedDate.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[3])
		mon, ok := germanMonths[strings.ToLower(m[2])]
		if !ok {
			return ""
		}
		return formatDate(y, mon, d)
	}
	return ""
}

// formatDate rejects dates that time.Date would silently normalise.
func formatDate(y int, m time.Month, d int) string {
	if m < time.January || m > time.December || d < 1 {
		return ""
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || t.Month() != m || t.Day() != d {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

// NormalizePersonName turns "Last, First" into "First Last", lower-cases
// nobiliary particles, keeps short all-caps initials, normalises "Prof" and
// "Dr" prefixes and title-cases the rest. Only whole academic-title tokens are
// rewritten so surnames such as "Drechsler" survive.
func NormalizePersonName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return n
	}
	if strings.Contains(n, ",") {
		parts := strings.Split(n, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
			n = parts[1] + " " + parts[0]
		}
	}

	toks := whitespace.Split(n, -1)
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		if tok == "" {
			continue
		}
		out = append(out, nameToken(tok))
	}
	return strings.Join(out, " ")
}

func nameToken(tok string) string {
	low := strings.ToLower(tok)
	switch {
	case smallWords[low]:
		return low
	case len([]rune(tok)) <= 3 && isUpper(tok):
		return tok
	case low == "prof" || low == "professor" || strings.HasPrefix(low, "prof."):
		return "Prof."
	case low == "dr" || strings.HasPrefix(low, "dr."):
		return "Dr."
	}
	r := []rune(low)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// isUpper reports whether s has at least one cased rune and no lower-case ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

// digitsOnly keeps the ASCII digits of s.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
