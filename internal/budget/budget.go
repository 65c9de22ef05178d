// Package budget estimates token counts for LLM prompts and trims text to fit
// a context window. The backends use different tokenizers, so estimation uses
// a character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken = 4

	// DefaultMaxContextTokens is the prompt budget used when a model entry
	// does not declare max_tokens. It fits 8k-context models with room left
	// for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token count of msgs, including a
// small per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Truncate cuts s so that Estimate(s) does not exceed maxTokens. The cut is
// made on a rune boundary. A non-positive maxTokens returns s unchanged.
func Truncate(s string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || Estimate(s) <= maxTokens {
		return s, false
	}
	limit := maxTokens * charsPerToken
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// Fit truncates body so that prefix plus body stays within maxTokens. The
// prefix is never cut; if it alone exceeds the budget, body becomes empty.
func Fit(prefix, body string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return body, false
	}
	room := maxTokens - Estimate(prefix)
	if room <= 0 {
		return "", body != ""
	}
	return Truncate(body, room)
}
