package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mgruene/ARANDU-PUB/internal/budget"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Fallback asks an LLM for metadata fields the heuristics could not resolve.
type Fallback struct {
	gen       Generator
	maxTokens int
	log       *slog.Logger
}

// NewFallback returns a Fallback over gen. maxTokens bounds the prompt size;
// zero selects budget.DefaultMaxContextTokens.
func NewFallback(gen Generator, maxTokens int, log *slog.Logger) *Fallback {
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Fallback{gen: gen, maxTokens: maxTokens, log: log}
}

// Prompt builds the extraction instruction for the wanted keys followed by
// the page text, truncated to the token budget.
func (f *Fallback) Prompt(pageOne string, wanted []string) string {
	head := "Extrahiere die folgenden Metadaten ausschließlich aus dem Text der Titelseite. " +
		"Gib NUR kompaktes JSON ohne zusätzliche Erklärungen aus. " +
		fmt.Sprintf("Schlüssel: %s.", strings.Join(wanted, ", ")) +
		"\n\nTEXT (unverändert):\n"
	body, cut := budget.Fit(head, pageOne, f.maxTokens)
	if cut {
		f.log.Warn("metadata prompt truncated", slog.Int("max_tokens", f.maxTokens))
	}
	return head + body
}

// Fill requests the missing fields. Only required keys named in missing are
// returned, stringified. Backend errors, empty answers and unparsable JSON
// all produce an empty map.
func (f *Fallback) Fill(ctx context.Context, pageOne string, missing []string) map[string]string {
	want := make(map[string]bool, len(missing))
	for _, k := range missing {
		want[k] = true
	}
	var wanted []string
	for _, k := range Required {
		if want[k] {
			wanted = append(wanted, k)
		}
	}
	if len(wanted) == 0 || f == nil || f.gen == nil {
		return map[string]string{}
	}

	answer, err := f.gen.Generate(ctx, f.Prompt(pageOne, wanted))
	if err != nil {
		f.log.Warn("metadata llm request failed", slog.String("error", err.Error()))
		return map[string]string{}
	}
	out := ParseAnswer(answer, wanted)
	f.log.Debug("metadata llm answer parsed", slog.Int("keys", len(out)))
	return out
}

// ParseAnswer pulls the JSON object spanning the first '{' to the last '}'
// out of answer and returns the wanted keys as strings. Null values are
// skipped.
func ParseAnswer(answer string, wanted []string) map[string]string {
	out := map[string]string{}
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end <= start {
		return out
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(answer[start : end+1])))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return out
	}
	for _, k := range wanted {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			out[k] = x
		case json.Number:
			out[k] = x.String()
		case bool:
			out[k] = strconv.FormatBool(x)
		default:
			b, err := json.Marshal(x)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
