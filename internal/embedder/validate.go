package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

// knownChatModelPrefixes contains name fragments of chat/completion models
// that are not suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// WarnChatModels logs a warning for every embedding alias whose model looks
// like a chat model. It returns the offending aliases.
func WarnChatModels(models *config.Models, log *slog.Logger) []string {
	if models == nil {
		return nil
	}
	var out []string
	for _, e := range models.Embeddings {
		if looksLikeChatModel(e.Model) {
			out = append(out, e.Alias)
			log.Warn("embedding model looks like a chat model",
				slog.String("alias", e.Alias),
				slog.String("model", e.Model),
				slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, mxbai-embed-large"),
			)
		}
	}
	return out
}

// ProbeResult is the outcome of probing one alias.
type ProbeResult struct {
	Alias string
	Model string
	// Dim is the length of the returned vector, 0 when none came back.
	Dim int
	// Want is the configured dimension, 0 if unset.
	Want int
	Err  error
}

// OK reports whether the probe produced a vector of the expected size.
func (p ProbeResult) OK() bool {
	return p.Err == nil && p.Dim > 0 && (p.Want == 0 || p.Dim == p.Want)
}

// Probe embeds a short text with every alias of src and reports the vector
// sizes. The dimension check of the clients is bypassed so that a mismatch
// is reported rather than hidden.
func Probe(ctx context.Context, src ClientSource, aliases []string) []ProbeResult {
	out := make([]ProbeResult, 0, len(aliases))
	for _, alias := range aliases {
		res := ProbeResult{Alias: alias}
		cl, err := src.Client(alias)
		if err != nil {
			res.Err = err
			out = append(out, res)
			continue
		}
		res.Model, res.Want = cl.Model(), cl.Dim()
		v := cl.embedOne(ctx, "Probe: Abschlussarbeit")
		res.Dim = len(v)
		switch {
		case res.Dim == 0:
			res.Err = fmt.Errorf("embedder: alias %q returned no vector", alias)
		case res.Want > 0 && res.Dim != res.Want:
			res.Err = fmt.Errorf("embedder: alias %q returned %d dimensions, registry says %d", alias, res.Dim, res.Want)
		}
		out = append(out, res)
	}
	return out
}
