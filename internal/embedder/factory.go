// Package embedder computes text embeddings through Ollama or OpenAI
// compatible HTTP endpoints and resolves parent vectors across a cascade of
// model aliases.
package embedder

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

// Provider names accepted in the model registry.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// Factory builds Clients for registry aliases. Clients are cached per alias
// and share one HTTP client and rate limiter. It is safe for concurrent use.
type Factory struct {
	cfg     *config.Config
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewFactory returns a Factory for cfg. cfg.Models must be loaded.
func NewFactory(cfg *config.Config, log *slog.Logger) *Factory {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var lim *rate.Limiter
	if rps := cfg.Embedding.RequestsPerSecond; rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), max(1, cfg.Embedding.Concurrency))
	}
	return &Factory{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Embedding.Timeout},
		limiter: lim,
		log:     log,
		clients: make(map[string]*Client),
	}
}

// Client implements ClientSource.
func (f *Factory) Client(alias string) (*Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[alias]; ok {
		return c, nil
	}

	if f.cfg.Models == nil {
		return nil, fmt.Errorf("embedder: model registry not loaded")
	}
	m, ok := f.cfg.Models.Embedding(alias)
	if !ok {
		return nil, fmt.Errorf("embedder: unknown embedding alias %q", alias)
	}
	backend, err := f.backend(m)
	if err != nil {
		return nil, err
	}
	r := f.cfg.Models.Retrieval
	c := NewClient(backend, ClientConfig{
		Alias:       m.Alias,
		Model:       m.Model,
		Dim:         m.Dim,
		Normalize:   m.Normalize,
		MaxChars:    r.MaxCharsPerEmbedding,
		Agg:         r.EmbeddingAgg,
		Concurrency: f.cfg.Embedding.Concurrency,
		Limiter:     f.limiter,
	}, f.log)
	f.clients[alias] = c
	return c, nil
}

func (f *Factory) backend(m config.EmbeddingModel) (Backend, error) {
	switch m.Provider {
	case ProviderOllama, "":
		base := m.BaseURL
		if base == "" {
			base = f.cfg.Ollama.BaseURL
		}
		if base == "" {
			return nil, fmt.Errorf("embedder: alias %q: no Ollama base URL", m.Alias)
		}
		return NewOllamaBackend(base, f.http), nil

	case ProviderOpenAI:
		base := m.BaseURL
		if base == "" {
			base = f.cfg.OpenAI.BaseURL
		}
		if base == "" {
			base = defaultOpenAIBaseURL
		}
		if base == defaultOpenAIBaseURL && f.cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("embedder: alias %q: openai requires OPENAI_API_KEY", m.Alias)
		}
		return NewOpenAIBackend(base, f.cfg.OpenAI.APIKey, m.Dim, f.http), nil

	default:
		return nil, fmt.Errorf("embedder: alias %q: unknown provider %q (valid: ollama, openai)", m.Alias, m.Provider)
	}
}
