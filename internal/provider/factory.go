package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

// FromRegistry resolves the chat model settings for a registry LLM entry.
// Endpoints and credentials not carried by the entry come from the runtime
// configuration of the matching provider.
func FromRegistry(rc *config.Config, m config.LLMModel) *Config {
	c := &Config{
		Backend:     Backend(strings.ToLower(strings.TrimSpace(m.Provider))),
		Model:       m.Model,
		BaseURL:     m.BaseURL,
		MaxTokens:   m.MaxTokens,
		Temperature: m.Temperature,
	}
	if c.Backend == "" {
		c.Backend = BackendOllama
	}
	switch c.Backend {
	case BackendOllama:
		if c.BaseURL == "" {
			c.BaseURL = rc.Ollama.BaseURL
		}
	case BackendOpenAI:
		if c.BaseURL == "" {
			c.BaseURL = rc.OpenAI.BaseURL
		}
		c.APIKey = rc.OpenAI.APIKey
	case BackendGemini:
		c.APIKey = rc.Gemini.APIKey
	case BackendArk:
		if c.BaseURL == "" {
			c.BaseURL = rc.Ark.BaseURL
		}
		c.APIKey = rc.Ark.APIKey
	}
	return c
}

// New constructs a ChatModel from an explicit Config, delegating to the
// appropriate backend constructor. It validates the config first so callers
// get a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	case BackendArk:
		return newArk(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, gemini, ark)", cfg.Backend)
	}
}
