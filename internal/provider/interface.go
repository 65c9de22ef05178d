// Package provider constructs eino chat models for the registry LLMs and
// wraps them as plain prompt-in, text-out generators for the metadata
// fallback. Supported backends: Ollama, OpenAI compatible, Google Gemini,
// Volcengine Ark.
package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API or a compatible server.
	BackendOpenAI Backend = "openai"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
)

// Config holds the settings for one chat model, resolved from the model
// registry entry and the endpoint sections of the runtime configuration.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the provider's model name (e.g. "llama3:8b-instruct", "gpt-4o-mini").
	Model string

	// BaseURL overrides the default API endpoint.
	BaseURL string

	// APIKey is the authentication credential; unused for Ollama.
	APIKey string

	// MaxTokens caps the response length; 0 leaves the provider default.
	MaxTokens int

	// Temperature controls response randomness; nil leaves the provider default.
	Temperature *float32
}

// Validate reports missing settings for the selected backend.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, fmt.Errorf("provider: %s backend requires a model name", c.Backend))
	}
	switch c.Backend {
	case BackendOllama:
		if c.BaseURL == "" {
			errs = append(errs, errors.New("provider: ollama backend requires OLLAMA_BASE_URL"))
		}
	case BackendOpenAI:
		if c.APIKey == "" && c.BaseURL == "" {
			errs = append(errs, errors.New("provider: openai backend requires OPENAI_API_KEY or OPENAI_BASE_URL"))
		}
	case BackendGemini:
		if c.APIKey == "" {
			errs = append(errs, errors.New("provider: gemini backend requires GOOGLE_API_KEY"))
		}
	case BackendArk:
		if c.APIKey == "" {
			errs = append(errs, errors.New("provider: ark backend requires ARK_API_KEY"))
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, gemini, ark)", c.Backend)
	}
	return errors.Join(errs...)
}
