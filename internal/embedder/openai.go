package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIBackend talks to an OpenAI compatible /embeddings endpoint. It is
// safe for concurrent use.
type OpenAIBackend struct {
	// baseURL is the API base (e.g. "https://api.openai.com/v1").
	baseURL string
	// apiKey is sent as a Bearer token; empty for keyless local servers.
	apiKey string
	// dimensions is the requested vector length (0 = model default).
	dimensions int
	client     *http.Client
}

// NewOpenAIBackend returns a backend for baseURL.
func NewOpenAIBackend(baseURL, apiKey string, dimensions int, client *http.Client) *OpenAIBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		dimensions: dimensions,
		client:     client,
	}
}

// openaiEmbedRequest is the JSON body sent to the embeddings endpoint.
type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// Embed implements Backend. Prompt and Input are equivalent here.
func (b *OpenAIBackend) Embed(ctx context.Context, model string, r Request) ([][]float32, error) {
	text := r.Prompt
	if text == "" {
		text = r.Input
	}
	payload, err := json.Marshal(openaiEmbedRequest{Input: []string{text}, Model: model, Dimensions: b.dimensions})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: marshal request: %w", err)
	}
	var h http.Header
	if b.apiKey != "" {
		h = http.Header{"Authorization": []string{"Bearer " + b.apiKey}}
	}
	return post(ctx, b.client, b.baseURL+"/embeddings", payload, h, "openai embedder")
}
