package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request is a single embedding request. Exactly one of Prompt or Input is
// sent; Ollama versions disagree on which key they honour.
type Request struct {
	Prompt string
	Input  string
}

// Backend is an embedding endpoint. Embed returns every vector found in the
// response; a response without vectors yields an empty slice and no error.
type Backend interface {
	Embed(ctx context.Context, model string, req Request) ([][]float32, error)
}

// OllamaBackend talks to the Ollama /api/embeddings endpoint. It is safe for
// concurrent use. No API key is required.
type OllamaBackend struct {
	// baseURL is the Ollama server (e.g. "http://localhost:11434").
	baseURL string
	client  *http.Client
}

// NewOllamaBackend returns a backend for baseURL using client.
func NewOllamaBackend(baseURL string, client *http.Client) *OllamaBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// ollamaEmbedRequest is the JSON body sent to /api/embeddings.
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt,omitempty"`
	Input  string `json:"input,omitempty"`
}

// Embed implements Backend.
func (b *OllamaBackend) Embed(ctx context.Context, model string, r Request) ([][]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: model, Prompt: r.Prompt, Input: r.Input})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}
	return post(ctx, b.client, b.baseURL+"/api/embeddings", payload, nil, "ollama embedder")
}

// post sends payload and decodes the vectors of a 2xx response.
func post(ctx context.Context, client *http.Client, url string, payload []byte, header http.Header, who string) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", who, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", who, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", who, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	vecs, err := decodeVectors(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", who, err)
	}
	return vecs, nil
}

// HTTPError is a non-2xx response from an embedding backend.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("embedder: HTTP %d", e.Status)
	}
	return fmt.Sprintf("embedder: HTTP %d: %s", e.Status, e.Message)
}
