package embedder

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDecode marks a response body that is not valid embedding JSON.
var ErrDecode = errors.New("embedder: malformed response")

// embeddingResponse covers every response shape the backends produce:
//
//	{"embedding": [...]}                     Ollama /api/embeddings
//	{"embeddings": [[...], ...]}             Ollama /api/embed
//	{"data": [{"embedding": [...]}, ...]}    OpenAI compatible /embeddings
//
// The first populated variant in that order wins.
type embeddingResponse struct {
	Embedding  []float32   `json:"embedding"`
	Embeddings [][]float32 `json:"embeddings"`
	Data       []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error json.RawMessage `json:"error,omitempty"`
}

// decodeVectors parses body into zero or more vectors. A well-formed body
// without vectors yields (nil, nil).
func decodeVectors(body []byte) ([][]float32, error) {
	var r embeddingResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	switch {
	case len(r.Embedding) > 0:
		return [][]float32{r.Embedding}, nil
	case len(r.Embeddings) > 0:
		return r.Embeddings, nil
	case len(r.Data) > 0:
		data := r.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		out := make([][]float32, len(data))
		for i, d := range data {
			out[i] = d.Embedding
		}
		return out, nil
	}
	return nil, nil
}

// errorMessage extracts a backend error from a response body. Ollama sends
// {"error": "..."} while OpenAI sends {"error": {"message": "..."}}.
func errorMessage(body []byte) string {
	var r embeddingResponse
	if json.Unmarshal(body, &r) != nil || len(r.Error) == 0 {
		return truncate(strings.TrimSpace(string(body)), 200)
	}
	var s string
	if json.Unmarshal(r.Error, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(r.Error, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return truncate(string(r.Error), 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// first returns the first vector of vs, or nil.
func first(vs [][]float32) []float32 {
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}
