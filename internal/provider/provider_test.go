package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "ollama/valid", cfg: Config{Backend: BackendOllama, Model: "llama3", BaseURL: "http://localhost:11434"}},
		{name: "ollama/missing url", cfg: Config{Backend: BackendOllama, Model: "llama3"}, wantErr: "OLLAMA_BASE_URL"},
		{name: "ollama/missing model", cfg: Config{Backend: BackendOllama, BaseURL: "http://x"}, wantErr: "model name"},
		{name: "openai/valid key", cfg: Config{Backend: BackendOpenAI, Model: "gpt-4o-mini", APIKey: "sk-test"}},
		{name: "openai/valid local server", cfg: Config{Backend: BackendOpenAI, Model: "qwen", BaseURL: "http://vllm:8000/v1"}},
		{name: "openai/missing key", cfg: Config{Backend: BackendOpenAI, Model: "gpt-4o"}, wantErr: "OPENAI_API_KEY"},
		{name: "gemini/valid", cfg: Config{Backend: BackendGemini, Model: "gemini-1.5-flash", APIKey: "AIza"}},
		{name: "gemini/missing key", cfg: Config{Backend: BackendGemini, Model: "gemini-1.5-flash"}, wantErr: "GOOGLE_API_KEY"},
		{name: "ark/missing key", cfg: Config{Backend: BackendArk, Model: "doubao"}, wantErr: "ARK_API_KEY"},
		{name: "unknown backend", cfg: Config{Backend: "bedrock", Model: "x"}, wantErr: "unknown backend"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestFromRegistry(t *testing.T) {
	t.Parallel()
	rc := config.Default()
	rc.OpenAI.APIKey = "sk-test"
	rc.Ark.BaseURL = "https://ark.example"
	temp := float32(0.1)

	c := FromRegistry(&rc, config.LLMModel{Alias: "llama3-instruct", Model: "llama3:8b-instruct"})
	assert.Equal(t, BackendOllama, c.Backend)
	assert.Equal(t, "http://localhost:11434", c.BaseURL)
	assert.Empty(t, c.APIKey)

	c = FromRegistry(&rc, config.LLMModel{Provider: "OpenAI", Model: "gpt-4o-mini", MaxTokens: 256, Temperature: &temp})
	assert.Equal(t, BackendOpenAI, c.Backend)
	assert.Equal(t, "sk-test", c.APIKey)
	assert.Equal(t, 256, c.MaxTokens)
	assert.Equal(t, &temp, c.Temperature)

	c = FromRegistry(&rc, config.LLMModel{Provider: "ark", Model: "doubao", BaseURL: "https://override"})
	assert.Equal(t, "https://override", c.BaseURL)
}

type stubChat struct {
	answer *schema.Message
	err    error
	got    []*schema.Message
}

func (s *stubChat) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	s.got = in
	return s.answer, s.err
}

func (s *stubChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestGenerator(t *testing.T) {
	t.Parallel()
	chat := &stubChat{answer: schema.AssistantMessage("  {\"student\":\"Jane Doe\"}\n", nil)}
	g := NewGenerator(chat, "llama3-instruct", nil)

	out, err := g.Generate(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, `{"student":"Jane Doe"}`, out)
	require.Len(t, chat.got, 1)
	assert.Equal(t, schema.User, chat.got[0].Role)
	assert.Equal(t, "prompt text", chat.got[0].Content)
	assert.Equal(t, "llama3-instruct", g.Alias())

	failing := NewGenerator(&stubChat{err: errors.New("connection refused")}, "x", nil)
	_, err = failing.Generate(context.Background(), "p")
	require.Error(t, err)
}

func TestNewMetadataGenerator_NoRegistry(t *testing.T) {
	t.Parallel()
	rc := config.Default()
	_, err := NewMetadataGenerator(context.Background(), &rc, nil)
	require.Error(t, err)
}
