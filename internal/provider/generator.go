package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

// Generator sends a single user prompt to a chat model and returns the
// answer text.
type Generator struct {
	chat  model.BaseChatModel
	alias string
	log   *slog.Logger
}

// NewGenerator wraps chat. alias is only used for logging.
func NewGenerator(chat model.BaseChatModel, alias string, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Generator{chat: chat, alias: alias, log: log}
}

// NewMetadataGenerator builds the Generator for the registry's metadata LLM.
func NewMetadataGenerator(ctx context.Context, rc *config.Config, log *slog.Logger) (*Generator, error) {
	if rc.Models == nil {
		return nil, fmt.Errorf("provider: model registry not loaded")
	}
	m, err := rc.Models.MetadataLLM()
	if err != nil {
		return nil, err
	}
	chat, err := New(ctx, FromRegistry(rc, m))
	if err != nil {
		return nil, fmt.Errorf("provider: llm %q: %w", m.Alias, err)
	}
	return NewGenerator(chat, m.Alias, log), nil
}

// Alias returns the registry alias of the wrapped model.
func (g *Generator) Alias() string { return g.alias }

// Generate implements metadata.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		g.log.Warn("llm generate failed", slog.String("alias", g.alias), slog.String("error", err.Error()))
		return "", fmt.Errorf("provider: generate: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return strings.TrimSpace(msg.Content), nil
}
