// Package tracing registers Langfuse tracing for eino model calls.
package tracing

import (
	"log/slog"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

// Setup builds the Langfuse callback handler when both keys are configured.
// The returned flush function must be called before process exit so that
// buffered traces are sent. Without keys it returns nil, nil, false.
func Setup(cfg config.TracingConfig) (callbacks.Handler, func(), bool) {
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil, nil, false
	}
	host := cfg.Host
	if host == "" {
		host = "http://localhost:3000"
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	return handler, flusher, true
}

// Enable registers the handler globally and returns its flush function, or a
// no-op when tracing is not configured.
func Enable(cfg config.TracingConfig, log *slog.Logger) func() {
	handler, flush, ok := Setup(cfg)
	if !ok {
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled", slog.String("host", cfg.Host))
	return flush
}
