// Package logging provides the structured logger used by every arandu
// component. It is built once at startup via [New] and handed to constructors
// explicitly; request- and ingest-scoped loggers travel through context via
// [WithLogger] / [FromContext].
//
// Environment variables override the configured values:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
//	LOG_FILE   = path of an additional append-only log file (optional)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// contextKey is an unexported type for context keys in this package.
type contextKey struct{}

// Options selects the handler, level and sinks of a logger.
type Options struct {
	// Level is the minimum severity: debug, info, warn, error.
	Level string
	// Format is json or text.
	Format string
	// File, when set, receives a copy of every record.
	File string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New constructs a [*slog.Logger] from opts, letting LOG_LEVEL, LOG_FORMAT and
// LOG_FILE override the corresponding fields. The returned close function
// releases the log file, if any, and is always non-nil.
func New(opts Options) (*slog.Logger, func() error, error) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		opts.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		opts.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		opts.File = v
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	closer := func() error { return nil }

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, closer, fmt.Errorf("logging: open %s: %w", opts.File, err)
		}
		out = io.MultiWriter(out, f)
		closer = f.Close
	}

	return slog.New(newHandler(out, opts.Format, ParseLevel(opts.Level))), closer, nil
}

// Discard returns a logger that drops every record. Tests use it to keep
// output quiet.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	hopts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(format) == "text" {
		return slog.NewTextHandler(w, hopts)
	}
	return slog.NewJSONHandler(w, hopts)
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the [*slog.Logger] stored in ctx.
// If no logger is present it returns [slog.Default] so callers never
// need to nil-check.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ParseLevel converts a string to a [slog.Level], defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
