// Package audit logs one structured line per CLI invocation: the command,
// the config file it resolved and the operational environment. Secrets are
// reduced to "set" or "unset"; connection strings lose their password.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	// key is the environment variable name.
	key string
	// kind selects how the value is sanitised.
	kind valueKind
}

type valueKind int

const (
	plain valueKind = iota
	secret
	dsn
)

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []auditEntry{
	{"ARANDU_MODELS_FILE", plain},
	{"ARANDU_EXAMINERS_FILE", plain},
	{"ARANDU_STATE_DIR", plain},
	{"ARANDU_UPLOADS_DIR", plain},
	{"ARANDU_EXTRACTOR", plain},
	{"OLLAMA_BASE_URL", plain},
	{"OPENAI_BASE_URL", plain},
	{"OPENAI_API_KEY", secret},
	{"GOOGLE_API_KEY", secret},
	{"ARK_BASE_URL", plain},
	{"ARK_API_KEY", secret},
	{"EMBEDDING_CONCURRENCY", plain},
	{"EMBEDDING_RPS", plain},
	{"VECTOR_STORE", plain},
	{"QDRANT_HOST", plain},
	{"QDRANT_PORT", plain},
	{"QDRANT_API_KEY", secret},
	{"DATABASE_URL", dsn},
	{"STATE_BACKEND", plain},
	{"ARCHIVE_BACKEND", plain},
	{"S3_BUCKET", plain},
	{"S3_ENDPOINT", plain},
	{"AWS_REGION", plain},
	{"AWS_ACCESS_KEY_ID", secret},
	{"AWS_SECRET_ACCESS_KEY", secret},
	{"LOCK_BACKEND", plain},
	{"REDIS_ADDR", plain},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LANGFUSE_HOST", plain},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
}

// LogCommandStart emits a structured audit log entry when a CLI command begins.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, SanitiseKey(entry.key, os.Getenv(entry.key))))
	}
	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the loggable form of an env var value: "set" or
// "unset" for secrets, the URL without password for connection strings and
// the value itself otherwise.
func SanitiseKey(key, value string) string {
	for _, e := range auditKeys {
		if e.key != key {
			continue
		}
		switch e.kind {
		case secret:
			return presence(value)
		case dsn:
			return redactDSN(value)
		}
	}
	return valOrUnset(value)
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// redactDSN masks the password of a URL-style connection string. Values
// that do not parse as URLs are treated as secrets.
func redactDSN(v string) string {
	if v == "" {
		return "unset"
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" {
		return "set"
	}
	return u.Redacted()
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
