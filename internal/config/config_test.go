package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgruene/ARANDU-PUB/internal/logging"
)

const minimalModels = `{
  "embeddings": [
    {"alias": "nomic", "model": "nomic-embed-text", "dim": 768},
    {"alias": "mxbai", "model": "mxbai-embed-large", "dim": 1024}
  ],
  "llms": [{"alias": "llama3-instruct", "provider": "ollama", "model": "llama3:instruct"}],
  "retrieval": {"embedding_alias_fallbacks": ["mxbai"]}
}`

// clearEnv blanks every variable Load consults so the host environment cannot
// leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ARANDU_CONFIG", "")
	for _, m := range envMapping {
		t.Setenv(m.envKey, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	clearEnv(t)

	_, _, err := Load("/nonexistent/path/arandu.yaml", logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	models := writeFile(t, dir, "models.json", minimalModels)
	examiners := writeFile(t, dir, "examiners.yaml", `
examiners:
  - name: Prof. Dr. Anna Schmidt
    variants: ["Schmidt, Anna", "A. Schmidt"]
`)
	cfgPath := writeFile(t, dir, "arandu.yaml", `
paths:
  state_dir: /var/lib/arandu/state
  models_file: `+models+`
  examiners_file: `+examiners+`
vector_store:
  backend: memory
lock:
  ttl: 2m
logging:
  level: debug
  format: text
`)

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("QDRANT_PORT", "7000")

	cfg, path, err := Load(cfgPath, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, cfgPath, path)

	assert.Equal(t, "/var/lib/arandu/state", cfg.Paths.StateDir)
	assert.Equal(t, "memory", cfg.VectorStore.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Lock.TTL)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "warn", cfg.Logging.Level, "env must win over YAML")
	assert.Equal(t, 7000, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "data/uploads", cfg.Paths.UploadsDir, "unset keys keep defaults")

	require.NotNil(t, cfg.Models)
	assert.Len(t, cfg.Models.Embeddings, 2)
	require.Len(t, cfg.Examiners, 1)
	assert.Equal(t, []string{"Schmidt, Anna", "A. Schmidt"}, cfg.Examiners[0].Variants)
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("ARANDU_MODELS_FILE", writeFile(t, dir, "models.json", minimalModels))
	t.Setenv("EMBEDDING_CONCURRENCY", "many")

	_, _, err := Load("", logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMBEDDING_CONCURRENCY")
}

func TestValidate_Backends(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "unknown extractor",
			mutate:  func(c *Config) { c.Extractor.Backend = "ocr" },
			wantErr: "extractor.backend",
		},
		{
			name:    "pgvector needs dsn",
			mutate:  func(c *Config) { c.VectorStore.Backend = "pgvector" },
			wantErr: "DATABASE_URL",
		},
		{
			name:    "s3 needs bucket",
			mutate:  func(c *Config) { c.Archive.Backend = "s3" },
			wantErr: "S3_BUCKET",
		},
		{
			name:    "redis needs addr",
			mutate:  func(c *Config) { c.Lock.Backend = "redis" },
			wantErr: "REDIS_ADDR",
		},
		{
			name:    "concurrency floor",
			mutate:  func(c *Config) { c.Embedding.Concurrency = 0 },
			wantErr: "concurrency",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadExaminers_RejectsNameless(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "ex.json", `{"examiners":[{"variants":["X"]}]}`)

	_, err := LoadExaminers(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}
