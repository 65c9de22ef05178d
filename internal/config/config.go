// Package config provides the immutable runtime configuration for arandu.
// Configuration is resolved once at startup with a layered precedence:
// defaults → YAML file → .env file → process environment. Environment variables
// always win. The resulting [Config] is passed explicitly to every component
// constructor; nothing reads the environment after [Load] returns.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. ARANDU_CONFIG environment variable
//  3. ~/.arandu/config.yaml
//  4. ./arandu.yaml
//
// If no file is found the system runs from defaults and env vars.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
type Config struct {
	// Paths locates on-disk state, uploads and registries.
	Paths PathsConfig `yaml:"paths"`

	// Ollama configures the default Ollama endpoint for embeddings and LLMs.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI configures OpenAI-compatible endpoints.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Gemini configures Google Gemini access for the LLM fallback.
	Gemini GeminiConfig `yaml:"gemini"`

	// Ark configures Volcengine Ark access for the LLM fallback.
	Ark ArkConfig `yaml:"ark"`

	// Extractor selects the PDF text extraction backend.
	Extractor ExtractorConfig `yaml:"extractor"`

	// Embedding tunes embedding backend calls.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorStore selects and configures the vector store.
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// State selects the receipt/index store.
	State StateConfig `yaml:"state"`

	// Archive selects where raw uploads are kept.
	Archive ArchiveConfig `yaml:"archive"`

	// Lock selects how same-docid ingests are serialized.
	Lock LockConfig `yaml:"lock"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing of LLM calls.
	Tracing TracingConfig `yaml:"tracing"`

	// Models is the embedding/LLM registry loaded from Paths.ModelsFile.
	Models *Models `yaml:"-"`

	// Examiners is the known-examiner registry loaded from Paths.ExaminersFile.
	Examiners []Examiner `yaml:"-"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	// StateDir holds receipts, the ingest index and the current selection.
	StateDir string `yaml:"state_dir"`
	// UploadsDir holds archived PDFs and metadata sidecars for the local archive.
	UploadsDir string `yaml:"uploads_dir"`
	// ModelsFile is the JSON model registry.
	ModelsFile string `yaml:"models_file"`
	// ExaminersFile is the YAML or JSON known-examiner registry (optional).
	ExaminersFile string `yaml:"examiners_file"`
}

// OllamaConfig holds Ollama endpoint settings.
type OllamaConfig struct {
	// BaseURL is the Ollama API endpoint.
	BaseURL string `yaml:"base_url"`
}

// OpenAIConfig holds OpenAI-compatible endpoint settings.
type OpenAIConfig struct {
	// BaseURL overrides the API endpoint (Azure, vLLM, LM Studio).
	BaseURL string `yaml:"base_url"`
	// APIKey is the API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
}

// ArkConfig holds Volcengine Ark settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the Ark endpoint.
	BaseURL string `yaml:"base_url"`
}

// ExtractorConfig selects the text extractor.
type ExtractorConfig struct {
	// Backend is pdf (page aware, pure Go) or docconv (pdftotext).
	Backend string `yaml:"backend"`
}

// EmbeddingConfig tunes calls to embedding backends.
type EmbeddingConfig struct {
	// Concurrency bounds parallel per-text requests.
	Concurrency int `yaml:"concurrency"`
	// RequestsPerSecond throttles backend calls; 0 disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// VectorStoreConfig selects and configures the vector store.
type VectorStoreConfig struct {
	// Backend is qdrant, pgvector or memory.
	Backend string `yaml:"backend"`
	// Qdrant holds Qdrant connection settings.
	Qdrant QdrantConfig `yaml:"qdrant"`
	// Postgres holds pgvector connection settings.
	Postgres PostgresConfig `yaml:"postgres"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// PostgresConfig holds pgvector settings.
type PostgresConfig struct {
	// DSN is the Postgres connection string. Prefer env var DATABASE_URL.
	DSN string `yaml:"dsn"`
}

// StateConfig selects the receipt store.
type StateConfig struct {
	// Backend is file (atomic JSON files) or sqlite.
	Backend string `yaml:"backend"`
	// SQLitePath is the database path for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
}

// ArchiveConfig selects the upload archive.
type ArchiveConfig struct {
	// Backend is local, s3 or none.
	Backend string `yaml:"backend"`
	// S3 holds bucket settings for the s3 backend.
	S3 S3Config `yaml:"s3"`
}

// S3Config holds S3 archive settings.
type S3Config struct {
	// Endpoint overrides the S3 endpoint for MinIO and other compatible stores.
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// LockConfig selects the per-docid lock.
type LockConfig struct {
	// Backend is local (in-process) or redis.
	Backend string `yaml:"backend"`
	// RedisAddr is host:port of the Redis server.
	RedisAddr string `yaml:"redis_addr"`
	// TTL bounds how long a crashed holder can block a docid.
	TTL time.Duration `yaml:"ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// RateLimitRPS is the sustained per-client request rate; 0 disables limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	// RateLimitBurst is the per-client burst size.
	RateLimitBurst int `yaml:"rate_limit_burst"`
	// MaxUploadMB caps the size of uploaded PDFs.
	MaxUploadMB int64 `yaml:"max_upload_mb"`
	// AllowedOrigins enables CORS for the listed browser origins.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
	// File is an optional additional log file.
	File string `yaml:"file"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// Default returns the configuration used when neither file nor env set a value.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			StateDir:   "data/app_state",
			UploadsDir: "data/uploads",
			ModelsFile: "config/models.json",
		},
		Ollama:    OllamaConfig{BaseURL: "http://localhost:11434"},
		Extractor: ExtractorConfig{Backend: "pdf"},
		Embedding: EmbeddingConfig{Concurrency: 4, Timeout: 120 * time.Second},
		VectorStore: VectorStoreConfig{
			Backend: "qdrant",
			Qdrant:  QdrantConfig{Host: "localhost", Port: 6334},
		},
		State:   StateConfig{Backend: "file", SQLitePath: "data/app_state/ingests.db"},
		Archive: ArchiveConfig{Backend: "local"},
		Lock:    LockConfig{Backend: "local", TTL: 10 * time.Minute},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			RateLimitRPS:   2,
			RateLimitBurst: 5,
			MaxUploadMB:    64,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{Host: "http://localhost:3000"},
	}
}

// envMapping maps environment variables onto config fields. A non-empty env
// value always replaces whatever defaults or YAML provided.
var envMapping = []struct {
	envKey string
	apply  func(c *Config, v string) error
}{
	{"ARANDU_STATE_DIR", func(c *Config, v string) error { c.Paths.StateDir = v; return nil }},
	{"ARANDU_UPLOADS_DIR", func(c *Config, v string) error { c.Paths.UploadsDir = v; return nil }},
	{"ARANDU_MODELS_FILE", func(c *Config, v string) error { c.Paths.ModelsFile = v; return nil }},
	{"ARANDU_EXAMINERS_FILE", func(c *Config, v string) error { c.Paths.ExaminersFile = v; return nil }},
	{"OLLAMA_BASE_URL", func(c *Config, v string) error { c.Ollama.BaseURL = v; return nil }},
	{"OPENAI_BASE_URL", func(c *Config, v string) error { c.OpenAI.BaseURL = v; return nil }},
	{"OPENAI_API_KEY", func(c *Config, v string) error { c.OpenAI.APIKey = v; return nil }},
	{"GOOGLE_API_KEY", func(c *Config, v string) error { c.Gemini.APIKey = v; return nil }},
	{"ARK_API_KEY", func(c *Config, v string) error { c.Ark.APIKey = v; return nil }},
	{"ARK_BASE_URL", func(c *Config, v string) error { c.Ark.BaseURL = v; return nil }},
	{"ARANDU_EXTRACTOR", func(c *Config, v string) error { c.Extractor.Backend = v; return nil }},
	{"EMBEDDING_CONCURRENCY", func(c *Config, v string) error { return setInt(&c.Embedding.Concurrency, v) }},
	{"EMBEDDING_RPS", func(c *Config, v string) error { return setFloat(&c.Embedding.RequestsPerSecond, v) }},
	{"EMBEDDING_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Embedding.Timeout, v) }},
	{"VECTOR_STORE", func(c *Config, v string) error { c.VectorStore.Backend = v; return nil }},
	{"QDRANT_HOST", func(c *Config, v string) error { c.VectorStore.Qdrant.Host = v; return nil }},
	{"QDRANT_PORT", func(c *Config, v string) error { return setInt(&c.VectorStore.Qdrant.Port, v) }},
	{"QDRANT_API_KEY", func(c *Config, v string) error { c.VectorStore.Qdrant.APIKey = v; return nil }},
	{"QDRANT_TLS", func(c *Config, v string) error { return setBool(&c.VectorStore.Qdrant.TLS, v) }},
	{"DATABASE_URL", func(c *Config, v string) error { c.VectorStore.Postgres.DSN = v; return nil }},
	{"STATE_BACKEND", func(c *Config, v string) error { c.State.Backend = v; return nil }},
	{"STATE_SQLITE_PATH", func(c *Config, v string) error { c.State.SQLitePath = v; return nil }},
	{"ARCHIVE_BACKEND", func(c *Config, v string) error { c.Archive.Backend = v; return nil }},
	{"AWS_REGION", func(c *Config, v string) error { c.Archive.S3.Region = v; return nil }},
	{"S3_ENDPOINT", func(c *Config, v string) error { c.Archive.S3.Endpoint = v; return nil }},
	{"S3_BUCKET", func(c *Config, v string) error { c.Archive.S3.Bucket = v; return nil }},
	{"AWS_ACCESS_KEY_ID", func(c *Config, v string) error { c.Archive.S3.AccessKey = v; return nil }},
	{"AWS_SECRET_ACCESS_KEY", func(c *Config, v string) error { c.Archive.S3.SecretKey = v; return nil }},
	{"LOCK_BACKEND", func(c *Config, v string) error { c.Lock.Backend = v; return nil }},
	{"REDIS_ADDR", func(c *Config, v string) error { c.Lock.RedisAddr = v; return nil }},
	{"ARANDU_HOST", func(c *Config, v string) error { c.Server.Host = v; return nil }},
	{"ARANDU_PORT", func(c *Config, v string) error { return setInt(&c.Server.Port, v) }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Logging.Format = v; return nil }},
	{"LOG_FILE", func(c *Config, v string) error { c.Logging.File = v; return nil }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config, v string) error { c.Tracing.PublicKey = v; return nil }},
	{"LANGFUSE_SECRET_KEY", func(c *Config, v string) error { c.Tracing.SecretKey = v; return nil }},
	{"LANGFUSE_HOST", func(c *Config, v string) error { c.Tracing.Host = v; return nil }},
}

// Load resolves the full configuration: defaults, the YAML file (if one is
// found), .env, and environment variables, then loads and validates the model
// registry and the examiner registry. It returns the config and the YAML path
// that was used ("" when none).
func Load(explicitPath string, log *slog.Logger) (*Config, string, error) {
	cfg := Default()

	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("config: could not read .env", slog.String("error", err.Error()))
	}

	path := resolveConfigPath(explicitPath)
	if explicitPath != "" && path == "" {
		return nil, "", fmt.Errorf("config: %s does not exist", explicitPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, "", fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	} else {
		log.Debug("config: no YAML config file found, using defaults and env vars")
	}

	applied := 0
	for _, m := range envMapping {
		v := strings.TrimSpace(os.Getenv(m.envKey))
		if v == "" {
			continue
		}
		if err := m.apply(&cfg, v); err != nil {
			return nil, "", fmt.Errorf("config: %s: %w", m.envKey, err)
		}
		applied++
	}

	models, err := LoadModels(cfg.Paths.ModelsFile)
	if err != nil {
		return nil, "", err
	}
	cfg.Models = models

	if cfg.Paths.ExaminersFile != "" {
		ex, err := LoadExaminers(cfg.Paths.ExaminersFile)
		if err != nil {
			return nil, "", err
		}
		cfg.Examiners = ex
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	log.Info("config: loaded",
		slog.String("path", path),
		slog.Int("env_overrides", applied),
		slog.Int("embedding_aliases", len(models.Embeddings)),
		slog.Int("llm_aliases", len(models.LLMs)),
		slog.Int("examiners", len(cfg.Examiners)),
	)

	return &cfg, path, nil
}

// Validate checks backend selectors and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("config: %s %q must be one of %s", field, v, strings.Join(allowed, ", ")))
	}
	check("extractor.backend", c.Extractor.Backend, "pdf", "docconv")
	check("vector_store.backend", c.VectorStore.Backend, "qdrant", "pgvector", "memory")
	check("state.backend", c.State.Backend, "file", "sqlite")
	check("archive.backend", c.Archive.Backend, "local", "s3", "none")
	check("lock.backend", c.Lock.Backend, "local", "redis")

	if c.VectorStore.Backend == "pgvector" && c.VectorStore.Postgres.DSN == "" {
		errs = append(errs, errors.New("config: vector_store.postgres.dsn (DATABASE_URL) is required for pgvector"))
	}
	if c.Archive.Backend == "s3" && c.Archive.S3.Bucket == "" {
		errs = append(errs, errors.New("config: archive.s3.bucket (S3_BUCKET) is required for the s3 archive"))
	}
	if c.Lock.Backend == "redis" && c.Lock.RedisAddr == "" {
		errs = append(errs, errors.New("config: lock.redis_addr (REDIS_ADDR) is required for the redis lock"))
	}
	if c.Embedding.Concurrency < 1 {
		errs = append(errs, errors.New("config: embedding.concurrency must be >= 1"))
	}
	if c.Models != nil {
		if err := c.Models.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("ARANDU_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".arandu", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("arandu.yaml"); err == nil {
		return "arandu.yaml"
	}

	return ""
}

func setInt(dst *int, v string) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = i
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
