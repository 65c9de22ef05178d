// Package vectorstore defines the collection-oriented vector storage used by
// ingest and search, with Qdrant, Postgres/pgvector and in-memory backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

// Backend names accepted in configuration.
const (
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
	BackendMemory   = "memory"
)

// ErrMisaligned is returned by Upsert when its parallel slices differ in length.
var ErrMisaligned = errors.New("vectorstore: misaligned upsert")

// ErrEmptyFilter is returned by Delete when no filter entry is given.
var ErrEmptyFilter = errors.New("vectorstore: delete needs a filter")

// Hit is one query result.
type Hit struct {
	ID       string
	Document string
	Metadata map[string]any
	// Score is the cosine similarity, higher is closer.
	Score float32
}

// Filter restricts a query to records whose metadata equals every entry.
type Filter map[string]any

// Collection is a named set of records. Implementations must be safe to call
// from multiple goroutines.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Upsert stores or replaces records by id. ids, documents and metadatas
	// are parallel; embeddings is either nil (records without a vector) or
	// parallel as well.
	Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any, embeddings [][]float32) error

	// Query returns up to k records nearest to embedding that match filter.
	// Records stored without a vector are never returned.
	Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Hit, error)

	// Delete removes every record matching filter. An empty filter is
	// rejected with ErrEmptyFilter.
	Delete(ctx context.Context, filter Filter) error
}

// Store hands out collections. Implementations must be safe to call from
// multiple goroutines.
type Store interface {
	// GetOrCreateCollection opens name, creating it for vectors of dim
	// dimensions when it does not exist.
	GetOrCreateCollection(ctx context.Context, name string, dim int) (Collection, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Name returns the backend label used in readiness responses.
	Name() string

	// Close releases any resources held by the store.
	Close() error
}

// Open constructs the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.VectorStoreConfig, log *slog.Logger) (Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	switch cfg.Backend {
	case BackendQdrant, "":
		return NewQdrantStore(&QdrantConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.TLS,
		}, log)
	case BackendPgvector:
		return NewPgvectorStore(ctx, cfg.Postgres.DSN, log)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("vectorstore: unknown backend %q (valid: qdrant, pgvector, memory)", cfg.Backend)
	}
}

func checkAligned(ids, documents []string, metadatas []map[string]any, embeddings [][]float32) error {
	n := len(ids)
	if len(documents) != n || len(metadatas) != n || (embeddings != nil && len(embeddings) != n) {
		return fmt.Errorf("%w: %d ids, %d documents, %d metadatas, %d embeddings",
			ErrMisaligned, n, len(documents), len(metadatas), len(embeddings))
	}
	return nil
}
