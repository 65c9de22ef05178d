package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
)

// tablePrefix namespaces collection tables in a shared database.
const tablePrefix = "arandu_"

var unsafeIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// PgvectorStore implements Store with one Postgres table per collection and
// the pgvector extension for similarity search.
type PgvectorStore struct {
	db  *sql.DB
	log *slog.Logger

	mu    sync.Mutex
	known map[string]bool
}

// NewPgvectorStore opens dsn, pings it and makes sure the vector extension
// is installed.
func NewPgvectorStore(ctx context.Context, dsn string, log *slog.Logger) (*PgvectorStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgvector: DATABASE_URL is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgvector: ping db: %w", err)
	}
	if _, err := db.ExecContext(pctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgvector: enable extension: %w", err)
	}
	return &PgvectorStore{db: db, log: log, known: make(map[string]bool)}, nil
}

// TableName returns the quoted table identifier used for a collection.
func TableName(collection string) string {
	name := tablePrefix + unsafeIdent.ReplaceAllString(strings.ToLower(collection), "_")
	return pgx.Identifier{name}.Sanitize()
}

// GetOrCreateCollection implements Store. A dim of 0 creates an untyped
// vector column.
func (s *PgvectorStore) GetOrCreateCollection(ctx context.Context, name string, dim int) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := TableName(name)
	if !s.known[name] {
		col := "vector"
		if dim > 0 {
			col = fmt.Sprintf("vector(%d)", dim)
		}
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			document   TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding  %s,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table, col)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("pgvector: create table for %q: %w", name, err)
		}
		s.known[name] = true
	}
	return &pgCollection{db: s.db, name: name, table: table}, nil
}

// Ping implements Store.
func (s *PgvectorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Name implements Store.
func (s *PgvectorStore) Name() string { return "postgres" }

// Close implements Store.
func (s *PgvectorStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type pgCollection struct {
	db    *sql.DB
	name  string
	table string
}

func (c *pgCollection) Name() string { return c.name }

// Upsert writes all records in a single transaction.
func (c *pgCollection) Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any, embeddings [][]float32) error {
	if err := checkAligned(ids, documents, metadatas, embeddings); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (id, document, metadata, embedding, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET document = EXCLUDED.document, metadata = EXCLUDED.metadata,
		    embedding = EXCLUDED.embedding, updated_at = now()
	`, c.table)
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("pgvector: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		md, err := json.Marshal(metadatas[i])
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("pgvector: metadata for %q: %w", id, err)
		}
		var vec any
		if embeddings != nil && len(embeddings[i]) > 0 {
			vec = pgvector.NewVector(embeddings[i])
		}
		if _, err := stmt.ExecContext(ctx, id, documents[i], string(md), vec); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("pgvector: upsert %q into %q: %w", id, c.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector: commit: %w", err)
	}
	return nil
}

// Query orders by cosine distance; the score is 1 minus the distance.
func (c *pgCollection) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Hit, error) {
	f, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("pgvector: filter: %w", err)
	}
	if len(filter) == 0 {
		f = []byte("{}")
	}
	q := fmt.Sprintf(`
		SELECT id, document, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE embedding IS NOT NULL AND metadata @> $2::jsonb
		ORDER BY embedding <=> $1
		LIMIT $3
	`, c.table)
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(embedding), string(f), max(1, k))
	if err != nil {
		return nil, fmt.Errorf("pgvector: search in %q: %w", c.name, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h     Hit
			md    []byte
			score float64
		)
		if err := rows.Scan(&h.ID, &h.Document, &md, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if err := json.Unmarshal(md, &h.Metadata); err != nil {
			return nil, fmt.Errorf("pgvector: decode metadata of %q: %w", h.ID, err)
		}
		h.Score = float32(score)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Delete removes the rows whose metadata contains filter.
func (c *pgCollection) Delete(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return ErrEmptyFilter
	}
	f, err := json.Marshal(filter)
	if err != nil {
		return fmt.Errorf("pgvector: filter: %w", err)
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE metadata @> $1::jsonb`, c.table)
	if _, err := c.db.ExecContext(ctx, q, string(f)); err != nil {
		return fmt.Errorf("pgvector: delete from %q: %w", c.name, err)
	}
	return nil
}
