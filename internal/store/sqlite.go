package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a Store backed by a local SQLite database. Documents are
// stored as JSON bodies in the same shape the file backend writes.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("store: could not create %s: %w", filepath.Dir(path), err)
		}
	}
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS receipts (
    docid      TEXT    PRIMARY KEY,
    body       TEXT    NOT NULL,
    ingest_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS index_entries (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    docid      TEXT    NOT NULL UNIQUE,
    body       TEXT    NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS selection (
    id         INTEGER PRIMARY KEY CHECK(id = 1),
    body       TEXT    NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// WriteReceipt implements Store.
func (s *SQLiteStore) WriteReceipt(ctx context.Context, r Receipt) error {
	if err := checkDocID(r.DocID); err != nil {
		return err
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: marshal receipt: %w", err)
	}
	const q = `
INSERT INTO receipts (docid, body, ingest_at) VALUES (?, ?, ?)
ON CONFLICT(docid) DO UPDATE SET body = excluded.body, ingest_at = excluded.ingest_at`
	if _, err := s.db.ExecContext(ctx, q, r.DocID, string(body), r.IngestAt.Unix()); err != nil {
		return fmt.Errorf("store: write receipt: %w", err)
	}
	return nil
}

// ReadReceipt implements Store.
func (s *SQLiteStore) ReadReceipt(ctx context.Context, docid string) (Receipt, error) {
	var r Receipt
	err := s.scanBody(ctx, &r, `SELECT body FROM receipts WHERE docid = ?`, docid)
	return r, err
}

// UpsertIndexEntry implements Store. A replaced entry keeps its position.
func (s *SQLiteStore) UpsertIndexEntry(ctx context.Context, e IndexEntry) error {
	if err := checkDocID(e.DocID); err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal index entry: %w", err)
	}
	const q = `
INSERT INTO index_entries (docid, body, updated_at) VALUES (?, ?, ?)
ON CONFLICT(docid) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, e.DocID, string(body), s.now().Unix()); err != nil {
		return fmt.Errorf("store: upsert index entry: %w", err)
	}
	return nil
}

// ListIndex implements Store.
func (s *SQLiteStore) ListIndex(ctx context.Context) ([]IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM index_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list index: %w", err)
	}
	defer rows.Close()

	var out []IndexEntry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("store: list index scan: %w", err)
		}
		var e IndexEntry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("store: decode index entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list index rows: %w", err)
	}
	return out, nil
}

// SetCurrent implements Store.
func (s *SQLiteStore) SetCurrent(ctx context.Context, docid string) (Selection, error) {
	r, err := s.ReadReceipt(ctx, docid)
	if err != nil {
		return Selection{}, fmt.Errorf("store: select %q: %w", docid, err)
	}
	sel := selectionFromReceipt(r, s.now().UTC())
	body, err := json.Marshal(sel)
	if err != nil {
		return Selection{}, fmt.Errorf("store: marshal selection: %w", err)
	}
	const q = `INSERT INTO selection (id, body) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET body = excluded.body`
	if _, err := s.db.ExecContext(ctx, q, string(body)); err != nil {
		return Selection{}, fmt.Errorf("store: set current: %w", err)
	}
	return sel, nil
}

// Current implements Store.
func (s *SQLiteStore) Current(ctx context.Context) (Selection, error) {
	var sel Selection
	err := s.scanBody(ctx, &sel, `SELECT body FROM selection WHERE id = 1`)
	return sel, err
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanBody(ctx context.Context, v any, q string, args ...any) error {
	var body string
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: query: %w", err)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("store: decode: %w", err)
	}
	return nil
}
