package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File names inside the state directory.
const (
	indexFile   = "ingests_index.json"
	currentFile = "current_thesis.json"
)

// FileStore keeps state as JSON files in one directory. Every write goes to
// a temp file in the same directory and is renamed into place.
type FileStore struct {
	dir string
	log *slog.Logger
	now func() time.Time

	// mu serializes read-modify-write of the index within the process.
	mu sync.Mutex
}

// NewFileStore creates dir if needed and returns a FileStore over it.
func NewFileStore(dir string, log *slog.Logger) (*FileStore, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	log.Debug("state store ready", slog.String("dir", dir))
	return &FileStore{dir: dir, log: log, now: time.Now}, nil
}

// ReceiptPath returns the file holding the receipt of docid.
func (s *FileStore) ReceiptPath(docid string) string {
	return filepath.Join(s.dir, "ingest_doc_"+docid+".json")
}

// WriteReceipt implements Store.
func (s *FileStore) WriteReceipt(_ context.Context, r Receipt) error {
	if err := checkDocID(r.DocID); err != nil {
		return err
	}
	path := s.ReceiptPath(r.DocID)
	if err := writeJSONAtomic(path, r); err != nil {
		return err
	}
	s.log.Info("receipt saved", slog.String("docid", r.DocID), slog.String("path", path))
	return nil
}

// ReadReceipt implements Store.
func (s *FileStore) ReadReceipt(_ context.Context, docid string) (Receipt, error) {
	if err := checkDocID(docid); err != nil {
		return Receipt{}, err
	}
	var r Receipt
	if err := readJSON(s.ReceiptPath(docid), &r); err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// UpsertIndexEntry implements Store.
func (s *FileStore) UpsertIndexEntry(_ context.Context, e IndexEntry) error {
	if err := checkDocID(e.DocID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var idx Index
	path := filepath.Join(s.dir, indexFile)
	if err := readJSON(path, &idx); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	idx.Items = upsertEntry(idx.Items, e)
	idx.UpdatedAt = s.now().UTC()
	if err := writeJSONAtomic(path, idx); err != nil {
		return err
	}
	s.log.Info("ingest index updated", slog.String("docid", e.DocID), slog.Int("items", len(idx.Items)))
	return nil
}

// ListIndex implements Store. A missing index is an empty list.
func (s *FileStore) ListIndex(_ context.Context) ([]IndexEntry, error) {
	var idx Index
	if err := readJSON(filepath.Join(s.dir, indexFile), &idx); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return idx.Items, nil
}

// SetCurrent implements Store.
func (s *FileStore) SetCurrent(ctx context.Context, docid string) (Selection, error) {
	r, err := s.ReadReceipt(ctx, docid)
	if err != nil {
		return Selection{}, fmt.Errorf("store: select %q: %w", docid, err)
	}
	sel := selectionFromReceipt(r, s.now().UTC())
	if err := writeJSONAtomic(filepath.Join(s.dir, currentFile), sel); err != nil {
		return Selection{}, err
	}
	s.log.Info("current thesis set", slog.String("docid", docid))
	return sel, nil
}

// Current implements Store.
func (s *FileStore) Current(_ context.Context) (Selection, error) {
	var sel Selection
	if err := readJSON(filepath.Join(s.dir, currentFile), &sel); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// writeJSONAtomic writes v as indented JSON to a temp file next to path,
// syncs it and renames it over path.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp_*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("store: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("store: sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store: rename into %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return fmt.Errorf("store: read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
