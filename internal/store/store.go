// Package store persists ingest receipts, the ingest index and the current
// thesis selection. The file backend writes one JSON document per concern
// with atomic temp-file renames; the SQLite backend keeps the same documents
// in a local database.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

// Backend names accepted in configuration.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// StatusIngested is the receipt status of a completed parent/child ingest.
const StatusIngested = "ingested_parent_child"

var (
	// ErrNotFound is returned when a receipt or the selection does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidDocID is returned for document ids unsafe as file names.
	ErrInvalidDocID = errors.New("store: invalid docid")
)

var docIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidDocID reports whether id can be used as a document id.
func ValidDocID(id string) bool {
	return docIDPattern.MatchString(id)
}

func checkDocID(id string) error {
	if !ValidDocID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidDocID, id)
	}
	return nil
}

// Collections names the vector store collections an ingest wrote to.
type Collections struct {
	Parents string `json:"parents"`
	Chunks  string `json:"chunks"`
}

// Counts records how many records an ingest wrote.
type Counts struct {
	Parents  int `json:"parents"`
	Children int `json:"children"`
}

// Receipt is the durable record of one ingest. A later ingest of the same
// docid overwrites it.
type Receipt struct {
	DocID          string             `json:"docid"`
	File           string             `json:"file"`
	FileHash       string             `json:"filehash,omitempty"`
	WorkType       string             `json:"work_type"`
	Collections    Collections        `json:"collections"`
	Counts         Counts             `json:"counts"`
	EmbeddingAlias string             `json:"embedding_alias"`
	EmbeddingModel string             `json:"embedding_model"`
	EmbeddingDim   int                `json:"embedding_dim"`
	EmbeddingTried []string           `json:"embedding_tried,omitempty"`
	Averaged       bool               `json:"embedding_averaged,omitempty"`
	Metadata       map[string]any     `json:"metadata"`
	Confidence     map[string]float64 `json:"confidence,omitempty"`
	Source         string             `json:"source"`
	Archive        string             `json:"archive,omitempty"`
	Status         string             `json:"status"`
	IngestAt       time.Time          `json:"ingest_at"`
}

// IndexEntry summarizes one receipt in the ingest index.
type IndexEntry struct {
	DocID          string      `json:"docid"`
	File           string      `json:"filename"`
	WorkType       string      `json:"work_type"`
	StudentName    string      `json:"student_name"`
	ThesisTitle    string      `json:"thesis_title"`
	EmbeddingAlias string      `json:"embedding_alias"`
	IngestAt       time.Time   `json:"ingest_at"`
	Collections    Collections `json:"collections"`
	Counts         Counts      `json:"counts"`
}

// Index is the document stored in ingests_index.json.
type Index struct {
	UpdatedAt time.Time    `json:"updated_at"`
	Items     []IndexEntry `json:"items"`
}

// Selection is the currently selected thesis.
type Selection struct {
	DocID          string         `json:"docid"`
	File           string         `json:"filename"`
	WorkType       string         `json:"work_type"`
	Collections    Collections    `json:"collections"`
	Counts         Counts         `json:"counts"`
	Metadata       map[string]any `json:"metadata"`
	EmbeddingAlias string         `json:"embedding_alias"`
	IngestAt       time.Time      `json:"ingest_at"`
	SelectedAt     time.Time      `json:"selected_at"`
}

// EntryFromReceipt builds the index entry for r.
func EntryFromReceipt(r Receipt) IndexEntry {
	str := func(k string) string {
		s, _ := r.Metadata[k].(string)
		return s
	}
	return IndexEntry{
		DocID:          r.DocID,
		File:           r.File,
		WorkType:       r.WorkType,
		StudentName:    str("student_name"),
		ThesisTitle:    str("thesis_title"),
		EmbeddingAlias: r.EmbeddingAlias,
		IngestAt:       r.IngestAt,
		Collections:    r.Collections,
		Counts:         r.Counts,
	}
}

func selectionFromReceipt(r Receipt, now time.Time) Selection {
	return Selection{
		DocID:          r.DocID,
		File:           r.File,
		WorkType:       r.WorkType,
		Collections:    r.Collections,
		Counts:         r.Counts,
		Metadata:       r.Metadata,
		EmbeddingAlias: r.EmbeddingAlias,
		IngestAt:       r.IngestAt,
		SelectedAt:     now,
	}
}

// upsertEntry replaces the entry with the same docid or appends e.
func upsertEntry(items []IndexEntry, e IndexEntry) []IndexEntry {
	for i := range items {
		if items[i].DocID == e.DocID {
			items[i] = e
			return items
		}
	}
	return append(items, e)
}

// Store persists ingest state. Implementations must be safe for concurrent use.
type Store interface {
	// WriteReceipt stores r, replacing any receipt for the same docid.
	WriteReceipt(ctx context.Context, r Receipt) error
	// ReadReceipt returns the receipt for docid or ErrNotFound.
	ReadReceipt(ctx context.Context, docid string) (Receipt, error)
	// UpsertIndexEntry adds or replaces the index entry for e.DocID.
	UpsertIndexEntry(ctx context.Context, e IndexEntry) error
	// ListIndex returns all index entries in insertion order.
	ListIndex(ctx context.Context) ([]IndexEntry, error)
	// SetCurrent selects docid. The receipt must exist.
	SetCurrent(ctx context.Context, docid string) (Selection, error)
	// Current returns the selection or ErrNotFound.
	Current(ctx context.Context) (Selection, error)
	// Close releases any resources held by the store.
	Close() error
}

// Open constructs the Store selected by cfg.State.Backend.
func Open(cfg *config.Config, log *slog.Logger) (Store, error) {
	switch cfg.State.Backend {
	case BackendFile, "":
		return NewFileStore(cfg.Paths.StateDir, log)
	case BackendSQLite:
		return OpenSQLite(cfg.State.SQLitePath)
	default:
		return nil, fmt.Errorf("store: unknown backend %q (valid: file, sqlite)", cfg.State.Backend)
	}
}
