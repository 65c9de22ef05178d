// Package archive keeps the raw uploaded PDF and a metadata sidecar next to
// each ingest, on local disk or in an S3 bucket.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

// Backend names accepted in configuration.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendNone  = "none"
)

// Archive stores the raw document and its metadata sidecar.
// Implementations must be safe to call from multiple goroutines.
type Archive interface {
	// Put stores data as {docid}_{filename} and md as {docid}.metadata.json.
	// It returns the location of the stored document.
	Put(ctx context.Context, docid, filename string, data []byte, md map[string]any) (string, error)
}

// FileHash returns the hex SHA-256 of data.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// ObjectName returns the archive name of an uploaded file. Directory parts
// of filename are dropped and unsafe characters replaced.
func ObjectName(docid, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = strings.Trim(unsafeName.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = "document.pdf"
	}
	return docid + "_" + base
}

// SidecarName returns the name of the metadata sidecar for docid.
func SidecarName(docid string) string {
	return docid + ".metadata.json"
}

func sidecar(md map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: marshal sidecar: %w", err)
	}
	return data, nil
}

// Discard is an Archive that stores nothing.
type Discard struct{}

// Put implements Archive.
func (Discard) Put(context.Context, string, string, []byte, map[string]any) (string, error) {
	return "", nil
}

// Open constructs the Archive selected by cfg.Archive.Backend.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (Archive, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	switch cfg.Archive.Backend {
	case BackendLocal, "":
		return NewLocal(cfg.Paths.UploadsDir, log)
	case BackendS3:
		return NewS3(ctx, cfg.Archive.S3, log)
	case BackendNone:
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("archive: unknown backend %q (valid: local, s3, none)", cfg.Archive.Backend)
	}
}
