package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Local stores archives in a directory.
type Local struct {
	dir string
	log *slog.Logger
}

// NewLocal creates dir if needed.
func NewLocal(dir string, log *slog.Logger) (*Local, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("archive: could not create %s: %w", dir, err)
	}
	return &Local{dir: dir, log: log}, nil
}

// Put implements Archive.
func (l *Local) Put(_ context.Context, docid, filename string, data []byte, md map[string]any) (string, error) {
	side, err := sidecar(md)
	if err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, ObjectName(docid, filename))
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(l.dir, SidecarName(docid)), side); err != nil {
		return "", err
	}
	l.log.Info("upload archived", slog.String("docid", docid), slog.String("path", path), slog.Int("bytes", len(data)))
	return path, nil
}

func writeFile(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("archive: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("archive: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
