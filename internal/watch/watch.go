// Package watch ingests PDFs dropped into an inbox directory. Each file is
// ingested once it has stopped changing for the settle period; its document
// id is derived from the file content, so copying the same thesis twice
// replaces the earlier records instead of duplicating them.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mgruene/ARANDU-PUB/internal/ingest"
	"github.com/mgruene/ARANDU-PUB/internal/store"
)

const (
	defaultSettle  = 2 * time.Second
	defaultWorkers = 2
)

// Ingester runs one ingest. *ingest.Orchestrator satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (store.Receipt, error)
}

// Result reports the outcome of one inbox file.
type Result struct {
	Path    string
	DocID   string
	Receipt store.Receipt
	Err     error
}

// Config holds the watcher settings.
type Config struct {
	// Dir is the inbox directory. It must exist.
	Dir string

	// Settle is how long a file must stay unchanged before it is ingested.
	// Defaults to 2s.
	Settle time.Duration

	// Workers bounds concurrent ingests. Defaults to 2.
	Workers int

	// Select makes every successful ingest the current thesis.
	Select bool

	// ScanExisting ingests PDFs already present when Run starts.
	ScanExisting bool

	// OnResult is called after every attempt, from a worker goroutine.
	OnResult func(Result)

	// Log defaults to a discarding logger.
	Log *slog.Logger
}

// Watcher turns inbox file events into ingests.
type Watcher struct {
	ing Ingester
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingFile
	queue   chan string
}

// pendingFile is one armed settle timer. A callback whose entry is no longer
// in the pending map has been superseded and does nothing.
type pendingFile struct {
	timer *time.Timer
}

// New validates cfg and returns a Watcher. Nothing is watched until Run.
func New(ing Ingester, cfg Config) (*Watcher, error) {
	if ing == nil {
		return nil, errors.New("watch: ingester must not be nil")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch: inbox: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: inbox %s is not a directory", cfg.Dir)
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		ing:     ing,
		cfg:     cfg,
		log:     log.With(slog.String("inbox", cfg.Dir)),
		pending: make(map[string]*pendingFile),
		queue:   make(chan string, 64),
	}, nil
}

// Run watches the inbox until ctx is cancelled. It waits for running
// ingests before returning.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.cfg.Dir, err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for range w.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.work(ctx, done)
		}()
	}
	defer wg.Wait()
	defer close(done)
	defer w.stopTimers()

	if w.cfg.ScanExisting {
		if err := w.scan(); err != nil {
			w.log.Warn("inbox scan failed", slog.Any("error", err))
		}
	}
	w.log.Info("watching inbox", slog.Duration("settle", w.cfg.Settle))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("inbox watch stopped")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handleEvent(ev); ok {
				w.schedule(done, path)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("inbox watch error", slog.Any("error", err))
		}
	}
}

// handleEvent reports whether ev names a PDF that should be (re)scheduled.
// Removals and renames cancel a pending ingest.
func (w *Watcher) handleEvent(ev fsnotify.Event) (string, bool) {
	if !isCandidate(ev.Name) {
		return "", false
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
		return "", false
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return "", false
		}
		return ev.Name, true
	default:
		return "", false
	}
}

// isCandidate accepts visible files with a .pdf extension in any case.
func isCandidate(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".pdf")
}

// schedule (re)starts the settle timer of path.
func (w *Watcher) schedule(done <-chan struct{}, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.cfg.Settle)
		return
	}
	// Either nothing is pending or the old callback already fired and waits
	// on mu; the fresh entry supersedes it.
	p := &pendingFile{}
	p.timer = time.AfterFunc(w.cfg.Settle, func() {
		w.mu.Lock()
		if w.pending[path] != p {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case w.queue <- path:
		case <-done:
		}
	})
	w.pending[path] = p
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

// scan queues the PDFs already in the inbox.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isCandidate(e.Name()) {
			continue
		}
		w.queue <- filepath.Join(w.cfg.Dir, e.Name())
	}
	return nil
}

func (w *Watcher) work(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case path := <-w.queue:
			res := w.process(ctx, path)
			if w.cfg.OnResult != nil {
				w.cfg.OnResult(res)
			}
		}
	}
}

// process ingests one inbox file. The orchestrator's lock serializes
// ingests of the same content.
func (w *Watcher) process(ctx context.Context, path string) Result {
	res := Result{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = fmt.Errorf("watch: read %s: %w", filepath.Base(path), err)
		w.log.Warn("inbox file unreadable", slog.String("path", path), slog.Any("error", err))
		return res
	}
	res.DocID = ingest.DocIDFor(data)
	log := w.log.With(slog.String("path", path), slog.String("docid", res.DocID))

	rcpt, err := w.ing.Ingest(ctx, ingest.Request{
		Data:     data,
		Filename: filepath.Base(path),
		DocID:    res.DocID,
		Select:   w.cfg.Select,
	})
	if err != nil {
		res.Err = err
		log.Error("inbox ingest failed", slog.Any("error", err))
		return res
	}
	res.Receipt = rcpt
	log.Info("inbox file ingested",
		slog.String("work_type", rcpt.WorkType),
		slog.Int("parents", rcpt.Counts.Parents),
		slog.Int("children", rcpt.Counts.Children),
	)
	return res
}
