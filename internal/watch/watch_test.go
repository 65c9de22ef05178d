package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgruene/ARANDU-PUB/internal/ingest"
	"github.com/mgruene/ARANDU-PUB/internal/store"
)

type fakeIngester struct {
	mu   sync.Mutex
	reqs []ingest.Request
	err  error
}

func (f *fakeIngester) Ingest(_ context.Context, req ingest.Request) (store.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return store.Receipt{}, f.err
	}
	return store.Receipt{DocID: req.DocID, File: req.Filename, WorkType: "bachelor"}, nil
}

func (f *fakeIngester) requests() []ingest.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ingest.Request(nil), f.reqs...)
}

// runWatcher starts w and returns a channel of results and a stop function
// that waits for Run to return.
func runWatcher(t *testing.T, ing Ingester, cfg Config) (<-chan Result, func()) {
	t.Helper()
	results := make(chan Result, 16)
	cfg.OnResult = func(r Result) { results <- r }
	if cfg.Settle == 0 {
		cfg.Settle = 50 * time.Millisecond
	}
	w, err := New(ing, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	return results, func() {
		cancel()
		require.NoError(t, <-errCh)
	}
}

func waitResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ingest result")
		return Result{}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Dir: t.TempDir()})
	require.Error(t, err)

	_, err = New(&fakeIngester{}, Config{Dir: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "x.pdf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = New(&fakeIngester{}, Config{Dir: file})
	require.Error(t, err)

	w, err := New(&fakeIngester{}, Config{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, defaultSettle, w.cfg.Settle)
	assert.Equal(t, defaultWorkers, w.cfg.Workers)
}

func TestIsCandidate(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"/in/thesis.pdf":  true,
		"/in/THESIS.PDF":  true,
		"/in/.thesis.pdf": false,
		"/in/thesis.docx": false,
		"/in/thesis":      false,
		"/in/thesis.pdf~": false,
	}
	for path, want := range cases {
		assert.Equal(t, want, isCandidate(path), path)
	}
}

func TestHandleEvent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	pdf := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o600))
	sub := filepath.Join(dir, "nested.pdf")
	require.NoError(t, os.Mkdir(sub, 0o750))

	w, err := New(&fakeIngester{}, Config{Dir: dir})
	require.NoError(t, err)

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"create pdf", fsnotify.Event{Name: pdf, Op: fsnotify.Create}, true},
		{"write pdf", fsnotify.Event{Name: pdf, Op: fsnotify.Write}, true},
		{"chmod pdf", fsnotify.Event{Name: pdf, Op: fsnotify.Chmod}, false},
		{"remove pdf", fsnotify.Event{Name: pdf, Op: fsnotify.Remove}, false},
		{"directory named like a pdf", fsnotify.Event{Name: sub, Op: fsnotify.Create}, false},
		{"vanished file", fsnotify.Event{Name: filepath.Join(dir, "gone.pdf"), Op: fsnotify.Create}, false},
		{"other extension", fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := w.handleEvent(tt.ev)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, tt.ev.Name, path)
			}
		})
	}
}

func TestRemoveCancelsPending(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w, err := New(&fakeIngester{}, Config{Dir: dir, Settle: time.Hour})
	require.NoError(t, err)

	path := filepath.Join(dir, "a.pdf")
	done := make(chan struct{})
	defer close(done)
	w.schedule(done, path)
	w.schedule(done, path)
	assert.Len(t, w.pending, 1)

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	assert.Empty(t, w.pending)
}

// A write that lands after the settle timer fired, but before its callback
// took the lock, must replace the timer instead of re-arming it.
func TestScheduleAfterFireQueuesOnce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w, err := New(&fakeIngester{}, Config{Dir: dir, Settle: 20 * time.Millisecond})
	require.NoError(t, err)

	path := filepath.Join(dir, "a.pdf")
	fired := time.NewTimer(0)
	<-fired.C
	stale := &pendingFile{timer: fired}
	w.pending[path] = stale

	done := make(chan struct{})
	defer close(done)
	w.schedule(done, path)

	w.mu.Lock()
	assert.NotSame(t, stale, w.pending[path])
	w.mu.Unlock()

	select {
	case got := <-w.queue:
		assert.Equal(t, path, got)
	case <-time.After(2 * time.Second):
		t.Fatal("path was never queued")
	}
	select {
	case got := <-w.queue:
		t.Fatalf("path queued twice: %s", got)
	case <-time.After(100 * time.Millisecond):
	}

	w.mu.Lock()
	assert.Empty(t, w.pending)
	w.mu.Unlock()
}

func TestRun_IngestsNewPDF(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ing := &fakeIngester{}
	results, stop := runWatcher(t, ing, Config{Dir: dir, Select: true})
	defer stop()

	data := []byte("%PDF-1.7 thesis body")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Thesis.PDF"), data, 0o600))

	res := waitResult(t, results)
	require.NoError(t, res.Err)
	assert.Equal(t, ingest.DocIDFor(data), res.DocID)
	assert.Equal(t, res.DocID, res.Receipt.DocID)

	reqs := ing.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Thesis.PDF", reqs[0].Filename)
	assert.Equal(t, data, reqs[0].Data)
	assert.True(t, reqs[0].Select)
}

func TestRun_SameContentSameDocID(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ing := &fakeIngester{}
	results, stop := runWatcher(t, ing, Config{Dir: dir})
	defer stop()

	data := []byte("%PDF identical")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), data, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pdf"), data, 0o600))

	first, second := waitResult(t, results), waitResult(t, results)
	assert.Equal(t, first.DocID, second.DocID)
	assert.NotEqual(t, first.Path, second.Path)
}

func TestRun_ScanExisting(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.pdf"), []byte("%PDF old"), 0o600))

	ing := &fakeIngester{err: &ingest.InputError{Reason: "no usable text"}}
	results, stop := runWatcher(t, ing, Config{Dir: dir, ScanExisting: true})
	defer stop()

	res := waitResult(t, results)
	assert.Equal(t, filepath.Join(dir, "old.pdf"), res.Path)
	assert.True(t, errors.Is(res.Err, ingest.ErrInput))
}
