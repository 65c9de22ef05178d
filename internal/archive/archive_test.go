package archive

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

func TestObjectName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		filename string
		want     string
	}{
		{"thesis.pdf", "abc_thesis.pdf"},
		{"/tmp/uploads/Bachelorarbeit Müller.pdf", "abc_Bachelorarbeit_Müller.pdf"},
		{`C:\Users\x\arbeit.pdf`, "abc_arbeit.pdf"},
		{"../../etc/passwd", "abc_passwd"},
		{"", "abc_document.pdf"},
	}
	for _, tc := range tests {
		t.Run(tc.filename, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ObjectName("abc", tc.filename))
		})
	}
}

func TestFileHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", FileHash(nil))
}

func TestLocal_Put(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a, err := NewLocal(dir, slogDiscard())
	require.NoError(t, err)

	loc, err := a.Put(context.Background(), "abc", "thesis.pdf", []byte("%PDF-1.4"), map[string]any{"student_name": "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc_thesis.pdf"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	raw, err := os.ReadFile(filepath.Join(dir, "abc.metadata.json"))
	require.NoError(t, err)
	var md map[string]any
	require.NoError(t, json.Unmarshal(raw, &md))
	assert.Equal(t, "Jane Doe", md["student_name"])
}

// fakeS3 accepts PutObject requests in path style and records the bodies.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.objects[r.URL.Path] = body
	f.types[r.URL.Path] = r.Header.Get("Content-Type")
	f.mu.Unlock()
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func TestS3_Put(t *testing.T) {
	t.Parallel()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := s3.NewFromConfig(aws.Config{
		Region:      "eu-central-1",
		Credentials: credentials.NewStaticCredentialsProvider("key", "secret", ""),
		HTTPClient:  srv.Client(),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(srv.URL)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	a := NewS3FromClient(client, "theses", "arandu/uploads", nil)

	loc, err := a.Put(context.Background(), "abc", "thesis.pdf", []byte("%PDF-1.4"), map[string]any{"work_type": "bachelor"})
	require.NoError(t, err)
	assert.Equal(t, "s3://theses/arandu/uploads/abc_thesis.pdf", loc)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "%PDF-1.4", string(fake.objects["/theses/arandu/uploads/abc_thesis.pdf"]))
	assert.Equal(t, "application/pdf", fake.types["/theses/arandu/uploads/abc_thesis.pdf"])
	assert.Contains(t, string(fake.objects["/theses/arandu/uploads/abc.metadata.json"]), `"work_type": "bachelor"`)
}

func TestOpen(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Paths.UploadsDir = t.TempDir()

	a, err := Open(context.Background(), &cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, a)

	cfg.Archive.Backend = BackendNone
	a, err = Open(context.Background(), &cfg, nil)
	require.NoError(t, err)
	loc, err := a.Put(context.Background(), "x", "y.pdf", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, loc)

	cfg.Archive.Backend = BackendS3
	_, err = Open(context.Background(), &cfg, nil)
	require.ErrorContains(t, err, "bucket")
}

func slogDiscard() *slog.Logger { return slog.New(slog.DiscardHandler) }
