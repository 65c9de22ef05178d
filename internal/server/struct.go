package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mgruene/ARANDU-PUB/internal/ingest"
	"github.com/mgruene/ARANDU-PUB/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request, upload
	// included.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. An
	// ingest answers only after embedding, so this must cover a full run.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, logs are discarded.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /readyz.
	// If empty, /readyz returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on /api/v1
	// routes (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MaxUploadBytes caps multipart uploads. Defaults to 64 MiB.
	MaxUploadBytes int64
	// AllowedOrigins enables CORS for these origins when non-empty.
	AllowedOrigins []string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is exposed on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Service is what the API handlers call. *ingest.Orchestrator satisfies it;
// tests inject a fake.
type Service interface {
	// Ingest runs a full ingest and returns the persisted receipt.
	Ingest(ctx context.Context, req ingest.Request) (store.Receipt, error)
	// Preview extracts metadata without ingesting.
	Preview(ctx context.Context, data []byte) (ingest.Preview, error)
	// Search queries the parents of one document.
	Search(ctx context.Context, req ingest.SearchRequest) (ingest.SearchResult, error)
}

// Server is the HTTP server exposing ingest, preview, state and search.
type Server struct {
	// svc runs ingests, previews and searches.
	svc Service
	// state answers the read-only state routes and selection changes.
	state store.Store
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /readyz.
	pingers []Pinger
	// metrics holds the Prometheus metrics owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// selectRequest is the JSON body for PUT /api/v1/current.
type selectRequest struct {
	// DocID is the document to select.
	DocID string `json:"docid"`
}

// searchRequest is the JSON body for POST /api/v1/search.
type searchRequest struct {
	// Query is the natural language question.
	Query string `json:"query"`
	// DocID restricts the search; empty uses the current selection.
	DocID string `json:"docid,omitempty"`
	// K is the number of hits; 0 uses the registry default.
	K int `json:"k,omitempty"`
}

// listResponse is the JSON response for GET /api/v1/ingests.
type listResponse struct {
	// Items are the index entries in insertion order.
	Items []store.IndexEntry `json:"items"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	// Error is the human-readable failure.
	Error string `json:"error"`
	// Kind is input, validation, exhausted, backend, not_found or internal.
	Kind string `json:"kind"`
	// Missing lists the absent required metadata fields, when relevant.
	Missing []string `json:"missing,omitempty"`
}
