package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelRoute is the label used to partition HTTP metrics by the chi route
// pattern rather than the raw URL path, which would explode cardinality
// with docids.
const labelRoute = "route"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New so that tests can inject a fresh
// prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// httpRequestsTotal counts all HTTP requests handled by the router,
	// partitioned by method, route pattern and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// uploadsTotal counts PDF uploads by endpoint ("ingest", "preview") and
	// outcome ("ok", "error").
	uploadsTotal *prometheus.CounterVec

	// uploadBytes records the size of accepted PDF uploads.
	uploadBytes prometheus.Histogram
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arandu",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, route, and status code.",
		}, []string{"method", labelRoute, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arandu",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"method", labelRoute}),

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arandu",
			Subsystem: "http",
			Name:      "uploads_total",
			Help:      "PDF uploads partitioned by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),

		uploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arandu",
			Subsystem: "http",
			Name:      "upload_bytes",
			Help:      "Size of accepted PDF uploads.",
			Buckets:   prometheus.ExponentialBuckets(64<<10, 2, 10),
		}),
	}
}

// instrument records request count and latency per route pattern. The
// pattern is read after the handler ran, once chi has matched the route.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
