package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics owned by the ingest pipeline. A nil
// *Metrics records nothing.
type Metrics struct {
	// ingestsTotal counts finished ingests partitioned by result:
	// "ok", "input_error", "validation_error", "exhausted", "backend_error"
	// or "error".
	ingestsTotal *prometheus.CounterVec

	// stageDurationSeconds records the duration of each pipeline stage.
	stageDurationSeconds *prometheus.HistogramVec

	// embeddingAttemptsTotal counts embedding alias attempts by outcome.
	embeddingAttemptsTotal *prometheus.CounterVec

	// recordsTotal counts records written to the vector store by level.
	recordsTotal *prometheus.CounterVec

	// inflight is the number of ingests currently running.
	inflight prometheus.Gauge
}

// NewMetrics registers the ingest metrics against reg. Passing a fresh
// registry keeps tests hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ingestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arandu",
			Subsystem: "ingest",
			Name:      "total",
			Help:      "Total number of finished ingests, partitioned by result.",
		}, []string{"result"}),

		stageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arandu",
			Subsystem: "ingest",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each ingest pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 180},
		}, []string{"stage"}),

		embeddingAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arandu",
			Subsystem: "embedding",
			Name:      "attempts_total",
			Help:      "Embedding alias attempts, partitioned by alias and outcome (ok, empty, error, averaged).",
		}, []string{"alias", "outcome"}),

		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arandu",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Records upserted into the vector store, partitioned by level.",
		}, []string{"level"}),

		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arandu",
			Subsystem: "ingest",
			Name:      "inflight",
			Help:      "Number of ingests currently running.",
		}),
	}
}

func (m *Metrics) start() func(err error) {
	if m == nil {
		return func(error) {}
	}
	m.inflight.Inc()
	return func(err error) {
		m.inflight.Dec()
		m.ingestsTotal.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) stage(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDurationSeconds.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) attempt(alias, outcome string) {
	if m == nil {
		return
	}
	m.embeddingAttemptsTotal.WithLabelValues(alias, outcome).Inc()
}

func (m *Metrics) records(level string, n int) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(level).Add(float64(n))
}
