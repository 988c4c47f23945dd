package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"

	outcomeOK           = "ok"
	outcomeError        = "error"
	outcomePartial      = "partial"
	outcomeDisconnected = "disconnected"

	opEmbed  = "embed"
	opDelete = "delete"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// retrieveRequestsTotal counts completed /api/retrieve streams,
	// partitioned by outcome: "ok", "error", or "disconnected".
	retrieveRequestsTotal *prometheus.CounterVec

	// retrieveDurationSeconds records the wall-clock duration of each
	// /api/retrieve stream from first byte received to the done event.
	retrieveDurationSeconds *prometheus.HistogramVec

	// retrieveActiveStreams is the number of /api/retrieve SSE streams currently open.
	retrieveActiveStreams prometheus.Gauge

	// documentsTotal counts document operations by operation and outcome.
	documentsTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		retrieveRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpipe",
			Subsystem: "retrieve",
			Name:      "requests_total",
			Help:      "Total number of /api/retrieve streams completed, partitioned by outcome.",
		}, []string{"outcome"}),

		retrieveDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragpipe",
			Subsystem: "retrieve",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/retrieve streams from receipt to the done event.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		retrieveActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragpipe",
			Subsystem: "retrieve",
			Name:      "active_streams",
			Help:      "Number of /api/retrieve SSE streams currently open.",
		}),

		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpipe",
			Subsystem: "documents",
			Name:      "requests_total",
			Help:      "Total number of document embed and delete requests, partitioned by operation and outcome.",
		}, []string{"operation", "outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpipe",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragpipe",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

func (m *serverMetrics) observeRetrieve(outcome string, d time.Duration) {
	m.retrieveRequestsTotal.WithLabelValues(outcome).Inc()
	m.retrieveDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *serverMetrics) observeDocument(op, outcome string) {
	m.documentsTotal.WithLabelValues(op, outcome).Inc()
}

// instrument records request count and latency for the named handler.
func (s *Server) instrument(name string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}
