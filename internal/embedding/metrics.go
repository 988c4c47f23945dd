package embedding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/ragpipe-go/internal/ratelimit"
)

// Call outcome label values.
const (
	outcomeOK        = "ok"
	outcomeTimeout   = "timeout"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

// Metrics holds the Prometheus collectors for embedding calls.
type Metrics struct {
	// callsTotal counts embedding calls by outcome.
	callsTotal *prometheus.CounterVec
	// callDuration records provider latency by outcome, excluding limiter wait.
	callDuration *prometheus.HistogramVec
	// limiterWait records the time spent waiting for a dispatch.
	limiterWait prometheus.Histogram
}

// NewMetrics registers the embedding metrics against reg. When l is non-nil
// an in-flight gauge reading the limiter is registered too.
func NewMetrics(reg prometheus.Registerer, l *ratelimit.Limiter) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpipe",
			Subsystem: "embedding",
			Name:      "calls_total",
			Help:      "Total number of embedding calls, partitioned by outcome.",
		}, []string{"outcome"}),

		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragpipe",
			Subsystem: "embedding",
			Name:      "call_duration_seconds",
			Help:      "Latency of embedding provider calls after dispatch.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"outcome"}),

		limiterWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragpipe",
			Subsystem: "limiter",
			Name:      "wait_seconds",
			Help:      "Time embedding calls spent waiting for the rate limiter.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60},
		}),
	}

	if l != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ragpipe",
			Subsystem: "limiter",
			Name:      "in_flight",
			Help:      "Number of embedding calls currently dispatched.",
		}, func() float64 { return float64(l.InFlight()) })
	}
	return m
}
