package retrieval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// outcomeContext labels sessions that produced reranked context. The other
// outcomes reuse the final stage name.
const outcomeContext = "context"

// Metrics holds the Prometheus collectors for retrieval sessions. A nil
// *Metrics records nothing.
type Metrics struct {
	sessionsTotal   *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
}

// NewMetrics registers the retrieval metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpipe",
			Subsystem: "retrieval",
			Name:      "sessions_total",
			Help:      "Total number of retrieval sessions, partitioned by outcome: context, no_context or error.",
		}, []string{"outcome"}),

		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragpipe",
			Subsystem: "retrieval",
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of retrieval sessions.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragpipe",
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each retrieval stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"stage"}),
	}
}

func (m *Metrics) session(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(outcome).Inc()
	m.sessionDuration.Observe(d.Seconds())
}

func (m *Metrics) stage(s Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(s)).Observe(d.Seconds())
}
