package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records repository calls per entity and dispatch kind. A nil
// *Metrics records nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	results  *prometheus.HistogramVec
}

// NewMetrics registers the dispatch collectors with reg. A nil reg
// registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposit_calls_total",
				Help: "Total number of repository method calls",
			},
			[]string{"entity", "kind", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reposit_call_duration_seconds",
				Help:    "Repository method latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity", "kind"},
		),
		results: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reposit_call_results",
				Help:    "Number of records returned by select calls",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"entity", "kind"},
		),
	}
}

func (m *Metrics) observe(entity string, kind Kind, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.calls.WithLabelValues(entity, kind.String(), status).Inc()
	m.duration.WithLabelValues(entity, kind.String()).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeResults(entity string, kind Kind, n int) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(entity, kind.String()).Observe(float64(n))
}
