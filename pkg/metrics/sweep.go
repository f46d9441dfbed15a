package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics records metadata for the stuck-payment sweep worker.
type SweepMetrics struct {
	duration *prometheus.HistogramVec
	resolved *prometheus.CounterVec
	failure  prometheus.Counter
}

// NewSweepMetrics registers the sweep metrics on the provided registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of sweep cycles in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	resolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_payments_resolved_total",
		Help: "Stuck payments resolved by the sweep, labeled by final status.",
	}, []string{"status"})
	failure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_failures_total",
		Help: "Sweep cycles that ended with an error.",
	})
	reg.MustRegister(duration, resolved, failure)
	return &SweepMetrics{
		duration: duration,
		resolved: resolved,
		failure:  failure,
	}
}

// ObserveDuration records the duration for the named job.
func (s *SweepMetrics) ObserveDuration(job string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncResolved counts a payment the sweep moved to a terminal status.
func (s *SweepMetrics) IncResolved(status string) {
	if s == nil || s.resolved == nil {
		return
	}
	s.resolved.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncFailure counts a failed sweep cycle.
func (s *SweepMetrics) IncFailure() {
	if s == nil || s.failure == nil {
		return
	}
	s.failure.Inc()
}
