// Package metrics exposes the engine's decision stream as Prometheus
// collectors. It implements floodgate.MetricsRecorder; wire it in with
// floodgate.WithMetrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records rate-limit decisions, violations and auto-bans.
type Collector struct {
	decisions    *prometheus.CounterVec
	violations   *prometheus.CounterVec
	autoBans     prometheus.Counter
	evalDuration prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with the given
// registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodgate",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by action.",
		}, []string{"action"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodgate",
			Name:      "violations_total",
			Help:      "Recorded violations by kind.",
		}, []string{"kind"}),
		autoBans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodgate",
			Name:      "auto_bans_total",
			Help:      "Sources automatically banned.",
		}),
		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "floodgate",
			Name:      "evaluate_duration_seconds",
			Help:      "Latency of Evaluate calls.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}

	reg.MustRegister(c.decisions, c.violations, c.autoBans, c.evalDuration)
	return c
}

// ObserveDecision records one decision and its evaluation latency.
func (c *Collector) ObserveDecision(action string, elapsed time.Duration) {
	c.decisions.WithLabelValues(action).Inc()
	c.evalDuration.Observe(elapsed.Seconds())
}

// ObserveViolation records one violation by kind.
func (c *Collector) ObserveViolation(kind string) {
	c.violations.WithLabelValues(kind).Inc()
}

// ObserveAutoBan records one automatic ban.
func (c *Collector) ObserveAutoBan() {
	c.autoBans.Inc()
}
