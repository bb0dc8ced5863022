// Package admission provides Prometheus metrics.
package admission

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics implements Metrics on a private Prometheus registry.
type PromMetrics struct {
	registry   *prometheus.Registry
	checks     *prometheus.CounterVec
	violations *prometheus.CounterVec
	ruleErrors *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPromMetrics constructs and registers the collectors.
func NewPromMetrics(namespace string) *PromMetrics {
	if namespace == "" {
		namespace = "admission"
	}
	m := &PromMetrics{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Admission checks by result, algorithm and scope.",
		}, []string{"result", "algorithm", "scope"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Quota violations by rule and action.",
		}, []string{"rule", "action"}),
		ruleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_errors_total",
			Help:      "Rules that failed open during evaluation.",
		}, []string{"rule"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of evaluator operations.",
			Buckets:   prometheus.ExponentialBuckets(0.000005, 4, 10),
		}, []string{"op"}),
	}
	m.registry.MustRegister(m.checks, m.violations, m.ruleErrors, m.latency)
	return m
}

// IncCheck increments a check counter.
func (m *PromMetrics) IncCheck(result string, algorithm string, scope string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(result, algorithm, scope).Inc()
}

// ObserveLatency tracks latency measurements.
func (m *PromMetrics) ObserveLatency(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// IncViolation increments violation counters.
func (m *PromMetrics) IncViolation(ruleID string, action string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(ruleID, action).Inc()
}

// IncRuleError increments fail-open counters.
func (m *PromMetrics) IncRuleError(ruleID string) {
	if m == nil {
		return
	}
	m.ruleErrors.WithLabelValues(ruleID).Inc()
}

// Handler exposes the registry in Prometheus text format.
func (m *PromMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
