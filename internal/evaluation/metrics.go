// Package evaluation exports orchestration metrics to Prometheus.
package evaluation

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"brigade/internal/models"
)

const namespace = "brigade"

// MetricsCollector records orchestration outcomes on its own registry.
type MetricsCollector struct {
	registry *prometheus.Registry
	metrics  map[string]prometheus.Collector
}

// NewMetricsCollector creates a collector with every metric registered.
func NewMetricsCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "specialist_attempts_total",
			Help:      "Specialist attempts by outcome",
		},
		[]string{"department", "outcome"},
	)

	specialistQuality := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "specialist_quality_score",
			Help:      "Final quality score of each specialist result",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"department", "review_status"},
	)

	specialistRetries := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "specialist_attempts",
			Help:      "Attempts a specialist needed before its terminal state",
			Buckets:   prometheus.LinearBuckets(1, 1, 6),
		},
		[]string{"department"},
	)

	departmentQuality := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "department_quality_score",
			Help:      "Quality score of the latest department result",
		},
		[]string{"department"},
	)

	departmentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "department_duration_seconds",
			Help:      "Time taken to process a department",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"department"},
	)

	orchestrations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orchestration_duration_seconds",
			Help:      "Time taken by a full orchestration",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"recommendation"},
	)

	overallQuality := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orchestration_overall_quality",
			Help:      "Overall quality (0-1) of the latest orchestration",
		},
	)

	tokens := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by capability invocations",
		},
		[]string{"department", "direction"},
	)

	metrics := map[string]prometheus.Collector{
		"attempts":            attempts,
		"specialist_quality":  specialistQuality,
		"specialist_retries":  specialistRetries,
		"department_quality":  departmentQuality,
		"department_duration": departmentDuration,
		"orchestrations":      orchestrations,
		"overall_quality":     overallQuality,
		"tokens":              tokens,
	}

	for _, metric := range metrics {
		registry.MustRegister(metric)
	}
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &MetricsCollector{
		registry: registry,
		metrics:  metrics,
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}

// RecordAttempt counts one specialist attempt. outcome is one of pass,
// below_threshold, error.
func (mc *MetricsCollector) RecordAttempt(department, outcome string) {
	if counter, ok := mc.metrics["attempts"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(department, outcome).Inc()
	}
}

// RecordSpecialist records a specialist's terminal result.
func (mc *MetricsCollector) RecordSpecialist(department string, status models.ReviewStatus, score float64, attempts int) {
	if histogram, ok := mc.metrics["specialist_quality"].(*prometheus.HistogramVec); ok {
		histogram.WithLabelValues(department, string(status)).Observe(score)
	}
	if histogram, ok := mc.metrics["specialist_retries"].(*prometheus.HistogramVec); ok {
		histogram.WithLabelValues(department).Observe(float64(attempts))
	}
}

// RecordDepartment records one department result.
func (mc *MetricsCollector) RecordDepartment(department string, quality float64, elapsed time.Duration) {
	if gauge, ok := mc.metrics["department_quality"].(*prometheus.GaugeVec); ok {
		gauge.WithLabelValues(department).Set(quality)
	}
	if histogram, ok := mc.metrics["department_duration"].(*prometheus.HistogramVec); ok {
		histogram.WithLabelValues(department).Observe(elapsed.Seconds())
	}
}

// RecordOrchestration records one finished orchestration.
func (mc *MetricsCollector) RecordOrchestration(recommendation string, overall float64, elapsed time.Duration) {
	if histogram, ok := mc.metrics["orchestrations"].(*prometheus.HistogramVec); ok {
		histogram.WithLabelValues(recommendation).Observe(elapsed.Seconds())
	}
	if gauge, ok := mc.metrics["overall_quality"].(prometheus.Gauge); ok {
		gauge.Set(overall)
	}
}

// RecordTokens adds token usage of one invocation.
func (mc *MetricsCollector) RecordTokens(department string, input, output int64) {
	if counter, ok := mc.metrics["tokens"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(department, "input").Add(float64(input))
		counter.WithLabelValues(department, "output").Add(float64(output))
	}
}

