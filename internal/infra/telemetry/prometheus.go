package telemetry

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"obskit/internal/domain"
)

// PrometheusMetrics exports kernel metrics to a Prometheus registry.
type PrometheusMetrics struct {
	observations      *prometheus.CounterVec
	lastValue         *prometheus.GaugeVec
	operationDuration *prometheus.HistogramVec
	failures          *prometheus.CounterVec
	systemValue       *prometheus.GaugeVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		observations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obskit_metric_observations_total",
				Help: "Total number of recorded metric observations",
			},
			[]string{"name", "unit"},
		),
		lastValue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "obskit_metric_last_value",
				Help: "Most recent value recorded for a metric",
			},
			[]string{"name", "unit"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "obskit_operation_duration_seconds",
				Help:    "Duration of observed operations in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"operation", "success"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obskit_operation_failures_total",
				Help: "Total number of metrics flagged as failures",
			},
			[]string{"operation"},
		),
		systemValue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "obskit_system_value",
				Help: "Latest process sample recorded by the system sampler",
			},
			[]string{"name", "unit"},
		),
	}
}

func (p *PrometheusMetrics) Observe(metric domain.Metric) {
	p.observations.WithLabelValues(metric.Name, metric.Unit).Inc()
	p.lastValue.WithLabelValues(metric.Name, metric.Unit).Set(metric.Value)

	if metric.Tags[domain.MetricTagType] == domain.SystemMetricTag {
		p.systemValue.WithLabelValues(metric.Name, metric.Unit).Set(metric.Value)
	}

	operation := metricOperation(metric)
	if IsDurationMetric(metric.Name) && metric.Unit == domain.UnitMilliseconds {
		success := metric.Tags[domain.MetricTagSuccess]
		if success == "" {
			success = "unknown"
		}
		p.operationDuration.WithLabelValues(operation, success).Observe(metric.Value / 1000)
	}
	if IsFailureMetric(metric) {
		p.failures.WithLabelValues(operation).Inc()
	}
}

var _ domain.MetricSink = (*PrometheusMetrics)(nil)

// IsDurationMetric reports whether a metric name denotes a timing.
func IsDurationMetric(name string) bool {
	return strings.Contains(name, "duration") || strings.Contains(name, "response_time")
}

// IsFailureMetric reports whether a metric counts toward the error rate.
func IsFailureMetric(metric domain.Metric) bool {
	return metric.Tags[domain.MetricTagSuccess] == "false" || strings.Contains(metric.Name, "error")
}

func metricOperation(metric domain.Metric) string {
	if metric.Operation != "" {
		return metric.Operation
	}
	if op := metric.Tags[domain.MetricTagOperation]; op != "" {
		return op
	}
	return metric.Name
}
