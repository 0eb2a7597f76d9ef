package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obskit/internal/domain"
)

func TestNewPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())
	assert.NotNil(t, m)
	assert.NotNil(t, m.observations)
	assert.NotNil(t, m.lastValue)
	assert.NotNil(t, m.operationDuration)
	assert.NotNil(t, m.failures)
	assert.NotNil(t, m.systemValue)
}

func TestNewPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.Observe(domain.Metric{
		Name:      "sync_duration",
		Value:     1500,
		Unit:      domain.UnitMilliseconds,
		Tags:      map[string]string{domain.MetricTagSuccess: "false"},
		Operation: "sync",
	})
	m.Observe(domain.Metric{
		Name:  "system_memory_heap_used",
		Value: 1024,
		Unit:  domain.UnitBytes,
		Tags:  map[string]string{domain.MetricTagType: domain.SystemMetricTag},
	})

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}

	assert.Contains(t, names, "obskit_metric_observations_total")
	assert.Contains(t, names, "obskit_metric_last_value")
	assert.Contains(t, names, "obskit_operation_duration_seconds")
	assert.Contains(t, names, "obskit_operation_failures_total")
	assert.Contains(t, names, "obskit_system_value")
}

func TestPrometheusMetrics_Observe(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	m.Observe(domain.Metric{Name: "api_response_time", Value: 250, Unit: domain.UnitMilliseconds, Tags: map[string]string{domain.MetricTagSuccess: "true", domain.MetricTagOperation: "fetch"}})
	m.Observe(domain.Metric{Name: "api_response_time", Value: 100, Unit: domain.UnitMilliseconds, Tags: map[string]string{domain.MetricTagSuccess: "true", domain.MetricTagOperation: "fetch"}})
	m.Observe(domain.Metric{Name: "error_count", Value: 1, Unit: domain.UnitCount, Operation: "fetch"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.observations.WithLabelValues("api_response_time", domain.UnitMilliseconds)))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.lastValue.WithLabelValues("api_response_time", domain.UnitMilliseconds)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("fetch")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))

	expected := `
# HELP obskit_operation_failures_total Total number of metrics flagged as failures
# TYPE obskit_operation_failures_total counter
obskit_operation_failures_total{operation="fetch"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m.failures, strings.NewReader(expected)))
}

func TestMetricClassifiers(t *testing.T) {
	assert.True(t, IsDurationMetric("terraform_plan_duration"))
	assert.True(t, IsDurationMetric("api_response_time"))
	assert.False(t, IsDurationMetric("memory_heap_used"))

	assert.True(t, IsFailureMetric(domain.Metric{Name: "error_count"}))
	assert.True(t, IsFailureMetric(domain.Metric{Name: "x", Tags: map[string]string{domain.MetricTagSuccess: "false"}}))
	assert.False(t, IsFailureMetric(domain.Metric{Name: "x", Tags: map[string]string{domain.MetricTagSuccess: "true"}}))
}

func TestMetricSinksFanOut(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)
	sinks := MetricSinks{NewNoopMetrics(), nil, m}

	sinks.Observe(domain.Metric{Name: "count", Value: 3, Unit: domain.UnitCount})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.lastValue.WithLabelValues("count", domain.UnitCount)))
}
