package telemetry

import "obskit/internal/domain"

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) Observe(_ domain.Metric) {}

var _ domain.MetricSink = (*NoopMetrics)(nil)

// MetricSinks fans a metric out to several sinks in order.
type MetricSinks []domain.MetricSink

func (s MetricSinks) Observe(metric domain.Metric) {
	for _, sink := range s {
		if sink != nil {
			sink.Observe(metric)
		}
	}
}

var _ domain.MetricSink = MetricSinks(nil)
