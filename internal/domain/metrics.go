package domain

import "time"

// Units used by the metrics collector.
const (
	UnitMilliseconds = "ms"
	UnitSeconds      = "s"
	UnitBytes        = "bytes"
	UnitCount        = "count"
	UnitPercent      = "percent"
)

// Metric tag keys shared by recorders and the summary.
const (
	MetricTagType       = "type"
	MetricTagSuccess    = "success"
	MetricTagOperation  = "operation"
	MetricTagEndpoint   = "endpoint"
	MetricTagMethod     = "method"
	MetricTagStatusCode = "status_code"
	MetricTagTool       = "tool"
)

// Metric is one immutable numeric measurement.
type Metric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags"`
	Operation string            `json:"operation,omitempty"`
}

func (m Metric) Clone() Metric {
	out := m
	out.Tags = CloneStringMap(m.Tags)
	if out.Tags == nil {
		out.Tags = map[string]string{}
	}
	return out
}

type MemoryUsageSummary struct {
	Current uint64 `json:"current"`
	Peak    uint64 `json:"peak"`
}

// MetricsSummary aggregates the metrics recorded inside a time window.
type MetricsSummary struct {
	Window           time.Duration      `json:"-"`
	WindowMs         int64              `json:"timeWindow"`
	TotalMetrics     int                `json:"totalMetrics"`
	UniqueOperations int                `json:"uniqueOperations"`
	AvgResponseTime  float64            `json:"avgResponseTime"`
	ErrorRate        float64            `json:"errorRate"`
	MemoryUsage      MemoryUsageSummary `json:"memoryUsage"`
}

// MetricSink receives every metric after it is buffered.
type MetricSink interface {
	Observe(metric Metric)
}
