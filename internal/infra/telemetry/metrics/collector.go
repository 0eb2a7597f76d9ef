package metrics

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"obskit/internal/domain"
	"obskit/internal/infra/telemetry"
	"obskit/internal/infra/telemetry/buffer"
)

// Logger is the subset of the kernel logger the collector reports through.
type Logger interface {
	Debug(message string, lctx domain.LogContext, metadata map[string]any)
	Warn(message string, lctx domain.LogContext, metadata map[string]any)
}

type Option func(*Collector)

// WithSink forwards every recorded metric to sink.
func WithSink(sink domain.MetricSink) Option {
	return func(c *Collector) {
		if sink != nil {
			c.sink = sink
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

func WithProcessStats(stats ProcessStats) Option {
	return func(c *Collector) {
		c.stats = stats
	}
}

// WithHeapReader replaces the runtime heap reader used for memory metrics.
func WithHeapReader(read func() uint64) Option {
	return func(c *Collector) {
		if read != nil {
			c.heap = read
		}
	}
}

type timer struct {
	start time.Time
	tags  map[string]string
}

// Collector buffers metrics in a bounded ring and tracks named timers.
type Collector struct {
	logger  Logger
	sink    domain.MetricSink
	now     func() time.Time
	heap    func() uint64
	stats   ProcessStats
	entries *buffer.Ring[domain.Metric]
	started time.Time

	mu         sync.Mutex
	timers     map[string]timer
	peakMemory uint64

	sampler samplerState
}

func New(cfg domain.MetricsConfig, logger Logger, opts ...Option) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = domain.DefaultMetricBufferSize
	}
	c := &Collector{
		logger:  logger,
		sink:    telemetry.NewNoopMetrics(),
		now:     time.Now,
		heap:    readHeapAlloc,
		stats:   NewProcfsStats(),
		entries: buffer.NewRing[domain.Metric](cfg.BufferSize),
		timers:  make(map[string]timer),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.started = c.now()
	return c
}

// Record appends one metric. operation falls back to the operation tag.
func (c *Collector) Record(name string, value float64, unit string, tags map[string]string, operation string) {
	metric := domain.Metric{
		Name:      name,
		Value:     value,
		Unit:      unit,
		Timestamp: c.now(),
		Tags:      domain.MergeStringMaps(nil, tags),
		Operation: operation,
	}
	if metric.Operation == "" {
		metric.Operation = metric.Tags[domain.MetricTagOperation]
	}
	if unit == domain.UnitBytes && strings.Contains(name, "memory") && value >= 0 {
		c.mu.Lock()
		if uint64(value) > c.peakMemory {
			c.peakMemory = uint64(value)
		}
		c.mu.Unlock()
	}
	c.entries.Add(metric)
	c.sink.Observe(metric.Clone())
}

// StartTimer starts, or restarts, the timer called name.
func (c *Collector) StartTimer(name string, tags map[string]string) {
	c.mu.Lock()
	_, running := c.timers[name]
	c.timers[name] = timer{start: c.now(), tags: domain.MergeStringMaps(nil, tags)}
	c.mu.Unlock()
	if running {
		c.debug("Timer restarted", map[string]any{"timer": name})
	}
}

// EndTimer stops the timer called name, records its duration in milliseconds
// and returns it. A timer that was never started yields 0.
func (c *Collector) EndTimer(name string, tags map[string]string) float64 {
	c.mu.Lock()
	started, ok := c.timers[name]
	delete(c.timers, name)
	c.mu.Unlock()
	if !ok {
		c.warn("Timer not found", map[string]any{"timer": name})
		return 0
	}
	elapsed := c.now().Sub(started.start)
	if elapsed < 0 {
		elapsed = 0
	}
	durationMs := float64(elapsed) / float64(time.Millisecond)
	c.Record(name, durationMs, domain.UnitMilliseconds, domain.MergeStringMaps(started.tags, tags), "")
	return durationMs
}

// Timers returns the names of running timers.
func (c *Collector) Timers() []string {
	c.mu.Lock()
	names := make([]string, 0, len(c.timers))
	for name := range c.timers {
		names = append(names, name)
	}
	c.mu.Unlock()
	sort.Strings(names)
	return names
}

func (c *Collector) RecordDuration(operation string, duration time.Duration, tags map[string]string) {
	c.Record(operation+"_duration", toMs(duration), domain.UnitMilliseconds, tags, operation)
}

// RecordMemoryUsage records the current heap and, when available, RSS.
func (c *Collector) RecordMemoryUsage(operation string) {
	tags := map[string]string{}
	if operation != "" {
		tags[domain.MetricTagOperation] = operation
	}
	c.Record("memory_heap_used", float64(c.heap()), domain.UnitBytes, tags, operation)
	if c.stats == nil {
		return
	}
	if rss, err := c.stats.RSSBytes(); err == nil {
		c.Record("memory_rss", float64(rss), domain.UnitBytes, tags, operation)
	}
}

func (c *Collector) RecordAPIResponseTime(endpoint, method string, statusCode int, duration time.Duration) {
	c.Record("api_response_time", toMs(duration), domain.UnitMilliseconds, map[string]string{
		domain.MetricTagEndpoint:   endpoint,
		domain.MetricTagMethod:     method,
		domain.MetricTagStatusCode: strconv.Itoa(statusCode),
		domain.MetricTagSuccess:    strconv.FormatBool(statusCode > 0 && statusCode < 400),
	}, "")
}

func (c *Collector) RecordDBQueryTime(query string, duration time.Duration, success bool) {
	c.Record("db_query_duration", toMs(duration), domain.UnitMilliseconds, map[string]string{
		domain.MetricTagOperation: query,
		domain.MetricTagSuccess:   strconv.FormatBool(success),
	}, query)
}

func (c *Collector) RecordTerraformOperation(operation string, duration time.Duration, success bool) {
	c.Record(fmt.Sprintf("terraform_%s_duration", operation), toMs(duration), domain.UnitMilliseconds, map[string]string{
		domain.MetricTagTool:    "terraform",
		domain.MetricTagSuccess: strconv.FormatBool(success),
	}, "terraform_"+operation)
}

// RecordAnsibleOperation records the playbook duration and, when known, the
// number of hosts it ran against.
func (c *Collector) RecordAnsibleOperation(playbook string, duration time.Duration, success bool, hostCount int) {
	tags := map[string]string{
		domain.MetricTagTool:    "ansible",
		domain.MetricTagSuccess: strconv.FormatBool(success),
		"playbook":              playbook,
	}
	c.Record("ansible_playbook_duration", toMs(duration), domain.UnitMilliseconds, tags, "ansible_playbook")
	if hostCount > 0 {
		c.Record("ansible_hosts", float64(hostCount), domain.UnitCount, tags, "ansible_playbook")
	}
}

func (c *Collector) RecordSyncOperation(kind string, duration time.Duration, success bool, items int) {
	tags := map[string]string{
		domain.MetricTagSuccess: strconv.FormatBool(success),
		"sync_type":             kind,
	}
	operation := "sync_" + kind
	c.Record(operation+"_duration", toMs(duration), domain.UnitMilliseconds, tags, operation)
	c.Record(operation+"_items", float64(items), domain.UnitCount, tags, operation)
}

func (c *Collector) RecordErrorCount(operation string, category domain.ErrorCategory) {
	c.Record("error_count", 1, domain.UnitCount, map[string]string{
		"category": string(category),
	}, operation)
}

// Metrics returns up to limit of the newest metrics, optionally filtered by
// name, in chronological order. limit <= 0 means the default query limit.
func (c *Collector) Metrics(name string, limit int) []domain.Metric {
	if limit <= 0 {
		limit = domain.DefaultMetricsQueryLimit
	}
	return cloneMetrics(c.entries.Filter(func(metric domain.Metric) bool {
		return name == "" || metric.Name == name
	}, limit))
}

func (c *Collector) MetricsByOperation(operation string, limit int) []domain.Metric {
	if limit <= 0 {
		limit = domain.DefaultMetricsQueryLimit
	}
	return cloneMetrics(c.entries.Filter(func(metric domain.Metric) bool {
		return metric.Operation == operation
	}, limit))
}

func (c *Collector) Tail(n int) []domain.Metric {
	return cloneMetrics(c.entries.Tail(n))
}

func (c *Collector) Len() int {
	return c.entries.Len()
}

// Summary aggregates the metrics recorded within window of now.
func (c *Collector) Summary(window time.Duration) domain.MetricsSummary {
	if window <= 0 {
		window = domain.DefaultSummaryWindow
	}
	cutoff := c.now().Add(-window)
	inWindow := c.entries.Filter(func(metric domain.Metric) bool {
		return !metric.Timestamp.Before(cutoff)
	}, 0)

	summary := domain.MetricsSummary{
		Window:       window,
		WindowMs:     window.Milliseconds(),
		TotalMetrics: len(inWindow),
	}
	operations := make(map[string]struct{})
	var durationSum float64
	var durationCount, failures int
	for _, metric := range inWindow {
		if metric.Operation != "" {
			operations[metric.Operation] = struct{}{}
		}
		if telemetry.IsDurationMetric(metric.Name) {
			durationSum += metric.Value
			durationCount++
		}
		if telemetry.IsFailureMetric(metric) {
			failures++
		}
	}
	summary.UniqueOperations = len(operations)
	if durationCount > 0 {
		summary.AvgResponseTime = durationSum / float64(durationCount)
	}
	if len(inWindow) > 0 {
		summary.ErrorRate = float64(failures) / float64(len(inWindow))
	}

	current := c.heap()
	c.mu.Lock()
	if current > c.peakMemory {
		c.peakMemory = current
	}
	summary.MemoryUsage = domain.MemoryUsageSummary{Current: current, Peak: c.peakMemory}
	c.mu.Unlock()
	return summary
}

// Clear drops buffered metrics, running timers and the memory peak.
func (c *Collector) Clear() {
	c.entries.Reset()
	c.mu.Lock()
	c.timers = make(map[string]timer)
	c.peakMemory = 0
	c.mu.Unlock()
}

func (c *Collector) warn(message string, metadata map[string]any) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(message, domain.LogContext{}, metadata)
}

func (c *Collector) debug(message string, metadata map[string]any) {
	if c.logger == nil {
		return
	}
	c.logger.Debug(message, domain.LogContext{}, metadata)
}

func readHeapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

func toMs(duration time.Duration) float64 {
	if duration < 0 {
		return 0
	}
	return float64(duration) / float64(time.Millisecond)
}

func cloneMetrics(metrics []domain.Metric) []domain.Metric {
	out := make([]domain.Metric, 0, len(metrics))
	for _, metric := range metrics {
		out = append(out, metric.Clone())
	}
	return out
}
