package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/trace"

	"obskit/internal/domain"
	"obskit/internal/infra/telemetry/diagnostics"
	"obskit/internal/infra/telemetry/logging"
	"obskit/internal/infra/telemetry/metrics"
	"obskit/internal/infra/telemetry/tracing"
)

type sequentialIDs struct {
	next atomic.Uint64
}

func (s *sequentialIDs) NewTraceID() trace.TraceID {
	var id trace.TraceID
	id[15] = byte(s.next.Add(1))
	return id
}

func (s *sequentialIDs) NewSpanID() trace.SpanID {
	var id trace.SpanID
	id[7] = byte(s.next.Add(1))
	return id
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger.EnableConsole = false
	cfg.Metrics.SamplerEnabled = false
	cfg.Diagnostics.WorkspaceDir = t.TempDir()
	cfg.Diagnostics.HealthSweepInterval = 0
	return cfg
}

func healthyProbe(name string) diagnostics.Probe {
	return diagnostics.ProbeFunc{Component: name, Fn: func(context.Context) (domain.HealthStatus, error) {
		return domain.HealthStatus{Component: name, Status: domain.HealthHealthy, Message: "ok"}, nil
	}}
}

func newTestManager(t *testing.T, cfg Config, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithDiagnosticsOptions(diagnostics.WithProbes(healthyProbe("stub")))}, opts...)
	m := NewManager(cfg, opts...)
	t.Cleanup(func() {
		_ = m.Shutdown(context.Background())
	})
	return m
}

func TestManagerLazyComponents(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	require.Nil(t, m.logger)
	tracer, err := m.Tracer()
	require.NoError(t, err)
	require.NotNil(t, tracer)
	require.NotNil(t, m.logger)

	again, err := m.Tracer()
	require.NoError(t, err)
	require.Same(t, tracer, again)

	collector, err := m.Metrics()
	require.NoError(t, err)
	require.NotNil(t, collector)

	diag, err := m.Diagnostics()
	require.NoError(t, err)
	require.NotNil(t, diag)
}

func TestManagerDisabledComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableMetrics = false
	cfg.EnableTracing = false
	cfg.EnableDiagnostics = false
	m := newTestManager(t, cfg)

	_, err := m.Tracer()
	require.ErrorIs(t, err, domain.ErrComponentDisabled)
	require.Contains(t, err.Error(), "tracer")
	_, err = m.Metrics()
	require.ErrorIs(t, err, domain.ErrComponentDisabled)
	_, err = m.Diagnostics()
	require.ErrorIs(t, err, domain.ErrComponentDisabled)
	_, err = m.CreateSnapshot(context.Background(), "", "", nil)
	require.ErrorIs(t, err, domain.ErrComponentDisabled)
	_, err = m.MetricsSummary(0)
	require.ErrorIs(t, err, domain.ErrComponentDisabled)
	_, _, err = m.TraceInfo("abc")
	require.ErrorIs(t, err, domain.ErrComponentDisabled)
	require.Nil(t, m.PerformHealthChecks(context.Background()))

	logger, err := m.Logger()
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestManagerShutdown(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	op := m.StartOperation("deploy", domain.LogContext{})

	tracer, err := m.Tracer()
	require.NoError(t, err)
	require.Len(t, tracer.ActiveSpans(), 1)

	require.NoError(t, m.Shutdown(context.Background()))

	span, ok := tracer.Span(op.SpanID())
	require.True(t, ok)
	require.Equal(t, domain.SpanStatusError, span.Status)
	require.Equal(t, "true", span.Tags[domain.TagAborted])

	_, err = m.Logger()
	require.ErrorIs(t, err, domain.ErrManagerShutdown)
	_, err = m.Tracer()
	require.ErrorIs(t, err, domain.ErrManagerShutdown)
	_, err = m.Metrics()
	require.ErrorIs(t, err, domain.ErrManagerShutdown)
	_, err = m.Diagnostics()
	require.ErrorIs(t, err, domain.ErrManagerShutdown)
	require.ErrorIs(t, m.Start(context.Background()), domain.ErrManagerShutdown)

	require.NoError(t, m.Shutdown(context.Background()))
	op.End(true, nil, domain.LogContext{})
}

func TestManagerStartRunsSampler(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.SamplerEnabled = true
	cfg.Metrics.SampleInterval = 10 * time.Millisecond
	m := newTestManager(t, cfg)

	require.NoError(t, m.Start(context.Background()))
	collector, err := m.Metrics()
	require.NoError(t, err)
	require.True(t, collector.SamplerRunning())
	require.Eventually(t, func() bool {
		return len(collector.Metrics("system_goroutines", 0)) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Shutdown(context.Background()))
	require.False(t, collector.SamplerRunning())
}

func TestManagerHealthSweepWarns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Diagnostics.HealthSweepInterval = 10 * time.Millisecond
	var calls atomic.Int32
	failing := diagnostics.ProbeFunc{Component: "flaky", Fn: func(context.Context) (domain.HealthStatus, error) {
		calls.Add(1)
		return domain.HealthStatus{}, errors.New("probe exploded")
	}}
	m := NewManager(cfg, WithDiagnosticsOptions(diagnostics.WithProbes(failing, healthyProbe("stub"))))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	require.NoError(t, m.Start(context.Background()))
	logger, err := m.Logger()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(logger.RecentLogs(10, domain.LogLevelWarn, "health_check")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	warnings := logger.RecentLogs(10, domain.LogLevelWarn, "health_check")
	require.Equal(t, "flaky", warnings[0].Metadata["component"])
	require.Positive(t, calls.Load())
}

func TestManagerPassThroughs(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	op := m.StartOperation("sync", domain.LogContext{Workspace: "prod"})
	op.End(true, nil, domain.LogContext{})

	logs, err := m.Logs(10, "", "sync")
	require.NoError(t, err)
	require.Len(t, logs, 2)

	summary, err := m.MetricsSummary(time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, summary.UniqueOperations)

	tree, traceSummary, err := m.TraceInfo(op.TraceID())
	require.NoError(t, err)
	require.Len(t, tree.Roots, 1)
	require.Equal(t, 1, traceSummary.SpanCount)
	require.Zero(t, traceSummary.ErrorCount)

	tree, traceSummary, err = m.TraceInfo("missing")
	require.NoError(t, err)
	require.Empty(t, tree.Roots)
	require.Zero(t, traceSummary.SpanCount)

	health, err := m.HealthStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, health, 1)
	require.Equal(t, "stub", health[0].Component)

	snapshot, err := m.CreateSnapshot(context.Background(), "prod", "sync", errors.New("boom"))
	require.NoError(t, err)
	require.NotEmpty(t, snapshot.ID)
	require.NotEmpty(t, snapshot.Logs)
	require.NotEmpty(t, snapshot.Metrics)
	require.Equal(t, "boom", snapshot.Error.Message)
}

func TestManagerSnapshotListsOpenOperations(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	op := m.StartOperation("apply", domain.LogContext{Workspace: "prod"})
	snapshot, err := m.CreateSnapshot(context.Background(), "prod", "apply", nil)
	require.NoError(t, err)
	require.Equal(t, 1, snapshot.ActiveSpanCount)
	require.Len(t, snapshot.PendingSpans, 1)
	require.Equal(t, op.SpanID(), snapshot.PendingSpans[0].SpanID)
	require.Equal(t, "apply", snapshot.PendingSpans[0].Operation)

	op.End(true, nil, domain.LogContext{})
	snapshot, err = m.CreateSnapshot(context.Background(), "prod", "apply", nil)
	require.NoError(t, err)
	require.Zero(t, snapshot.ActiveSpanCount)
	require.Empty(t, snapshot.PendingSpans)
}

func TestManagerSnapshotWithTracingDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableTracing = false
	m := newTestManager(t, cfg)

	m.StartOperation("apply", domain.LogContext{})
	snapshot, err := m.CreateSnapshot(context.Background(), "prod", "apply", nil)
	require.NoError(t, err)
	require.Zero(t, snapshot.ActiveSpanCount)
}

func TestManagerSnapshotHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Diagnostics.HistoryPath = filepath.Join(t.TempDir(), "history.db")
	m := newTestManager(t, cfg)

	snapshot, err := m.CreateSnapshot(context.Background(), "", "plan", nil)
	require.NoError(t, err)

	diag, err := m.Diagnostics()
	require.NoError(t, err)
	records, err := diag.History(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, snapshot.ID, records[0].ID)
}

func TestManagerReset(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	op := m.StartOperation("apply", domain.LogContext{})
	op.End(false, errors.New("terraform exited 1"), domain.LogContext{})

	logger, err := m.Logger()
	require.NoError(t, err)
	collector, err := m.Metrics()
	require.NoError(t, err)
	tracer, err := m.Tracer()
	require.NoError(t, err)
	require.NotZero(t, logger.Len())
	require.NotZero(t, collector.Len())
	require.NotEmpty(t, tracer.CompletedSpans())

	m.Reset()
	require.Zero(t, logger.Len())
	require.Zero(t, collector.Len())
	require.Empty(t, tracer.CompletedSpans())
}

func TestManagerApplyConfigChangesLevel(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	logger, err := m.Logger()
	require.NoError(t, err)

	logger.Debug("hidden", domain.LogContext{}, nil)
	cfg := m.Config()
	cfg.Logger.Level = domain.LogLevelDebug
	m.ApplyConfig(cfg)
	logger.Debug("visible", domain.LogContext{}, nil)

	debug := logger.RecentLogs(10, domain.LogLevelDebug, "")
	require.Len(t, debug, 1)
	assert.Equal(t, "visible", debug[0].Message)
	assert.Equal(t, domain.LogLevelDebug, m.Config().Logger.Level)
}

func TestManagerExportsToPrometheus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newTestManager(t, testConfig(t), WithRegisterer(registry))

	collector, err := m.Metrics()
	require.NoError(t, err)
	collector.Record("queue_depth", 7, domain.UnitCount, nil, "")

	count, err := testutil.GatherAndCount(registry, "obskit_metric_observations_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestManagerSpanLogsLinkToOperation(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	op := m.StartOperation("plan", domain.LogContext{})
	scope := m.CreateScope("plan", domain.LogContext{CorrelationID: op.CorrelationID()})
	scope.Info("resolving providers", nil)
	op.End(true, nil, domain.LogContext{})

	tracer, err := m.Tracer()
	require.NoError(t, err)
	span, ok := tracer.Span(op.SpanID())
	require.True(t, ok)
	require.Equal(t, domain.SpanStatusSuccess, span.Status)
	messages := make([]string, 0, len(span.Logs))
	for _, entry := range span.Logs {
		messages = append(messages, entry.Message)
	}
	require.Equal(t, []string{"Starting plan", "resolving providers", "Operation plan completed"}, messages)
}

func TestInitializeReplacesDefault(t *testing.T) {
	first, err := Initialize(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.Same(t, first, Default())

	second, err := Initialize(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.Same(t, second, Default())
	require.NotSame(t, first, second)

	_, err = first.Logger()
	require.ErrorIs(t, err, domain.ErrManagerShutdown)
	require.NoError(t, second.Shutdown(context.Background()))
}

func TestManagerComponentOptions(t *testing.T) {
	m := newTestManager(t, testConfig(t),
		WithLoggerOptions(logging.WithSessionID("session-42")),
		WithTracerOptions(tracing.WithIDGenerator(&sequentialIDs{})),
		WithMetricsOptions(metrics.WithHeapReader(func() uint64 { return 4096 })),
	)

	op := m.StartOperation("sync", domain.LogContext{})
	op.End(true, nil, domain.LogContext{})
	require.Equal(t, "00000000000000000000000000000001", op.TraceID())
	require.Equal(t, "0000000000000002", op.SpanID())

	logger, err := m.Logger()
	require.NoError(t, err)
	require.Equal(t, "session-42", logger.SessionID())
	entries := logger.LogsByCorrelationID(op.CorrelationID())
	require.NotEmpty(t, entries)
	require.Equal(t, "session-42", entries[0].Context.SessionID)

	collector, err := m.Metrics()
	require.NoError(t, err)
	collector.RecordMemoryUsage("sync")
	heap := collector.Metrics("memory_heap_used", 0)
	require.Len(t, heap, 1)
	require.Equal(t, 4096.0, heap[0].Value)
}

type recordingSink struct {
	names []string
}

func (s *recordingSink) Observe(metric domain.Metric) {
	s.names = append(s.names, metric.Name)
}

func TestManagerMetricSinks(t *testing.T) {
	sink := &recordingSink{}
	registry := prometheus.NewRegistry()
	m := newTestManager(t, testConfig(t), WithRegisterer(registry), WithMetricSink(sink), WithMetricSink(nil))

	collector, err := m.Metrics()
	require.NoError(t, err)
	collector.Record("plan_items", 3, domain.UnitCount, nil, "plan")

	require.Equal(t, []string{"plan_items"}, sink.names)
	count, err := testutil.GatherAndCount(registry, "obskit_metric_observations_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
