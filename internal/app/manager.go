package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"obskit/internal/domain"
	"obskit/internal/infra/telemetry"
	"obskit/internal/infra/telemetry/diagnostics"
	"obskit/internal/infra/telemetry/logging"
	"obskit/internal/infra/telemetry/metrics"
	"obskit/internal/infra/telemetry/tracing"
)

// Config is the process-wide observability configuration.
type Config struct {
	Logger            domain.LoggerConfig
	EnableMetrics     bool
	EnableTracing     bool
	EnableDiagnostics bool
	Metrics           domain.MetricsConfig
	Tracing           domain.TracingConfig
	Diagnostics       domain.DiagnosticsConfig
	Observability     domain.ObservabilityServerConfig
}

// DefaultConfig enables every component.
func DefaultConfig() Config {
	return Config{
		Logger:            domain.DefaultLoggerConfig(),
		EnableMetrics:     true,
		EnableTracing:     true,
		EnableDiagnostics: true,
		Metrics:           domain.DefaultMetricsConfig(),
		Tracing:           domain.DefaultTracingConfig(),
		Diagnostics:       domain.DefaultDiagnosticsConfig(),
	}
}

type Option func(*Manager)

func WithLoggerOptions(opts ...logging.Option) Option {
	return func(m *Manager) {
		m.loggerOpts = append(m.loggerOpts, opts...)
	}
}

func WithTracerOptions(opts ...tracing.Option) Option {
	return func(m *Manager) {
		m.tracerOpts = append(m.tracerOpts, opts...)
	}
}

func WithMetricsOptions(opts ...metrics.Option) Option {
	return func(m *Manager) {
		m.metricsOpts = append(m.metricsOpts, opts...)
	}
}

func WithDiagnosticsOptions(opts ...diagnostics.Option) Option {
	return func(m *Manager) {
		m.diagnosticsOpts = append(m.diagnosticsOpts, opts...)
	}
}

// WithRegisterer exports every recorded metric to a Prometheus registry.
// A registerer that is also a Gatherer backs the exporter's /metrics.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(m *Manager) {
		m.registerer = registerer
		if gatherer, ok := registerer.(prometheus.Gatherer); ok {
			m.gatherer = gatherer
		}
	}
}

// WithListenAddress pins the exporter address over observability.listenAddress,
// including across config reloads.
func WithListenAddress(addr string) Option {
	return func(m *Manager) {
		m.listenAddr = strings.TrimSpace(addr)
	}
}

// WithExporterLogger sets the process logger used by the HTTP exporter.
func WithExporterLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.exporterLog = logger
	}
}

// WithMetricSink forwards every recorded metric to sink as well.
func WithMetricSink(sink domain.MetricSink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sinks = append(m.sinks, sink)
		}
	}
}

// Manager owns the kernel components. Components are constructed on first
// use; the logger is built first and injected into the others.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	loggerOpts      []logging.Option
	tracerOpts      []tracing.Option
	metricsOpts     []metrics.Option
	diagnosticsOpts []diagnostics.Option
	registerer      prometheus.Registerer
	gatherer        prometheus.Gatherer
	sinks           []domain.MetricSink
	listenAddr      string
	exporterLog     *zap.Logger

	logger      *logging.Logger
	tracer      *tracing.Tracer
	metrics     *metrics.Collector
	diagnostics *diagnostics.Collector
	prom        *telemetry.PrometheusMetrics
	exporter    *telemetry.Exporter

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
	closed      bool
}

func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *Manager) Logger() (*logging.Logger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, domain.ErrManagerShutdown
	}
	return m.loggerLocked(), nil
}

func (m *Manager) Tracer() (*tracing.Tracer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracerLocked()
}

func (m *Manager) Metrics() (*metrics.Collector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metricsLocked()
}

func (m *Manager) Diagnostics() (*diagnostics.Collector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diagnosticsLocked()
}

func (m *Manager) loggerLocked() *logging.Logger {
	if m.logger == nil {
		m.logger = logging.New(m.cfg.Logger, m.loggerOpts...)
	}
	return m.logger
}

func (m *Manager) tracerLocked() (*tracing.Tracer, error) {
	if m.closed {
		return nil, domain.ErrManagerShutdown
	}
	if !m.cfg.EnableTracing {
		return nil, fmt.Errorf("tracer: %w", domain.ErrComponentDisabled)
	}
	if m.tracer == nil {
		logger := m.loggerLocked()
		m.tracer = tracing.New(m.cfg.Tracing, logger, m.tracerOpts...)
		logger.SetSpanSink(m.tracer)
	}
	return m.tracer, nil
}

func (m *Manager) metricsLocked() (*metrics.Collector, error) {
	if m.closed {
		return nil, domain.ErrManagerShutdown
	}
	if !m.cfg.EnableMetrics {
		return nil, fmt.Errorf("metrics: %w", domain.ErrComponentDisabled)
	}
	if m.metrics == nil {
		opts := m.metricsOpts
		var sinks telemetry.MetricSinks
		if m.registerer != nil {
			if m.prom == nil {
				m.prom = telemetry.NewPrometheusMetrics(m.registerer)
			}
			sinks = append(sinks, m.prom)
		}
		sinks = append(sinks, m.sinks...)
		switch len(sinks) {
		case 0:
		case 1:
			opts = append([]metrics.Option{metrics.WithSink(sinks[0])}, opts...)
		default:
			opts = append([]metrics.Option{metrics.WithSink(sinks)}, opts...)
		}
		m.metrics = metrics.New(m.cfg.Metrics, m.loggerLocked(), opts...)
	}
	return m.metrics, nil
}

func (m *Manager) diagnosticsLocked() (*diagnostics.Collector, error) {
	if m.closed {
		return nil, domain.ErrManagerShutdown
	}
	if !m.cfg.EnableDiagnostics {
		return nil, fmt.Errorf("diagnostics: %w", domain.ErrComponentDisabled)
	}
	if m.diagnostics == nil {
		logger := m.loggerLocked()
		opts := m.diagnosticsOpts
		if path := m.cfg.Diagnostics.HistoryPath; path != "" {
			history, err := diagnostics.OpenHistory(path)
			if err != nil {
				logger.Warn("Snapshot history unavailable", domain.LogContext{Operation: "diagnostics"}, map[string]any{
					"path":  path,
					"error": err.Error(),
				})
			} else {
				opts = append([]diagnostics.Option{diagnostics.WithHistory(history)}, opts...)
			}
		}
		var source diagnostics.MetricSource
		if collector, err := m.metricsLocked(); err == nil {
			source = collector
		}
		var spans diagnostics.SpanSource
		if tracer, err := m.tracerLocked(); err == nil {
			spans = tracer
		}
		m.diagnostics = diagnostics.New(m.cfg.Diagnostics, logger, logger, source, spans, opts...)
	}
	return m.diagnostics, nil
}

// Start begins the background tasks owned by the manager: the system
// sampler and the periodic health sweep. Disabled components are skipped.
func (m *Manager) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrManagerShutdown
	}

	if collector, err := m.metricsLocked(); err == nil && m.cfg.Metrics.SamplerEnabled {
		collector.StartSampler(ctx, m.cfg.Metrics.SampleInterval)
	}

	interval := m.cfg.Diagnostics.HealthSweepInterval
	if collector, err := m.diagnosticsLocked(); err == nil && interval > 0 && m.sweepCancel == nil {
		sweepCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		m.sweepCancel = cancel
		m.sweepDone = done
		go runHealthSweep(sweepCtx, done, interval, collector, m.loggerLocked())
	}
	return nil
}

func runHealthSweep(ctx context.Context, done chan<- struct{}, interval time.Duration, collector *diagnostics.Collector, logger *logging.Logger) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepHealth(ctx, collector, logger)
		}
	}
}

func sweepHealth(ctx context.Context, collector *diagnostics.Collector, logger *logging.Logger) {
	for _, status := range collector.PerformHealthChecks(ctx) {
		if status.Status == domain.HealthHealthy {
			continue
		}
		logger.Warn(fmt.Sprintf("Health check %s: %s", status.Component, status.Status), domain.LogContext{
			Operation: "health_check",
		}, map[string]any{
			"component": status.Component,
			"status":    string(status.Status),
			"message":   status.Message,
		})
	}
}

// Shutdown stops background tasks, aborts pending spans and drops every
// component. Later accessor calls fail with domain.ErrManagerShutdown.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel, done := m.sweepCancel, m.sweepDone
	m.sweepCancel, m.sweepDone = nil, nil
	logger, tracer, collector, diag := m.logger, m.tracer, m.metrics, m.diagnostics
	m.logger, m.tracer, m.metrics, m.diagnostics = nil, nil, nil, nil
	exporter := m.exporter
	m.exporter = nil
	m.mu.Unlock()

	if exporter != nil {
		exporter.Stop()
	}
	if cancel != nil {
		cancel()
		waitDone(ctx, done)
	}
	if collector != nil {
		collector.StopSampler()
	}
	if tracer != nil {
		if aborted := tracer.AbortAllSpans(); aborted > 0 && logger != nil {
			logger.Warn("Aborted pending spans at shutdown", domain.LogContext{Operation: "shutdown"}, map[string]any{
				"spans": aborted,
			})
		}
	}

	var errs []error
	if diag != nil {
		if err := diag.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close diagnostics: %w", err))
		}
	}
	if logger != nil {
		logger.SetSpanSink(nil)
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close logger: %w", err))
		}
	}
	return errors.Join(errs...)
}

func waitDone(ctx context.Context, done <-chan struct{}) {
	if done == nil {
		return
	}
	if ctx == nil {
		<-done
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Reset clears every buffer of the constructed components.
func (m *Manager) Reset() {
	m.mu.Lock()
	logger, tracer, collector := m.logger, m.tracer, m.metrics
	m.mu.Unlock()

	if logger != nil {
		logger.Clear()
	}
	if tracer != nil {
		tracer.Reset()
	}
	if collector != nil {
		collector.Clear()
	}
}

// ApplyConfig applies the live-changeable subset of cfg: the log level and
// the exporter endpoints. Other fields take effect on the next manager.
func (m *Manager) ApplyConfig(cfg Config) {
	m.mu.Lock()
	m.cfg.Logger.Level = cfg.Logger.Level
	m.cfg.Observability = cfg.Observability
	logger, exporter := m.logger, m.exporter
	plan := m.exporterPlanLocked()
	m.mu.Unlock()

	if logger != nil {
		logger.SetLevel(cfg.Logger.Level)
		logger.Info("Configuration reloaded", domain.LogContext{Operation: "config"}, map[string]any{
			"level": string(logger.Level()),
		})
	}
	if exporter != nil {
		exporter.Apply(plan)
	}
}

// Serve starts the HTTP exporter for the current config. The exporter follows
// later ApplyConfig calls and stops when ctx is done or at Shutdown.
func (m *Manager) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrManagerShutdown
	}
	if m.exporter == nil {
		m.exporter = telemetry.NewExporter(m.gatherer, m, m.exporterLog)
	}
	exporter := m.exporter
	plan := m.exporterPlanLocked()
	m.mu.Unlock()

	exporter.Apply(plan)
	context.AfterFunc(ctx, exporter.Stop)
	return nil
}

// ExporterPlan returns the endpoints the exporter is serving right now.
func (m *Manager) ExporterPlan() telemetry.ExporterPlan {
	m.mu.Lock()
	exporter := m.exporter
	m.mu.Unlock()
	if exporter == nil {
		return telemetry.ExporterPlan{}
	}
	return exporter.Plan()
}

// exporterPlanLocked gates each endpoint on its component: /metrics needs the
// metrics collector and a gatherer, /healthz needs diagnostics.
func (m *Manager) exporterPlanLocked() telemetry.ExporterPlan {
	obs := m.cfg.Observability
	addr := m.listenAddr
	if addr == "" {
		addr = strings.TrimSpace(obs.ListenAddress)
	}
	if addr == "" {
		addr = domain.DefaultObservabilityAddress
	}
	return telemetry.ExporterPlan{
		Addr:    addr,
		Metrics: m.cfg.EnableMetrics && m.gatherer != nil && switchOn(obs.MetricsEnabled),
		Healthz: m.cfg.EnableDiagnostics && switchOn(obs.HealthzEnabled),
	}
}

func switchOn(flag *bool) bool {
	return flag == nil || *flag
}

// CreateSnapshot generates a diagnostic snapshot, or fails when diagnostics
// are disabled.
func (m *Manager) CreateSnapshot(ctx context.Context, workspace, operation string, cause error) (domain.DiagnosticSnapshot, error) {
	diag, err := m.Diagnostics()
	if err != nil {
		return domain.DiagnosticSnapshot{}, err
	}
	return diag.GenerateSnapshot(ctx, workspace, operation, cause), nil
}

func (m *Manager) HealthStatus(ctx context.Context) ([]domain.HealthStatus, error) {
	diag, err := m.Diagnostics()
	if err != nil {
		return nil, err
	}
	return diag.PerformHealthChecks(ctx), nil
}

// PerformHealthChecks adapts the manager to telemetry.HealthSource. A
// disabled diagnostics component reports no checks.
func (m *Manager) PerformHealthChecks(ctx context.Context) []domain.HealthStatus {
	statuses, err := m.HealthStatus(ctx)
	if err != nil {
		return nil
	}
	return statuses
}

func (m *Manager) Logs(limit int, level domain.LogLevel, operation string) ([]domain.LogEntry, error) {
	logger, err := m.Logger()
	if err != nil {
		return nil, err
	}
	return logger.RecentLogs(limit, level, operation), nil
}

func (m *Manager) MetricsSummary(window time.Duration) (domain.MetricsSummary, error) {
	collector, err := m.Metrics()
	if err != nil {
		return domain.MetricsSummary{}, err
	}
	return collector.Summary(window), nil
}

// TraceInfo returns the tree and summary of one trace. A trace id with no
// retained spans yields an empty tree and a zero summary.
func (m *Manager) TraceInfo(traceID string) (domain.TraceTree, domain.TraceSummary, error) {
	tracer, err := m.Tracer()
	if err != nil {
		return domain.TraceTree{}, domain.TraceSummary{}, err
	}
	tree, ok := tracer.Trace(traceID)
	if !ok {
		tree = domain.TraceTree{TraceID: traceID, Roots: []*domain.TraceNode{}}
	}
	return tree, tracer.TraceSummary(traceID), nil
}
