package diagnostics

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"obskit/internal/domain"
	"obskit/internal/infra/probe"
	"obskit/internal/infra/telemetry/logging"
)

// LogSource provides the newest buffered log entries.
type LogSource interface {
	Tail(n int) []domain.LogEntry
}

// MetricSource provides the newest buffered metrics.
type MetricSource interface {
	Tail(n int) []domain.Metric
}

// SpanSource provides the spans that are still open, oldest first.
type SpanSource interface {
	ActiveSpans() []domain.Span
}

// Logger is the subset of the kernel logger the collector reports through.
type Logger interface {
	Debug(message string, lctx domain.LogContext, metadata map[string]any)
	Info(message string, lctx domain.LogContext, metadata map[string]any)
	Warn(message string, lctx domain.LogContext, metadata map[string]any)
}

type Option func(*Collector)

// WithProbes replaces the default probe battery.
func WithProbes(probes ...Probe) Option {
	return func(c *Collector) {
		c.probes = append(make([]Probe, 0, len(probes)), probes...)
	}
}

// WithToolRunner replaces the command runner used by tool probes.
func WithToolRunner(runner probe.Runner) Option {
	return func(c *Collector) {
		c.runner = runner
	}
}

func WithLoadReader(read LoadReader) Option {
	return func(c *Collector) {
		c.load = read
	}
}

func WithMemoryReader(read MemoryReader) Option {
	return func(c *Collector) {
		c.memory = read
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

func WithStore(store *FileStore) Option {
	return func(c *Collector) {
		c.store = store
	}
}

func WithHistory(history *History) Option {
	return func(c *Collector) {
		c.history = history
	}
}

// Collector runs health probes and assembles diagnostic snapshots.
type Collector struct {
	cfg     domain.DiagnosticsConfig
	logger  Logger
	logs    LogSource
	metrics MetricSource
	spans   SpanSource
	probes  []Probe
	runner  probe.Runner
	load    LoadReader
	memory  MemoryReader
	store   *FileStore
	history *History
	now     func() time.Time
	started time.Time
}

// New builds a collector over the kernel's buffers. Any source may be nil;
// its section of the snapshot is then left empty.
func New(cfg domain.DiagnosticsConfig, logger Logger, logs LogSource, metrics MetricSource, spans SpanSource, opts ...Option) *Collector {
	cfg = normalizeConfig(cfg)
	c := &Collector{
		cfg:     cfg,
		logger:  logger,
		logs:    logs,
		metrics: metrics,
		spans:   spans,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.store == nil {
		c.store = NewFileStore(cfg.SnapshotDir)
	}
	if c.probes == nil {
		c.probes = c.defaultProbes()
	}
	c.started = c.now()
	return c
}

func normalizeConfig(cfg domain.DiagnosticsConfig) domain.DiagnosticsConfig {
	defaults := domain.DefaultDiagnosticsConfig()
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = defaults.WorkspaceDir
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = filepath.Join(cfg.WorkspaceDir, domain.DefaultSnapshotDirName)
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaults.ToolTimeout
	}
	if cfg.MemoryWarningBytes == 0 {
		cfg.MemoryWarningBytes = defaults.MemoryWarningBytes
	}
	if cfg.MemoryErrorBytes == 0 {
		cfg.MemoryErrorBytes = defaults.MemoryErrorBytes
	}
	if cfg.StateFileWarnBytes <= 0 {
		cfg.StateFileWarnBytes = defaults.StateFileWarnBytes
	}
	if cfg.LogTail <= 0 {
		cfg.LogTail = defaults.LogTail
	}
	if cfg.MetricTail <= 0 {
		cfg.MetricTail = defaults.MetricTail
	}
	if cfg.SpanLimit <= 0 {
		cfg.SpanLimit = defaults.SpanLimit
	}
	return cfg
}

func (c *Collector) Config() domain.DiagnosticsConfig {
	return c.cfg
}

func (c *Collector) defaultProbes() []Probe {
	probes := []Probe{
		LoadProbe{Read: c.load},
		MemoryProbe{Read: c.memory, WarningBytes: c.cfg.MemoryWarningBytes, ErrorBytes: c.cfg.MemoryErrorBytes},
	}
	toolProbe := &probe.ToolProbe{Timeout: c.cfg.ToolTimeout, Runner: c.runner}
	for _, spec := range c.cfg.Tools {
		probes = append(probes, ToolCheck{Spec: spec, Probe: toolProbe})
	}
	if c.cfg.StateFile != "" {
		probes = append(probes, StateFileProbe{
			Path:      filepath.Join(c.cfg.WorkspaceDir, c.cfg.StateFile),
			WarnBytes: c.cfg.StateFileWarnBytes,
		})
	}
	if c.cfg.WorkspaceConfigFile != "" {
		probes = append(probes, WorkspaceConfigProbe{Dir: c.cfg.WorkspaceDir, ConfigFile: c.cfg.WorkspaceConfigFile})
	}
	return probes
}

// PerformHealthChecks runs every probe concurrently and returns one status
// per probe in probe order.
func (c *Collector) PerformHealthChecks(ctx context.Context) []domain.HealthStatus {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]domain.HealthStatus, len(c.probes))
	var wg sync.WaitGroup
	for i, p := range c.probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			results[i] = runProbe(ctx, p, c.now)
		}(i, p)
	}
	wg.Wait()
	return results
}

// GenerateSnapshot assembles the current diagnostic state. Persistence is
// best-effort; the snapshot is returned even when it could not be saved.
func (c *Collector) GenerateSnapshot(ctx context.Context, workspace, operation string, cause error) domain.DiagnosticSnapshot {
	snapshot := domain.DiagnosticSnapshot{
		ID:           uuid.NewString(),
		Timestamp:    c.now(),
		Workspace:    workspace,
		Operation:    operation,
		Error:        logging.DescribeError(cause, nil),
		Logs:         []domain.LogEntry{},
		Metrics:      []domain.Metric{},
		PendingSpans: []domain.PendingSpan{},
		HealthStatus: c.PerformHealthChecks(ctx),
		SystemInfo:   CollectSystemInfo(c.started, c.memory),
		WorkspaceInfo: InspectWorkspace(
			c.cfg.WorkspaceDir,
			workspace,
			c.cfg.WorkspaceConfigFile,
			c.cfg.StateFile,
		),
	}
	if c.logs != nil {
		snapshot.Logs = append(snapshot.Logs, c.logs.Tail(c.cfg.LogTail)...)
	}
	if c.metrics != nil {
		snapshot.Metrics = append(snapshot.Metrics, c.metrics.Tail(c.cfg.MetricTail)...)
	}
	snapshot.ActiveSpanCount, snapshot.PendingSpans = c.pendingSpans(snapshot.Timestamp)

	lctx := domain.LogContext{Operation: "diagnostics", Workspace: workspace}
	path, err := c.store.Save(snapshot)
	if err != nil {
		c.warn("Failed to persist diagnostic snapshot", lctx, map[string]any{"snapshotId": snapshot.ID, "error": err.Error()})
		path = ""
	}
	if c.history != nil {
		if err := c.history.Record(RecordFor(snapshot, path)); err != nil {
			c.warn("Failed to index diagnostic snapshot", lctx, map[string]any{"snapshotId": snapshot.ID, "error": err.Error()})
		}
	}
	if c.logger != nil {
		c.logger.Info("Diagnostic snapshot generated", lctx, map[string]any{"snapshotId": snapshot.ID, "path": path})
	}
	return snapshot
}

func (c *Collector) pendingSpans(at time.Time) (int, []domain.PendingSpan) {
	if c.spans == nil {
		return 0, []domain.PendingSpan{}
	}
	active := c.spans.ActiveSpans()
	kept := active
	if len(kept) > c.cfg.SpanLimit {
		kept = kept[:c.cfg.SpanLimit]
	}
	out := make([]domain.PendingSpan, 0, len(kept))
	for _, span := range kept {
		age := at.Sub(span.StartTime)
		if age < 0 {
			age = 0
		}
		out = append(out, domain.PendingSpan{
			TraceID:   span.TraceID,
			SpanID:    span.SpanID,
			Operation: span.Operation,
			StartTime: span.StartTime,
			AgeMs:     float64(age) / float64(time.Millisecond),
		})
	}
	return len(active), out
}

// GenerateAIPrompt renders snapshot into a troubleshooting prompt.
func (c *Collector) GenerateAIPrompt(snapshot domain.DiagnosticSnapshot, description string) string {
	return BuildAIPrompt(snapshot, description)
}

func (c *Collector) LoadSnapshot(id string) (domain.DiagnosticSnapshot, error) {
	return c.store.Load(id)
}

// History lists indexed snapshots, newest first.
func (c *Collector) History(limit int) ([]domain.SnapshotRecord, error) {
	if c.history == nil {
		return nil, fmt.Errorf("snapshot history: %w", domain.ErrComponentDisabled)
	}
	return c.history.List(limit)
}

func (c *Collector) SystemInfo() domain.SystemInfo {
	return CollectSystemInfo(c.started, c.memory)
}

func (c *Collector) Close() error {
	return c.history.Close()
}

func (c *Collector) warn(message string, lctx domain.LogContext, metadata map[string]any) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(message, lctx, metadata)
}
