package logging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"obskit/internal/domain"
	"obskit/internal/infra/telemetry"
	"obskit/internal/infra/telemetry/buffer"
)

// SpanLogSink receives entries whose correlation id names a span. It reports
// whether the span accepted the entry.
type SpanLogSink interface {
	AppendSpanLog(spanID string, entry domain.LogEntry) bool
}

type Option func(*Logger)

// WithConsole replaces stderr as the console sink.
func WithConsole(w zapcore.WriteSyncer) Option {
	return func(l *Logger) {
		l.console = w
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithSessionID(id string) Option {
	return func(l *Logger) {
		if id != "" {
			l.sessionID = id
		}
	}
}

// Logger records structured entries into a bounded buffer and echoes them to
// the configured console and file sinks.
type Logger struct {
	cfg       domain.LoggerConfig
	level     zap.AtomicLevel
	console   zapcore.WriteSyncer
	sink      *zap.Logger
	file      *lazyFile
	entries   *buffer.Ring[domain.LogEntry]
	live      *broadcaster
	now       func() time.Time
	sessionID string

	mu       sync.RWMutex
	traceID  string
	spanID   string
	spanSink SpanLogSink
}

func New(cfg domain.LoggerConfig, opts ...Option) *Logger {
	cfg = normalizeConfig(cfg)
	l := &Logger{
		cfg:       cfg,
		level:     zap.NewAtomicLevelAt(zapLevel(cfg.Level)),
		entries:   buffer.NewRing[domain.LogEntry](cfg.BufferSize),
		live:      newBroadcaster(),
		now:       time.Now,
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.sink, l.file = newSink(cfg, l.level, l.console)
	return l
}

func normalizeConfig(cfg domain.LoggerConfig) domain.LoggerConfig {
	if !cfg.Level.Valid() {
		cfg.Level = domain.LogLevelInfo
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = domain.DefaultLogBufferSize
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = domain.DefaultLogFileMaxSizeBytes
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = domain.DefaultLogFileMaxFiles
	}
	return cfg
}

func (l *Logger) Config() domain.LoggerConfig {
	cfg := l.cfg
	cfg.Level = l.Level()
	return cfg
}

func (l *Logger) SessionID() string {
	return l.sessionID
}

// SetLevel changes the minimum level for the buffer and every sink.
func (l *Logger) SetLevel(level domain.LogLevel) {
	if !level.Valid() {
		return
	}
	l.level.SetLevel(zapLevel(level))
}

func (l *Logger) Level() domain.LogLevel {
	switch l.level.Level() {
	case zapcore.DebugLevel:
		return domain.LogLevelDebug
	case zapcore.WarnLevel:
		return domain.LogLevelWarn
	case zapcore.ErrorLevel:
		return domain.LogLevelError
	default:
		return domain.LogLevelInfo
	}
}

// Enabled reports whether an entry at level would be recorded.
func (l *Logger) Enabled(level domain.LogLevel) bool {
	return l.level.Enabled(zapLevel(level))
}

func (l *Logger) SetSpanSink(sink SpanLogSink) {
	l.mu.Lock()
	l.spanSink = sink
	l.mu.Unlock()
}

// SetTraceContext makes spanID the correlation id of subsequent entries that
// carry no explicit correlation of their own. It has no effect on a logger
// built with DisableTracing.
func (l *Logger) SetTraceContext(traceID, spanID string) {
	l.mu.Lock()
	l.traceID = traceID
	l.spanID = spanID
	l.mu.Unlock()
}

func (l *Logger) ClearTraceContext() {
	l.SetTraceContext("", "")
}

func (l *Logger) TraceContext() (string, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.traceID, l.spanID
}

func (l *Logger) Debug(message string, lctx domain.LogContext, metadata map[string]any) {
	l.log(domain.LogLevelDebug, message, lctx, nil, metadata)
}

func (l *Logger) Info(message string, lctx domain.LogContext, metadata map[string]any) {
	l.log(domain.LogLevelInfo, message, lctx, nil, metadata)
}

func (l *Logger) Warn(message string, lctx domain.LogContext, metadata map[string]any) {
	l.log(domain.LogLevelWarn, message, lctx, nil, metadata)
}

// Error records an error entry. err may be nil; recovery actions default to
// the suggestions for the classified category.
func (l *Logger) Error(message string, err error, lctx domain.LogContext, recoveryActions ...string) {
	if !l.Enabled(domain.LogLevelError) {
		return
	}
	l.log(domain.LogLevelError, message, lctx, errorInfo(message, err, recoveryActions), nil)
}

func (l *Logger) OperationStart(operation, phase string, lctx domain.LogContext) {
	lctx.Operation = operation
	lctx.Phase = phase
	l.log(domain.LogLevelInfo, fmt.Sprintf("Starting %s", operation), lctx, nil, nil)
}

func (l *Logger) OperationSuccess(operation, phase string, duration time.Duration, lctx domain.LogContext) {
	lctx.Operation = operation
	lctx.Phase = phase
	lctx.DurationMs = durationMs(duration)
	l.log(domain.LogLevelInfo, fmt.Sprintf("Operation %s completed", operation), lctx, nil, nil)
}

func (l *Logger) OperationFailure(operation, phase string, err error, duration time.Duration, lctx domain.LogContext, recoveryActions ...string) {
	if !l.Enabled(domain.LogLevelError) {
		return
	}
	lctx.Operation = operation
	lctx.Phase = phase
	lctx.DurationMs = durationMs(duration)
	message := fmt.Sprintf("Operation %s failed", operation)
	l.log(domain.LogLevelError, message, lctx, errorInfo(message, err, recoveryActions), nil)
}

// RecentLogs returns up to limit of the newest entries in chronological order.
// An empty level or operation matches everything; limit <= 0 means the default.
func (l *Logger) RecentLogs(limit int, level domain.LogLevel, operation string) []domain.LogEntry {
	if limit <= 0 {
		limit = domain.DefaultRecentLogsLimit
	}
	matches := l.entries.Filter(func(entry domain.LogEntry) bool {
		if level != "" && entry.Level != level {
			return false
		}
		if operation != "" && entry.Operation != operation {
			return false
		}
		return true
	}, limit)
	return cloneEntries(matches)
}

func (l *Logger) LogsByCorrelationID(correlationID string) []domain.LogEntry {
	if correlationID == "" {
		return nil
	}
	matches := l.entries.Filter(func(entry domain.LogEntry) bool {
		return entry.CorrelationID == correlationID
	}, 0)
	return cloneEntries(matches)
}

// Tail returns the newest n buffered entries.
func (l *Logger) Tail(n int) []domain.LogEntry {
	return cloneEntries(l.entries.Tail(n))
}

func (l *Logger) Len() int {
	return l.entries.Len()
}

// Subscribe streams entries recorded after the call until ctx is done.
func (l *Logger) Subscribe(ctx context.Context) <-chan domain.LogEntry {
	return l.live.subscribe(ctx)
}

// Clear drops every buffered entry and the logger-wide trace context.
func (l *Logger) Clear() {
	l.entries.Reset()
	l.ClearTraceContext()
}

func (l *Logger) Sync() error {
	return l.sink.Sync()
}

func (l *Logger) Close() error {
	_ = l.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) log(level domain.LogLevel, message string, lctx domain.LogContext, errInfo *domain.ErrorInfo, metadata map[string]any) {
	if !l.Enabled(level) {
		return
	}
	entry := l.buildEntry(level, message, lctx, errInfo, metadata)
	l.entries.Add(entry)
	l.write(entry)
	l.live.publish(entry.Clone())

	l.mu.RLock()
	sink := l.spanSink
	l.mu.RUnlock()
	if sink != nil {
		sink.AppendSpanLog(entry.CorrelationID, entry.Clone())
	}
}

func (l *Logger) buildEntry(level domain.LogLevel, message string, lctx domain.LogContext, errInfo *domain.ErrorInfo, metadata map[string]any) domain.LogEntry {
	correlationID, traceID := l.correlate(lctx)
	ctx := lctx.Clone()
	ctx.CorrelationID = ""
	ctx.TraceID = ""
	ctx.Operation = ""
	ctx.Phase = ""
	if ctx.SessionID == "" {
		ctx.SessionID = l.sessionID
	}
	entry := domain.LogEntry{
		Timestamp:     l.now(),
		CorrelationID: correlationID,
		TraceID:       traceID,
		Operation:     lctx.Operation,
		Phase:         lctx.Phase,
		Level:         level,
		Message:       message,
		Context:       ctx,
		Error:         errInfo.Clone(),
	}
	if len(metadata) > 0 {
		entry.Metadata = make(map[string]any, len(metadata))
		for key, value := range metadata {
			entry.Metadata[key] = value
		}
	}
	return entry
}

// correlate picks the explicit correlation first, then the logger-wide trace
// context, then a fresh id.
func (l *Logger) correlate(lctx domain.LogContext) (string, string) {
	if lctx.CorrelationID != "" {
		return lctx.CorrelationID, lctx.TraceID
	}
	if !l.cfg.DisableTracing {
		traceID, spanID := l.TraceContext()
		if spanID != "" {
			return spanID, traceID
		}
	}
	return telemetry.NewCorrelationID(), lctx.TraceID
}

func (l *Logger) write(entry domain.LogEntry) {
	ce := l.sink.Check(zapLevel(entry.Level), entry.Message)
	if ce == nil {
		return
	}
	ce.Time = entry.Timestamp
	ce.Write(entryFields(entry)...)
}

func errorInfo(message string, err error, recoveryActions []string) *domain.ErrorInfo {
	if err != nil {
		return DescribeError(err, recoveryActions)
	}
	if len(recoveryActions) == 0 {
		return nil
	}
	return &domain.ErrorInfo{
		Type:            "Error",
		Message:         message,
		RecoveryActions: append([]string(nil), recoveryActions...),
		Category:        Classify(message, ""),
	}
}

func durationMs(duration time.Duration) float64 {
	if duration < 0 {
		return 0
	}
	return float64(duration) / float64(time.Millisecond)
}

func cloneEntries(entries []domain.LogEntry) []domain.LogEntry {
	out := make([]domain.LogEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Clone())
	}
	return out
}
