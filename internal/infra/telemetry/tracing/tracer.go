package tracing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"obskit/internal/domain"
	"obskit/internal/infra/telemetry/buffer"
)

const abortedReason = "aborted"

// Logger is the subset of the kernel logger the tracer reports through.
type Logger interface {
	Debug(message string, lctx domain.LogContext, metadata map[string]any)
	Warn(message string, lctx domain.LogContext, metadata map[string]any)
}

type Option func(*Tracer)

// WithOTelTracer mirrors every span into an OpenTelemetry tracer.
func WithOTelTracer(tracer trace.Tracer) Option {
	return func(t *Tracer) {
		t.mirror = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		if now != nil {
			t.now = now
		}
	}
}

func WithIDGenerator(ids IDGenerator) Option {
	return func(t *Tracer) {
		if ids != nil {
			t.ids = ids
		}
	}
}

// Tracer keeps pending spans in an active table and moves finished spans to a
// bounded completed list. A span's status is written exactly once.
type Tracer struct {
	logger       Logger
	mirror       trace.Tracer
	now          func() time.Time
	ids          IDGenerator
	spanLogLimit int

	mu          sync.Mutex
	active      map[string]*domain.Span
	mirrorSpans map[string]trace.Span
	completed   *buffer.Ring[domain.Span]
}

func New(cfg domain.TracingConfig, logger Logger, opts ...Option) *Tracer {
	if cfg.CompletedSpanLimit <= 0 {
		cfg.CompletedSpanLimit = domain.DefaultCompletedSpanLimit
	}
	if cfg.SpanLogLimit <= 0 {
		cfg.SpanLogLimit = domain.DefaultSpanLogLimit
	}
	t := &Tracer{
		logger:       logger,
		now:          time.Now,
		ids:          randomIDGenerator{},
		spanLogLimit: cfg.SpanLogLimit,
		active:       make(map[string]*domain.Span),
		mirrorSpans:  make(map[string]trace.Span),
		completed:    buffer.NewRing[domain.Span](cfg.CompletedSpanLimit),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// StartTrace opens a root span under a fresh trace id and returns its span id.
func (t *Tracer) StartTrace(operation string, tags map[string]string) string {
	span := t.open(t.ids.NewTraceID().String(), "", operation, tags)
	t.startMirror(span, "")
	return span.SpanID
}

// StartChildSpan opens a span under parentSpanID. An unknown parent starts a
// new trace instead.
func (t *Tracer) StartChildSpan(parentSpanID, operation string, tags map[string]string) string {
	traceID, ok := t.traceOf(parentSpanID)
	if !ok {
		t.warn("Parent span not found, starting new trace", operation, map[string]any{"parentSpanId": parentSpanID})
		return t.StartTrace(operation, tags)
	}
	span := t.open(traceID, parentSpanID, operation, tags)
	t.startMirror(span, parentSpanID)
	return span.SpanID
}

func (t *Tracer) FinishSpan(spanID string, tags map[string]string) {
	t.finish(spanID, domain.SpanStatusSuccess, nil, tags)
}

// FinishSpanWithError finishes the span in error status and records err on
// its tags. A nil err still marks the span as failed.
func (t *Tracer) FinishSpanWithError(spanID string, err error, tags map[string]string) {
	if err == nil {
		err = fmt.Errorf("unspecified error")
	}
	t.finish(spanID, domain.SpanStatusError, err, tags)
}

// AbortAllSpans forces every pending span into error status and returns how
// many spans were aborted.
func (t *Tracer) AbortAllSpans() int {
	t.mu.Lock()
	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	sort.Strings(ids)
	aborted := 0
	tags := map[string]string{domain.TagAborted: "true"}
	for _, id := range ids {
		if t.complete(id, domain.SpanStatusError, errAborted, tags) {
			aborted++
		}
	}
	if aborted > 0 {
		t.warn("Aborted pending spans", "", map[string]any{"count": aborted})
	}
	return aborted
}

// Trace arranges every retained span of traceID into a tree. It reports false
// when no span of the trace is retained.
func (t *Tracer) Trace(traceID string) (domain.TraceTree, bool) {
	spans := t.spansOf(traceID)
	tree := domain.TraceTree{TraceID: traceID, Roots: []*domain.TraceNode{}}
	if len(spans) == 0 {
		return tree, false
	}
	nodes := make(map[string]*domain.TraceNode, len(spans))
	for _, span := range spans {
		nodes[span.SpanID] = &domain.TraceNode{Span: span}
	}
	for _, span := range spans {
		node := nodes[span.SpanID]
		parent, ok := nodes[span.ParentSpanID]
		if span.ParentSpanID == "" || !ok {
			tree.Roots = append(tree.Roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	return tree, true
}

// TraceSummary aggregates all retained spans of traceID. Pending spans count
// toward SpanCount and PendingCount but add no duration.
func (t *Tracer) TraceSummary(traceID string) domain.TraceSummary {
	summary := domain.TraceSummary{TraceID: traceID}
	for _, span := range t.spansOf(traceID) {
		summary.SpanCount++
		switch span.Status {
		case domain.SpanStatusPending:
			summary.PendingCount++
		case domain.SpanStatusError:
			summary.ErrorCount++
		}
		if span.DurationMs != nil {
			summary.TotalDurationMs += *span.DurationMs
		}
	}
	return summary
}

// Span returns a copy of an active or retained span.
func (t *Tracer) Span(spanID string) (domain.Span, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if span, ok := t.active[spanID]; ok {
		return span.Clone(), true
	}
	if span, ok := t.completedSpan(spanID); ok {
		return span.Clone(), true
	}
	return domain.Span{}, false
}

// ActiveSpans returns the pending spans ordered by start time.
func (t *Tracer) ActiveSpans() []domain.Span {
	t.mu.Lock()
	spans := make([]domain.Span, 0, len(t.active))
	for _, span := range t.active {
		spans = append(spans, span.Clone())
	}
	t.mu.Unlock()
	sortSpans(spans)
	return spans
}

func (t *Tracer) CompletedSpans() []domain.Span {
	return cloneSpans(t.completed.Snapshot())
}

func (t *Tracer) ClearCompletedSpans() {
	t.completed.Reset()
}

// Reset drops all active and completed spans without finishing them.
func (t *Tracer) Reset() {
	t.mu.Lock()
	t.active = make(map[string]*domain.Span)
	t.mirrorSpans = make(map[string]trace.Span)
	t.mu.Unlock()
	t.completed.Reset()
}

// AppendSpanLog attaches entry to a pending span, keeping the newest entries
// once the per-span limit is reached.
func (t *Tracer) AppendSpanLog(spanID string, entry domain.LogEntry) bool {
	if spanID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	span, ok := t.active[spanID]
	if !ok {
		return false
	}
	if len(span.Logs) >= t.spanLogLimit {
		span.Logs = append(span.Logs[:0], span.Logs[len(span.Logs)-t.spanLogLimit+1:]...)
	}
	span.Logs = append(span.Logs, entry)
	return true
}

func (t *Tracer) open(traceID, parentSpanID, operation string, tags map[string]string) domain.Span {
	span := &domain.Span{
		TraceID:      traceID,
		SpanID:       t.ids.NewSpanID().String(),
		ParentSpanID: parentSpanID,
		Operation:    operation,
		StartTime:    t.now(),
		Status:       domain.SpanStatusPending,
		Tags:         domain.MergeStringMaps(nil, tags),
		Logs:         []domain.LogEntry{},
	}
	t.mu.Lock()
	t.active[span.SpanID] = span
	t.mu.Unlock()
	return span.Clone()
}

func (t *Tracer) finish(spanID string, status domain.SpanStatus, err error, tags map[string]string) {
	if t.complete(spanID, status, err, tags) {
		return
	}
	if _, ok := t.Span(spanID); ok {
		t.debug("Span already finished", map[string]any{"spanId": spanID})
		return
	}
	t.warn("Attempted to finish unknown span", "", map[string]any{"spanId": spanID})
}

// complete performs the single pending-to-terminal transition. It reports
// false when the span is not pending.
func (t *Tracer) complete(spanID string, status domain.SpanStatus, err error, tags map[string]string) bool {
	t.mu.Lock()
	span, ok := t.active[spanID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.active, spanID)
	mirrorSpan := t.mirrorSpans[spanID]
	delete(t.mirrorSpans, spanID)

	end := t.now()
	elapsed := end.Sub(span.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	durationMs := float64(elapsed) / float64(time.Millisecond)
	span.EndTime = &end
	span.DurationMs = &durationMs
	span.Status = status
	span.Tags = domain.MergeStringMaps(span.Tags, tags)
	if status == domain.SpanStatusError && err != nil {
		span.Tags[domain.TagError] = "true"
		span.Tags[domain.TagErrorMessage] = err.Error()
		span.Tags[domain.TagErrorType] = fmt.Sprintf("%T", err)
	}
	finished := span.Clone()
	t.completed.Add(finished)
	t.mu.Unlock()

	endMirror(mirrorSpan, finished, err)
	return true
}

func (t *Tracer) traceOf(spanID string) (string, bool) {
	if spanID == "" {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if span, ok := t.active[spanID]; ok {
		return span.TraceID, true
	}
	if span, ok := t.completedSpan(spanID); ok {
		return span.TraceID, true
	}
	return "", false
}

// completedSpan must be called with t.mu held.
func (t *Tracer) completedSpan(spanID string) (domain.Span, bool) {
	matches := t.completed.Filter(func(span domain.Span) bool {
		return span.SpanID == spanID
	}, 1)
	if len(matches) == 0 {
		return domain.Span{}, false
	}
	return matches[0], true
}

func (t *Tracer) spansOf(traceID string) []domain.Span {
	if traceID == "" {
		return nil
	}
	t.mu.Lock()
	spans := make([]domain.Span, 0)
	for _, span := range t.active {
		if span.TraceID == traceID {
			spans = append(spans, span.Clone())
		}
	}
	t.mu.Unlock()
	completed := t.completed.Filter(func(span domain.Span) bool {
		return span.TraceID == traceID
	}, 0)
	spans = append(spans, cloneSpans(completed)...)
	sortSpans(spans)
	return spans
}

func (t *Tracer) startMirror(span domain.Span, parentSpanID string) {
	if t.mirror == nil {
		return
	}
	ctx := context.Background()
	if parentSpanID != "" {
		t.mu.Lock()
		parent := t.mirrorSpans[parentSpanID]
		t.mu.Unlock()
		if parent != nil {
			ctx = trace.ContextWithSpan(ctx, parent)
		}
	}
	_, mirrored := t.mirror.Start(ctx, span.Operation,
		trace.WithTimestamp(span.StartTime),
		trace.WithAttributes(spanAttributes(span)...),
	)
	t.mu.Lock()
	if _, pending := t.active[span.SpanID]; pending {
		t.mirrorSpans[span.SpanID] = mirrored
		mirrored = nil
	}
	t.mu.Unlock()
	if mirrored != nil {
		mirrored.End()
	}
}

func endMirror(mirrored trace.Span, span domain.Span, err error) {
	if mirrored == nil {
		return
	}
	mirrored.SetAttributes(spanAttributes(span)...)
	if span.Status == domain.SpanStatusError {
		if err != nil {
			mirrored.RecordError(err)
		}
		mirrored.SetStatus(codes.Error, span.Tags[domain.TagErrorMessage])
	} else {
		mirrored.SetStatus(codes.Ok, "")
	}
	end := span.StartTime
	if span.EndTime != nil {
		end = *span.EndTime
	}
	mirrored.End(trace.WithTimestamp(end))
}

func spanAttributes(span domain.Span) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(span.Tags)+2)
	attrs = append(attrs,
		attribute.String("obskit.trace_id", span.TraceID),
		attribute.String("obskit.span_id", span.SpanID),
	)
	keys := make([]string, 0, len(span.Tags))
	for key := range span.Tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attrs = append(attrs, attribute.String(key, span.Tags[key]))
	}
	return attrs
}

func (t *Tracer) warn(message, operation string, metadata map[string]any) {
	if t.logger == nil {
		return
	}
	t.logger.Warn(message, domain.LogContext{Operation: operation}, metadata)
}

func (t *Tracer) debug(message string, metadata map[string]any) {
	if t.logger == nil {
		return
	}
	t.logger.Debug(message, domain.LogContext{}, metadata)
}

type abortError struct{}

func (abortError) Error() string { return abortedReason }

var errAborted error = abortError{}

func sortSpans(spans []domain.Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].StartTime.Equal(spans[j].StartTime) {
			return spans[i].SpanID < spans[j].SpanID
		}
		return spans[i].StartTime.Before(spans[j].StartTime)
	})
}

func cloneSpans(spans []domain.Span) []domain.Span {
	out := make([]domain.Span, 0, len(spans))
	for _, span := range spans {
		out = append(out, span.Clone())
	}
	return out
}
