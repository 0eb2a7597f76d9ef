package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"obskit/internal/domain"
	"obskit/internal/infra/telemetry"
	"obskit/internal/infra/telemetry/logging"
	"obskit/internal/infra/telemetry/metrics"
	"obskit/internal/infra/telemetry/tracing"
)

// Operation is one observed unit of work: a span, a duration metric and the
// start and end log lines, all sharing one correlation id.
type Operation struct {
	name          string
	correlationID string
	traceID       string
	spanID        string
	lctx          domain.LogContext
	started       time.Time

	logger  *logging.Logger
	tracer  *tracing.Tracer
	metrics *metrics.Collector

	once sync.Once
}

// StartOperation opens an operation. Disabled components are skipped and a
// shut down manager yields an operation whose End does nothing.
//
// End records the elapsed time as the metric "<operation>_duration" in
// milliseconds, tagged success=true|false, so query it with
// Metrics(operation+"_duration", n). No named timer is held while the
// operation runs; overlapping operations with the same name each record
// their own duration.
func (m *Manager) StartOperation(operation string, lctx domain.LogContext) *Operation {
	return m.startOperation("", operation, lctx)
}

func (m *Manager) startOperation(parentSpanID, operation string, lctx domain.LogContext) *Operation {
	op := &Operation{name: operation, lctx: lctx.Clone(), started: time.Now()}

	m.mu.Lock()
	if !m.closed {
		op.logger = m.loggerLocked()
		op.tracer, _ = m.tracerLocked()
		op.metrics, _ = m.metricsLocked()
	}
	m.mu.Unlock()

	if op.tracer != nil {
		tags := operationTags(lctx)
		if parentSpanID != "" {
			op.spanID = op.tracer.StartChildSpan(parentSpanID, operation, tags)
		} else {
			op.spanID = op.tracer.StartTrace(operation, tags)
		}
		if span, ok := op.tracer.Span(op.spanID); ok {
			op.traceID = span.TraceID
		}
		op.correlationID = op.spanID
	} else {
		op.correlationID = telemetry.NewCorrelationID()
	}
	op.lctx.CorrelationID = op.correlationID
	op.lctx.TraceID = op.traceID

	if op.logger != nil {
		op.logger.OperationStart(operation, telemetry.PhaseStart, op.lctx)
	}
	return op
}

func operationTags(lctx domain.LogContext) map[string]string {
	tags := map[string]string{}
	if lctx.Workspace != "" {
		tags["workspace"] = lctx.Workspace
	}
	if lctx.ServerID != "" {
		tags["serverId"] = lctx.ServerID
	}
	return tags
}

// StartChild opens an operation whose span is a child of parent's span.
func (m *Manager) StartChild(parent *Operation, operation string, lctx domain.LogContext) *Operation {
	if parent == nil {
		return m.StartOperation(operation, lctx)
	}
	return m.startOperation(parent.spanID, operation, parent.lctx.Merge(lctx))
}

// StartOperationContext opens an operation nested under the operation carried
// by ctx, if any, and returns ctx extended with the new operation. Without a
// parent span the parent's correlation id is kept as parentCorrelationId.
func (m *Manager) StartOperationContext(ctx context.Context, operation string, lctx domain.LogContext) (*Operation, context.Context) {
	_, parentSpanID := telemetry.TraceSpanFromContext(ctx)
	if parentSpanID == "" {
		if parent, ok := telemetry.CorrelationIDFromContext(ctx); ok {
			lctx = lctx.Merge(domain.LogContext{Fields: map[string]any{"parentCorrelationId": parent}})
		}
	}
	op := m.startOperation(parentSpanID, operation, lctx)
	return op, op.Context(ctx)
}

// End closes the operation. Only the first call has any effect.
func (o *Operation) End(success bool, err error, extra domain.LogContext) {
	o.once.Do(func() {
		o.end(success, err, extra)
	})
}

func (o *Operation) end(success bool, err error, extra domain.LogContext) {
	duration := time.Since(o.started)
	lctx := o.lctx.Merge(extra)
	lctx.CorrelationID = o.correlationID
	lctx.TraceID = o.traceID

	if o.logger != nil {
		if success {
			o.logger.OperationSuccess(o.name, telemetry.PhaseCompleted, duration, lctx)
		} else {
			o.logger.OperationFailure(o.name, telemetry.PhaseFailed, err, duration, lctx)
		}
	}

	if o.metrics != nil {
		o.metrics.RecordDuration(o.name, duration, map[string]string{
			domain.MetricTagSuccess: strconv.FormatBool(success),
		})
		if !success {
			o.metrics.RecordErrorCount(o.name, logging.Classify(errorText(err), ""))
		}
	}

	if o.tracer != nil {
		if success {
			o.tracer.FinishSpan(o.spanID, nil)
		} else {
			o.tracer.FinishSpanWithError(o.spanID, err, nil)
		}
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Context returns ctx carrying the operation's ids.
func (o *Operation) Context(ctx context.Context) context.Context {
	return telemetry.ContextWithOperation(ctx, telemetry.OperationMeta{
		Operation:     o.name,
		CorrelationID: o.correlationID,
		TraceID:       o.traceID,
		SpanID:        o.spanID,
	})
}

func (o *Operation) Name() string          { return o.name }
func (o *Operation) CorrelationID() string { return o.correlationID }
func (o *Operation) TraceID() string       { return o.traceID }
func (o *Operation) SpanID() string        { return o.spanID }
