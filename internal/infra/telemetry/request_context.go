package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type operationContextKey struct{}

// OperationMeta identifies the observed operation a context belongs to.
type OperationMeta struct {
	Operation     string
	CorrelationID string
	TraceID       string
	SpanID        string
}

func (m OperationMeta) IsZero() bool {
	return m.Operation == "" && m.CorrelationID == "" && m.TraceID == "" && m.SpanID == ""
}

// ContextWithOperation stores meta in ctx. When the ids are valid hex trace and
// span ids the span context is also attached, so trace.SpanContextFromContext
// works for code that only knows about OpenTelemetry.
func ContextWithOperation(ctx context.Context, meta OperationMeta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meta.IsZero() {
		return ctx
	}
	ctx = context.WithValue(ctx, operationContextKey{}, meta)
	if spanCtx, ok := spanContextFor(meta); ok {
		ctx = trace.ContextWithSpanContext(ctx, spanCtx)
	}
	return ctx
}

func OperationFromContext(ctx context.Context) (OperationMeta, bool) {
	if ctx == nil {
		return OperationMeta{}, false
	}
	meta, ok := ctx.Value(operationContextKey{}).(OperationMeta)
	return meta, ok && !meta.IsZero()
}

// CorrelationIDFromContext returns the correlation id carried by ctx, if any.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	meta, ok := OperationFromContext(ctx)
	if !ok || meta.CorrelationID == "" {
		return "", false
	}
	return meta.CorrelationID, true
}

func NewCorrelationID() string {
	return uuid.NewString()
}

func TraceSpanFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return "", ""
	}
	return spanCtx.TraceID().String(), spanCtx.SpanID().String()
}

func OperationFields(meta OperationMeta) []zap.Field {
	if meta.IsZero() {
		return nil
	}
	fields := make([]zap.Field, 0, 4)
	if meta.Operation != "" {
		fields = append(fields, OperationField(meta.Operation))
	}
	if meta.CorrelationID != "" {
		fields = append(fields, CorrelationIDField(meta.CorrelationID))
	}
	if meta.TraceID != "" {
		fields = append(fields, TraceIDField(meta.TraceID))
	}
	if meta.SpanID != "" {
		fields = append(fields, SpanIDField(meta.SpanID))
	}
	return fields
}

func LoggerWithOperation(ctx context.Context, base *zap.Logger) *zap.Logger {
	logger := base
	if logger == nil {
		logger = zap.NewNop()
	}
	meta, ok := OperationFromContext(ctx)
	if !ok {
		return logger
	}
	return logger.With(OperationFields(meta)...)
}

func spanContextFor(meta OperationMeta) (trace.SpanContext, bool) {
	if meta.TraceID == "" || meta.SpanID == "" {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(meta.TraceID)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(meta.SpanID)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return spanCtx, spanCtx.IsValid()
}
