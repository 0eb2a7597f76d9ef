package telemetry

import "go.uber.org/zap"

const (
	FieldCorrelationID = "correlationId"
	FieldTraceID       = "traceId"
	FieldSpanID        = "spanId"
	FieldOperation     = "operation"
	FieldPhase         = "phase"
	FieldContext       = "context"
	FieldError         = "error"
	FieldMetadata      = "metadata"
	FieldLogSource     = "log_source"
)

const (
	PhaseStart     = "start"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

const (
	LogSourceKernel = "kernel"
	LogSourceCLI    = "cli"
)

func CorrelationIDField(value string) zap.Field {
	return zap.String(FieldCorrelationID, value)
}

func TraceIDField(value string) zap.Field {
	return zap.String(FieldTraceID, value)
}

func SpanIDField(value string) zap.Field {
	return zap.String(FieldSpanID, value)
}

func OperationField(value string) zap.Field {
	return zap.String(FieldOperation, value)
}

func PhaseField(value string) zap.Field {
	return zap.String(FieldPhase, value)
}

func LogSourceField(value string) zap.Field {
	return zap.String(FieldLogSource, value)
}
