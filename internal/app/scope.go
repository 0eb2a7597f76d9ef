package app

import (
	"obskit/internal/domain"
	"obskit/internal/infra/telemetry/logging"
	"obskit/internal/infra/telemetry/metrics"
)

// Scope binds a fixed operation and context to logger and metric calls.
// Calls on a disabled or shut down component are dropped.
type Scope struct {
	operation string
	lctx      domain.LogContext
	logger    *logging.Logger
	metrics   *metrics.Collector
}

func (m *Manager) CreateScope(operation string, lctx domain.LogContext) *Scope {
	scope := &Scope{operation: operation, lctx: lctx.Clone()}
	scope.lctx.Operation = operation

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return scope
	}
	scope.logger = m.loggerLocked()
	scope.metrics, _ = m.metricsLocked()
	return scope
}

func (s *Scope) Operation() string {
	return s.operation
}

func (s *Scope) context(extra []domain.LogContext) domain.LogContext {
	lctx := s.lctx
	for _, e := range extra {
		lctx = lctx.Merge(e)
	}
	lctx.Operation = s.operation
	return lctx
}

func (s *Scope) Debug(message string, metadata map[string]any, extra ...domain.LogContext) {
	if s.logger != nil {
		s.logger.Debug(message, s.context(extra), metadata)
	}
}

func (s *Scope) Info(message string, metadata map[string]any, extra ...domain.LogContext) {
	if s.logger != nil {
		s.logger.Info(message, s.context(extra), metadata)
	}
}

func (s *Scope) Warn(message string, metadata map[string]any, extra ...domain.LogContext) {
	if s.logger != nil {
		s.logger.Warn(message, s.context(extra), metadata)
	}
}

func (s *Scope) Error(message string, err error, recoveryActions ...string) {
	if s.logger != nil {
		s.logger.Error(message, err, s.context(nil), recoveryActions...)
	}
}

// Record records a metric attributed to the scope's operation.
func (s *Scope) Record(name string, value float64, unit string, tags map[string]string) {
	if s.metrics != nil {
		s.metrics.Record(name, value, unit, tags, s.operation)
	}
}

// StartTimer starts a timer named after the scope's operation and name.
func (s *Scope) StartTimer(name string) {
	if s.metrics != nil {
		s.metrics.StartTimer(s.timerName(name), map[string]string{domain.MetricTagOperation: s.operation})
	}
}

func (s *Scope) EndTimer(name string) float64 {
	if s.metrics == nil {
		return 0
	}
	return s.metrics.EndTimer(s.timerName(name), nil)
}

func (s *Scope) timerName(name string) string {
	return s.operation + "_" + name
}
