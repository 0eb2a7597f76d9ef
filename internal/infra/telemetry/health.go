package telemetry

import (
	"context"

	"obskit/internal/domain"
)

// HealthSource runs the health probes reported by /healthz.
type HealthSource interface {
	PerformHealthChecks(ctx context.Context) []domain.HealthStatus
}

type HealthReport struct {
	Status string                `json:"status"`
	Checks []domain.HealthStatus `json:"checks,omitempty"`
}

// BuildHealthReport folds probe results into one status: "error" when any
// probe failed, "degraded" when any warned, otherwise "ok".
func BuildHealthReport(checks []domain.HealthStatus) HealthReport {
	report := HealthReport{Status: "ok", Checks: checks}
	for _, check := range checks {
		switch check.Status {
		case domain.HealthError:
			report.Status = "error"
			return report
		case domain.HealthWarning:
			report.Status = "degraded"
		}
	}
	return report
}
