package diagnostics

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"obskit/internal/domain"
)

const (
	promptRecentErrorLimit = 5
	promptMessageLimit     = 500
)

// BuildAIPrompt renders a snapshot into a troubleshooting prompt. Values
// stored under secret-bearing keys never appear in the output.
func BuildAIPrompt(snapshot domain.DiagnosticSnapshot, description string) string {
	var builder strings.Builder
	builder.WriteString("-------------------------------------\n")
	builder.WriteString("Infrastructure Troubleshooting Request\n")
	builder.WriteString("-------------------------------------\n")
	builder.WriteString(fmt.Sprintf("Problem Description:  %s\n", formatInline(description, "(none provided)")))
	builder.WriteString(fmt.Sprintf("Snapshot ID:          %s\n", snapshot.ID))
	builder.WriteString(fmt.Sprintf("Captured At:          %s\n", formatTime(snapshot.Timestamp)))
	builder.WriteString(fmt.Sprintf("Workspace:            %s\n", formatInline(snapshot.Workspace, "(none)")))
	builder.WriteString(fmt.Sprintf("Operation:            %s\n", formatInline(snapshot.Operation, "(none)")))
	builder.WriteString("\n")

	builder.WriteString("Error Summary\n")
	builder.WriteString("-------------\n")
	if snapshot.Error == nil {
		builder.WriteString("No error recorded.\n")
	} else {
		builder.WriteString(fmt.Sprintf("Type:                 %s\n", snapshot.Error.Type))
		builder.WriteString(fmt.Sprintf("Category:             %s\n", snapshot.Error.Category))
		if snapshot.Error.Code != "" {
			builder.WriteString(fmt.Sprintf("Code:                 %s\n", snapshot.Error.Code))
		}
		builder.WriteString(fmt.Sprintf("Message:              %s\n", TruncateString(snapshot.Error.Message, promptMessageLimit)))
		if len(snapshot.Error.RecoveryActions) > 0 {
			builder.WriteString("Suggested Recovery:\n")
			for _, action := range snapshot.Error.RecoveryActions {
				builder.WriteString(fmt.Sprintf("- %s\n", action))
			}
		}
	}
	builder.WriteString("\n")

	builder.WriteString("Last Successful Operation\n")
	builder.WriteString("-------------------------\n")
	if entry, ok := lastCompleted(snapshot.Logs); ok {
		builder.WriteString(fmt.Sprintf("%s %s: %s\n", formatTime(entry.Timestamp), formatInline(entry.Operation, "-"), entry.Message))
	} else {
		builder.WriteString("No completed operation found in recent logs.\n")
	}
	builder.WriteString("\n")

	builder.WriteString("Operations In Flight\n")
	builder.WriteString("--------------------\n")
	if snapshot.ActiveSpanCount == 0 {
		builder.WriteString("No operations in flight.\n")
	} else {
		for _, span := range snapshot.PendingSpans {
			age := time.Duration(span.AgeMs * float64(time.Millisecond)).Round(time.Millisecond)
			builder.WriteString(fmt.Sprintf("- %s (span %s) running for %s\n", formatInline(span.Operation, "-"), span.SpanID, age))
		}
		if hidden := snapshot.ActiveSpanCount - len(snapshot.PendingSpans); hidden > 0 {
			builder.WriteString(fmt.Sprintf("... and %d more\n", hidden))
		}
	}
	builder.WriteString("\n")

	builder.WriteString("Health Issues\n")
	builder.WriteString("-------------\n")
	issues := 0
	for _, status := range snapshot.HealthStatus {
		if status.Status == domain.HealthHealthy {
			continue
		}
		issues++
		builder.WriteString(fmt.Sprintf("- %s [%s]: %s\n", status.Component, status.Status, status.Message))
	}
	if issues == 0 {
		builder.WriteString("All health checks passed.\n")
	}
	builder.WriteString("\n")

	builder.WriteString("Recent Errors\n")
	builder.WriteString("-------------\n")
	recent := recentErrors(snapshot.Logs, promptRecentErrorLimit)
	if len(recent) == 0 {
		builder.WriteString("No recent error logs.\n")
	} else {
		for _, entry := range recent {
			builder.WriteString(fmt.Sprintf("- %s %s: %s\n", formatTime(entry.Timestamp), formatInline(entry.Operation, "-"), TruncateString(entry.Message, promptMessageLimit)))
		}
	}
	builder.WriteString("\n")

	info := snapshot.SystemInfo
	builder.WriteString("System Information\n")
	builder.WriteString("------------------\n")
	builder.WriteString(fmt.Sprintf("Runtime:              %s\n", info.RuntimeVersion))
	builder.WriteString(fmt.Sprintf("Platform:             %s\n", info.Platform))
	builder.WriteString(fmt.Sprintf("CPUs:                 %d\n", info.NumCPU))
	builder.WriteString(fmt.Sprintf("Heap (MB):            %.1f\n", float64(info.MemoryUsage.HeapAlloc)/(1<<20)))
	builder.WriteString(fmt.Sprintf("Uptime:               %s\n", (time.Duration(info.UptimeSeconds * float64(time.Second))).Round(time.Second)))
	builder.WriteString("\n")

	if snapshot.WorkspaceInfo != nil && len(snapshot.WorkspaceInfo.Config) > 0 {
		builder.WriteString("Workspace Configuration (redacted)\n")
		builder.WriteString("----------------------------------\n")
		rendered, err := yaml.Marshal(RedactConfig(snapshot.WorkspaceInfo.Config))
		if err != nil {
			builder.WriteString(fmt.Sprintf("unavailable: %v\n", err))
		} else {
			builder.Write(rendered)
		}
		builder.WriteString("\n")
	}

	builder.WriteString("Please analyze the information above and provide:\n")
	builder.WriteString("1. The most likely root cause\n")
	builder.WriteString("2. Step-by-step instructions to resolve it\n")
	builder.WriteString("3. How to prevent it from happening again\n")

	return ScrubText(builder.String(), snapshotSecrets(snapshot))
}

func lastCompleted(logs []domain.LogEntry) (domain.LogEntry, bool) {
	for i := len(logs) - 1; i >= 0; i-- {
		if strings.Contains(strings.ToLower(logs[i].Message), "completed") {
			return logs[i], true
		}
	}
	return domain.LogEntry{}, false
}

func recentErrors(logs []domain.LogEntry, limit int) []domain.LogEntry {
	var out []domain.LogEntry
	for i := len(logs) - 1; i >= 0 && len(out) < limit; i-- {
		if logs[i].Level == domain.LogLevelError {
			out = append(out, logs[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// snapshotSecrets gathers secret values from every free-form map a snapshot
// carries.
func snapshotSecrets(snapshot domain.DiagnosticSnapshot) []string {
	sources := make([]any, 0, len(snapshot.Logs)*2+len(snapshot.HealthStatus)+1)
	if snapshot.WorkspaceInfo != nil && snapshot.WorkspaceInfo.Config != nil {
		sources = append(sources, snapshot.WorkspaceInfo.Config)
	}
	for _, entry := range snapshot.Logs {
		if entry.Metadata != nil {
			sources = append(sources, entry.Metadata)
		}
		if entry.Context.Fields != nil {
			sources = append(sources, entry.Context.Fields)
		}
	}
	for _, status := range snapshot.HealthStatus {
		if status.Details != nil {
			sources = append(sources, status.Details)
		}
	}
	return SecretValues(map[string]any{"sources": sources})
}

func formatInline(value, fallback string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\n", " "))
	if value == "" {
		return fallback
	}
	return value
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}
