package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"obskit/internal/domain"
)

func writeJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeYAML renders value through its JSON form so field names match the
// JSON output.
func writeYAML(w io.Writer, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(generic); err != nil {
		return err
	}
	return encoder.Close()
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
	healthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func statusStyle(state domain.HealthState) lipgloss.Style {
	switch state {
	case domain.HealthHealthy:
		return healthyStyle
	case domain.HealthWarning:
		return warningStyle
	default:
		return errorStyle
	}
}

func printHealth(w io.Writer, statuses []domain.HealthStatus) error {
	width := len("COMPONENT")
	for _, status := range statuses {
		if len(status.Component) > width {
			width = len(status.Component)
		}
	}
	column := lipgloss.NewStyle().Width(width + 2)
	stateColumn := lipgloss.NewStyle().Width(9)
	fmt.Fprintln(w, headerStyle.Render(column.Render("COMPONENT")+stateColumn.Render("STATUS")+"MESSAGE"))
	for _, status := range statuses {
		state := stateColumn.Render(statusStyle(status.Status).Render(string(status.Status)))
		if _, err := fmt.Fprintln(w, column.Render(status.Component)+state+status.Message); err != nil {
			return err
		}
	}
	return nil
}

func printHistory(w io.Writer, records []domain.SnapshotRecord) error {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("ID", "TIMESTAMP", "OPERATION", "HEALTHY", "WARN", "ERROR", "ERROR MESSAGE").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.PaddingRight(2)
			}
			return cellStyle
		})
	for _, record := range records {
		t.Row(
			record.ID,
			record.Timestamp.Format(time.RFC3339),
			dash(record.Operation),
			strconv.Itoa(record.Healthy),
			strconv.Itoa(record.Warnings),
			strconv.Itoa(record.Errors),
			dash(record.ErrorMessage),
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func printLogEntry(w io.Writer, entry domain.LogEntry) {
	line := fmt.Sprintf("%s %-5s %s", entry.Timestamp.Format(time.RFC3339), strings.ToUpper(string(entry.Level)), entry.Message)
	if entry.Operation != "" {
		line += " operation=" + entry.Operation
	}
	if entry.CorrelationID != "" {
		line += " correlationId=" + entry.CorrelationID
	}
	if entry.Error != nil {
		line += fmt.Sprintf(" category=%s error=%q", entry.Error.Category, entry.Error.Message)
	}
	fmt.Fprintln(w, line)
}

func printSummary(w io.Writer, summary domain.MetricsSummary) {
	fmt.Fprintf(w, "window=%s metrics=%d operations=%d\n", summary.Window, summary.TotalMetrics, summary.UniqueOperations)
	fmt.Fprintf(w, "avgResponseTime=%.2fms errorRate=%.2f%%\n", summary.AvgResponseTime, summary.ErrorRate*100)
	fmt.Fprintf(w, "memory current=%d peak=%d\n", summary.MemoryUsage.Current, summary.MemoryUsage.Peak)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
