package domain

import "time"

type HealthState string

const (
	HealthHealthy HealthState = "healthy"
	HealthWarning HealthState = "warning"
	HealthError   HealthState = "error"
)

// HealthStatus is the result of one health probe run.
type HealthStatus struct {
	Component      string         `json:"component"`
	Status         HealthState    `json:"status"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	ResponseTimeMs *float64       `json:"responseTime,omitempty"`
}

type MemoryUsage struct {
	HeapAlloc uint64 `json:"heapAlloc"`
	HeapSys   uint64 `json:"heapSys"`
	Sys       uint64 `json:"sys"`
	RSS       uint64 `json:"rss,omitempty"`
	NumGC     uint32 `json:"numGC"`
}

type SystemInfo struct {
	RuntimeVersion string      `json:"runtimeVersion"`
	Platform       string      `json:"platform"`
	Hostname       string      `json:"hostname,omitempty"`
	NumCPU         int         `json:"numCPU"`
	Goroutines     int         `json:"goroutines"`
	MemoryUsage    MemoryUsage `json:"memoryUsage"`
	UptimeSeconds  float64     `json:"uptimeSeconds"`
}

// WorkspaceInfo describes the workspace a snapshot was taken for.
// Config holds the parsed workspace configuration before redaction.
type WorkspaceInfo struct {
	Name          string         `json:"name"`
	Path          string         `json:"path"`
	Exists        bool           `json:"exists"`
	ConfigFile    string         `json:"configFile,omitempty"`
	ConfigPresent bool           `json:"configPresent"`
	StateFile     string         `json:"stateFile,omitempty"`
	StatePresent  bool           `json:"statePresent"`
	StateSize     int64          `json:"stateSize,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
}

// PendingSpan is a span still open when a snapshot was taken.
type PendingSpan struct {
	TraceID   string    `json:"traceId"`
	SpanID    string    `json:"spanId"`
	Operation string    `json:"operation"`
	StartTime time.Time `json:"startTime"`
	AgeMs     float64   `json:"ageMs"`
}

// DiagnosticSnapshot is a point-in-time troubleshooting bundle. It is never
// mutated after GenerateSnapshot returns it.
type DiagnosticSnapshot struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Workspace     string         `json:"workspace,omitempty"`
	Operation     string         `json:"operation,omitempty"`
	Error         *ErrorInfo     `json:"error,omitempty"`
	Logs          []LogEntry     `json:"logs"`
	Metrics       []Metric       `json:"metrics"`
	HealthStatus  []HealthStatus `json:"healthStatus"`
	SystemInfo    SystemInfo     `json:"systemInfo"`
	WorkspaceInfo *WorkspaceInfo `json:"workspaceInfo,omitempty"`
	// ActiveSpanCount counts every open span; PendingSpans keeps the oldest.
	ActiveSpanCount int           `json:"activeSpanCount"`
	PendingSpans    []PendingSpan `json:"pendingSpans"`
}

// SnapshotRecord is the compact index entry kept for every generated snapshot.
type SnapshotRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Workspace    string    `json:"workspace,omitempty"`
	Operation    string    `json:"operation,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Healthy      int       `json:"healthy"`
	Warnings     int       `json:"warnings"`
	Errors       int       `json:"errors"`
	Path         string    `json:"path,omitempty"`
}
