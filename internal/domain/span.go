package domain

import "time"

type SpanStatus string

const (
	SpanStatusPending SpanStatus = "pending"
	SpanStatusSuccess SpanStatus = "success"
	SpanStatusError   SpanStatus = "error"
)

// Finished reports whether the status is terminal.
func (s SpanStatus) Finished() bool {
	return s == SpanStatusSuccess || s == SpanStatusError
}

// Span tag keys written by the tracer.
const (
	TagError        = "error"
	TagErrorMessage = "error.message"
	TagErrorType    = "error.type"
	TagAborted      = "aborted"
)

// Span is a timed unit of work. EndTime and DurationMs are set only once the
// span leaves the pending state.
type Span struct {
	TraceID      string            `json:"traceId"`
	SpanID       string            `json:"spanId"`
	ParentSpanID string            `json:"parentSpanId,omitempty"`
	Operation    string            `json:"operation"`
	StartTime    time.Time         `json:"startTime"`
	EndTime      *time.Time        `json:"endTime,omitempty"`
	DurationMs   *float64          `json:"duration,omitempty"`
	Status       SpanStatus        `json:"status"`
	Tags         map[string]string `json:"tags"`
	Logs         []LogEntry        `json:"logs"`
}

func (s Span) Clone() Span {
	out := s
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	if s.DurationMs != nil {
		duration := *s.DurationMs
		out.DurationMs = &duration
	}
	out.Tags = CloneStringMap(s.Tags)
	if out.Tags == nil {
		out.Tags = map[string]string{}
	}
	out.Logs = make([]LogEntry, 0, len(s.Logs))
	for _, entry := range s.Logs {
		out.Logs = append(out.Logs, entry.Clone())
	}
	return out
}

// TraceNode is one span within a trace tree.
type TraceNode struct {
	Span     Span         `json:"span"`
	Children []*TraceNode `json:"children,omitempty"`
}

// TraceTree is the set of spans sharing a trace id arranged by parent links.
// Roots holds spans without a parent, or whose parent is no longer retained.
type TraceTree struct {
	TraceID string       `json:"traceId"`
	Roots   []*TraceNode `json:"roots"`
}

type TraceSummary struct {
	TraceID         string  `json:"traceId"`
	SpanCount       int     `json:"spanCount"`
	PendingCount    int     `json:"pendingCount"`
	ErrorCount      int     `json:"errorCount"`
	TotalDurationMs float64 `json:"totalDuration"`
}

// CloneStringMap copies a tag map; nil stays nil.
func CloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// MergeStringMaps returns a new map holding base overlaid with extra.
func MergeStringMaps(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range extra {
		out[key] = value
	}
	return out
}
