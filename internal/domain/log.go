package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Rank orders levels so that filtering can compare them; unknown levels rank as info.
func (l LogLevel) Rank() int {
	switch l {
	case LogLevelDebug:
		return 10
	case LogLevelInfo:
		return 20
	case LogLevelWarn:
		return 30
	case LogLevelError:
		return 40
	default:
		return 20
	}
}

func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// ParseLogLevel accepts the canonical names plus "warning".
func ParseLogLevel(value string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return "", fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, value)
	}
}

// ErrorCategory is the coarse bucket assigned to an error by the classifier.
type ErrorCategory string

const (
	CategoryConnection ErrorCategory = "connection"
	CategoryValidation ErrorCategory = "validation"
	CategoryTerraform  ErrorCategory = "terraform"
	CategoryAnsible    ErrorCategory = "ansible"
	CategoryRemoteAPI  ErrorCategory = "remote-api"
	CategoryWorkspace  ErrorCategory = "workspace"
	CategorySystem     ErrorCategory = "system"
	CategoryUser       ErrorCategory = "user"
)

// ErrorInfo is the serialisable description of an error attached to a log entry.
type ErrorInfo struct {
	Type            string        `json:"type"`
	Message         string        `json:"message"`
	Stack           string        `json:"stack"`
	RecoveryActions []string      `json:"recoveryActions"`
	Code            string        `json:"code,omitempty"`
	Category        ErrorCategory `json:"category"`
}

func (e *ErrorInfo) Clone() *ErrorInfo {
	if e == nil {
		return nil
	}
	out := *e
	out.RecoveryActions = append([]string(nil), e.RecoveryActions...)
	return &out
}

// LogContext carries the structured context of a log call.
//
// Operation, Phase, CorrelationID and TraceID are routing hints consumed by the
// logger; they are lifted onto the LogEntry and never serialised inside the context.
// Fields holds freeform keys that are flattened into the JSON object.
type LogContext struct {
	Operation     string
	Phase         string
	CorrelationID string
	TraceID       string

	Workspace         string
	ServerID          string
	ResourcesAffected []string
	DurationMs        float64
	SessionID         string
	Fields            map[string]any
}

var reservedContextKeys = map[string]struct{}{
	"workspace":         {},
	"serverId":          {},
	"resourcesAffected": {},
	"duration":          {},
	"sessionId":         {},
}

// Merge overlays non-empty values from other onto c and returns the result.
func (c LogContext) Merge(other LogContext) LogContext {
	out := c.Clone()
	if other.Operation != "" {
		out.Operation = other.Operation
	}
	if other.Phase != "" {
		out.Phase = other.Phase
	}
	if other.CorrelationID != "" {
		out.CorrelationID = other.CorrelationID
	}
	if other.TraceID != "" {
		out.TraceID = other.TraceID
	}
	if other.Workspace != "" {
		out.Workspace = other.Workspace
	}
	if other.ServerID != "" {
		out.ServerID = other.ServerID
	}
	if len(other.ResourcesAffected) > 0 {
		out.ResourcesAffected = append(out.ResourcesAffected, other.ResourcesAffected...)
	}
	if other.DurationMs != 0 {
		out.DurationMs = other.DurationMs
	}
	if other.SessionID != "" {
		out.SessionID = other.SessionID
	}
	if len(other.Fields) > 0 {
		if out.Fields == nil {
			out.Fields = make(map[string]any, len(other.Fields))
		}
		for key, value := range other.Fields {
			out.Fields[key] = value
		}
	}
	return out
}

func (c LogContext) Clone() LogContext {
	out := c
	out.ResourcesAffected = append([]string(nil), c.ResourcesAffected...)
	if c.Fields != nil {
		out.Fields = make(map[string]any, len(c.Fields))
		for key, value := range c.Fields {
			out.Fields[key] = value
		}
	}
	return out
}

// Map renders the context as the flat object used for JSON and zap encoding.
func (c LogContext) Map() map[string]any {
	out := make(map[string]any, len(c.Fields)+5)
	for key, value := range c.Fields {
		if _, reserved := reservedContextKeys[key]; reserved {
			continue
		}
		out[key] = value
	}
	if c.Workspace != "" {
		out["workspace"] = c.Workspace
	}
	if c.ServerID != "" {
		out["serverId"] = c.ServerID
	}
	resources := c.ResourcesAffected
	if resources == nil {
		resources = []string{}
	}
	out["resourcesAffected"] = resources
	if c.DurationMs != 0 {
		out["duration"] = c.DurationMs
	}
	out["sessionId"] = c.SessionID
	return out
}

func (c LogContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

func (c *LogContext) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = LogContext{}
	for key, value := range raw {
		switch key {
		case "workspace":
			c.Workspace, _ = value.(string)
		case "serverId":
			c.ServerID, _ = value.(string)
		case "sessionId":
			c.SessionID, _ = value.(string)
		case "duration":
			c.DurationMs, _ = value.(float64)
		case "resourcesAffected":
			items, _ := value.([]any)
			for _, item := range items {
				if s, ok := item.(string); ok {
					c.ResourcesAffected = append(c.ResourcesAffected, s)
				}
			}
		default:
			if c.Fields == nil {
				c.Fields = make(map[string]any)
			}
			c.Fields[key] = value
		}
	}
	return nil
}

// LogEntry is one immutable record in the logger buffer.
type LogEntry struct {
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlationId"`
	TraceID       string         `json:"traceId,omitempty"`
	Operation     string         `json:"operation"`
	Phase         string         `json:"phase"`
	Level         LogLevel       `json:"level"`
	Message       string         `json:"message"`
	Context       LogContext     `json:"context"`
	Error         *ErrorInfo     `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy that shares no slices or maps with e.
func (e LogEntry) Clone() LogEntry {
	out := e
	out.Context = e.Context.Clone()
	out.Error = e.Error.Clone()
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for key, value := range e.Metadata {
			out.Metadata[key] = value
		}
	}
	return out
}
