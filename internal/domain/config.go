package domain

import "time"

// LoggerConfig configures the kernel logger and its sinks. The zero value is
// usable: entries follow SetTraceContext unless DisableTracing is set.
// MaxFileSize and MaxFiles are carried for rotation but not acted on.
type LoggerConfig struct {
	Level            LogLevel `json:"level"`
	EnableConsole    bool     `json:"enableConsole"`
	EnableFile       bool     `json:"enableFile"`
	FilePath         string   `json:"filePath,omitempty"`
	EnableStructured bool     `json:"enableStructured"`
	DisableTracing   bool     `json:"disableTracing,omitempty"`
	MaxFileSize      int64    `json:"maxFileSize,omitempty"`
	MaxFiles         int      `json:"maxFiles,omitempty"`
	BufferSize       int      `json:"bufferSize,omitempty"`
}

// DefaultLoggerConfig returns the logger defaults: info level, console on, file off.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:            LogLevelInfo,
		EnableConsole:    true,
		EnableFile:       false,
		EnableStructured: false,
		MaxFileSize:      DefaultLogFileMaxSizeBytes,
		MaxFiles:         DefaultLogFileMaxFiles,
		BufferSize:       DefaultLogBufferSize,
	}
}

type MetricsConfig struct {
	BufferSize     int           `json:"bufferSize"`
	SampleInterval time.Duration `json:"sampleInterval"`
	SamplerEnabled bool          `json:"samplerEnabled"`
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		BufferSize:     DefaultMetricBufferSize,
		SampleInterval: DefaultSampleInterval,
		SamplerEnabled: true,
	}
}

type TracingConfig struct {
	CompletedSpanLimit int `json:"completedSpanLimit"`
	SpanLogLimit       int `json:"spanLogLimit"`
}

func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		CompletedSpanLimit: DefaultCompletedSpanLimit,
		SpanLogLimit:       DefaultSpanLogLimit,
	}
}

// ToolSpec names an external command probed for availability.
type ToolSpec struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// DefaultTools are the infrastructure tools the kernel's consumers shell out to.
func DefaultTools() []ToolSpec {
	return []ToolSpec{
		{Name: "terraform", Command: "terraform", Args: []string{"version"}},
		{Name: "ansible", Command: "ansible", Args: []string{"--version"}},
	}
}

type DiagnosticsConfig struct {
	WorkspaceDir        string        `json:"workspaceDir"`
	SnapshotDir         string        `json:"snapshotDir"`
	HistoryPath         string        `json:"historyPath,omitempty"`
	StateFile           string        `json:"stateFile"`
	WorkspaceConfigFile string        `json:"workspaceConfigFile"`
	Tools               []ToolSpec    `json:"tools"`
	ToolTimeout         time.Duration `json:"toolTimeout"`
	MemoryWarningBytes  uint64        `json:"memoryWarningBytes"`
	MemoryErrorBytes    uint64        `json:"memoryErrorBytes"`
	StateFileWarnBytes  int64         `json:"stateFileWarnBytes"`
	HealthSweepInterval time.Duration `json:"healthSweepInterval"`
	LogTail             int           `json:"logTail"`
	MetricTail          int           `json:"metricTail"`
	SpanLimit           int           `json:"spanLimit"`
}

func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		WorkspaceDir:        ".",
		StateFile:           DefaultStateFileName,
		WorkspaceConfigFile: DefaultWorkspaceConfigFile,
		Tools:               DefaultTools(),
		ToolTimeout:         DefaultToolProbeTimeout,
		MemoryWarningBytes:  DefaultMemoryWarningBytes,
		MemoryErrorBytes:    DefaultMemoryErrorBytes,
		StateFileWarnBytes:  DefaultStateFileWarnBytes,
		HealthSweepInterval: DefaultHealthSweepInterval,
		LogTail:             DefaultSnapshotLogTail,
		MetricTail:          DefaultSnapshotMetricTail,
		SpanLimit:           DefaultSnapshotSpanLimit,
	}
}

// ObservabilityServerConfig controls the optional HTTP exporter. Nil flags
// mean on; an endpoint is still never served for a disabled component.
type ObservabilityServerConfig struct {
	ListenAddress  string `json:"listenAddress,omitempty"`
	MetricsEnabled *bool  `json:"metricsEnabled,omitempty"`
	HealthzEnabled *bool  `json:"healthzEnabled,omitempty"`
}
