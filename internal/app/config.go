package app

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"obskit/internal/domain"
)

const envPrefix = "OBSKIT"

type rawConfig struct {
	Logger            rawLoggerConfig        `mapstructure:"logger"`
	EnableMetrics     bool                   `mapstructure:"enableMetrics"`
	EnableTracing     bool                   `mapstructure:"enableTracing"`
	EnableDiagnostics bool                   `mapstructure:"enableDiagnostics"`
	Metrics           rawMetricsConfig       `mapstructure:"metrics"`
	Tracing           rawTracingConfig       `mapstructure:"tracing"`
	Diagnostics       rawDiagnosticsConfig   `mapstructure:"diagnostics"`
	Observability     rawObservabilityConfig `mapstructure:"observability"`
}

type rawLoggerConfig struct {
	Level            string `mapstructure:"level"`
	EnableConsole    bool   `mapstructure:"enableConsole"`
	EnableFile       bool   `mapstructure:"enableFile"`
	FilePath         string `mapstructure:"filePath"`
	EnableStructured bool   `mapstructure:"enableStructured"`
	EnableTracing    bool   `mapstructure:"enableTracing"`
	MaxFileSize      int64  `mapstructure:"maxFileSize"`
	MaxFiles         int    `mapstructure:"maxFiles"`
	BufferSize       int    `mapstructure:"bufferSize"`
}

type rawMetricsConfig struct {
	BufferSize            int  `mapstructure:"bufferSize"`
	SampleIntervalSeconds int  `mapstructure:"sampleIntervalSeconds"`
	SamplerEnabled        bool `mapstructure:"samplerEnabled"`
}

type rawTracingConfig struct {
	CompletedSpanLimit int `mapstructure:"completedSpanLimit"`
	SpanLogLimit       int `mapstructure:"spanLogLimit"`
}

type rawToolSpec struct {
	Name    string   `mapstructure:"name"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

type rawDiagnosticsConfig struct {
	WorkspaceDir        string        `mapstructure:"workspaceDir"`
	SnapshotDir         string        `mapstructure:"snapshotDir"`
	HistoryPath         string        `mapstructure:"historyPath"`
	StateFile           string        `mapstructure:"stateFile"`
	WorkspaceConfigFile string        `mapstructure:"workspaceConfigFile"`
	ToolTimeoutSeconds  int           `mapstructure:"toolTimeoutSeconds"`
	Tools               []rawToolSpec `mapstructure:"tools"`
	MemoryWarningMB     int           `mapstructure:"memoryWarningMB"`
	MemoryErrorMB       int           `mapstructure:"memoryErrorMB"`
	HealthSweepSeconds  int           `mapstructure:"healthSweepSeconds"`
}

type rawObservabilityConfig struct {
	ListenAddress  string `mapstructure:"listenAddress"`
	MetricsEnabled *bool  `mapstructure:"metricsEnabled"`
	HealthzEnabled *bool  `mapstructure:"healthzEnabled"`
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setConfigDefaults(v)
	return v
}

func setConfigDefaults(v *viper.Viper) {
	const mb = 1024 * 1024
	logger := domain.DefaultLoggerConfig()
	v.SetDefault("logger.level", string(logger.Level))
	v.SetDefault("logger.enableConsole", logger.EnableConsole)
	v.SetDefault("logger.enableFile", logger.EnableFile)
	v.SetDefault("logger.filePath", "")
	v.SetDefault("logger.enableStructured", logger.EnableStructured)
	v.SetDefault("logger.enableTracing", !logger.DisableTracing)
	v.SetDefault("logger.maxFileSize", logger.MaxFileSize)
	v.SetDefault("logger.maxFiles", logger.MaxFiles)
	v.SetDefault("logger.bufferSize", logger.BufferSize)

	v.SetDefault("enableMetrics", true)
	v.SetDefault("enableTracing", true)
	v.SetDefault("enableDiagnostics", true)

	v.SetDefault("metrics.bufferSize", domain.DefaultMetricBufferSize)
	v.SetDefault("metrics.sampleIntervalSeconds", int(domain.DefaultSampleInterval/time.Second))
	v.SetDefault("metrics.samplerEnabled", true)

	v.SetDefault("tracing.completedSpanLimit", domain.DefaultCompletedSpanLimit)
	v.SetDefault("tracing.spanLogLimit", domain.DefaultSpanLogLimit)

	tools := make([]map[string]any, 0, len(domain.DefaultTools()))
	for _, tool := range domain.DefaultTools() {
		tools = append(tools, map[string]any{"name": tool.Name, "command": tool.Command, "args": tool.Args})
	}
	v.SetDefault("diagnostics.workspaceDir", ".")
	v.SetDefault("diagnostics.snapshotDir", "")
	v.SetDefault("diagnostics.historyPath", "")
	v.SetDefault("diagnostics.stateFile", domain.DefaultStateFileName)
	v.SetDefault("diagnostics.workspaceConfigFile", domain.DefaultWorkspaceConfigFile)
	v.SetDefault("diagnostics.toolTimeoutSeconds", int(domain.DefaultToolProbeTimeout/time.Second))
	v.SetDefault("diagnostics.tools", tools)
	v.SetDefault("diagnostics.memoryWarningMB", domain.DefaultMemoryWarningBytes/mb)
	v.SetDefault("diagnostics.memoryErrorMB", domain.DefaultMemoryErrorBytes/mb)
	v.SetDefault("diagnostics.healthSweepSeconds", int(domain.DefaultHealthSweepInterval/time.Second))

	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityAddress)
}

// LoadConfig reads the YAML config at path, overlays OBSKIT_* environment
// variables and validates the result. An empty path loads defaults and
// environment only.
func LoadConfig(path string) (Config, error) {
	v := newConfigViper()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg, errs := normalizeConfig(raw)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return cfg, nil
}

func normalizeConfig(raw rawConfig) (Config, []string) {
	const mb = 1024 * 1024
	var errs []string

	level, err := domain.ParseLogLevel(raw.Logger.Level)
	if err != nil {
		errs = append(errs, fmt.Sprintf("logger.level %q is not one of debug, info, warn, error", raw.Logger.Level))
	}
	if raw.Logger.EnableFile && strings.TrimSpace(raw.Logger.FilePath) == "" {
		errs = append(errs, "logger.filePath is required when logger.enableFile is set")
	}
	for key, value := range map[string]int64{
		"logger.maxFileSize":             raw.Logger.MaxFileSize,
		"logger.maxFiles":                int64(raw.Logger.MaxFiles),
		"logger.bufferSize":              int64(raw.Logger.BufferSize),
		"metrics.bufferSize":             int64(raw.Metrics.BufferSize),
		"metrics.sampleIntervalSeconds":  int64(raw.Metrics.SampleIntervalSeconds),
		"tracing.completedSpanLimit":     int64(raw.Tracing.CompletedSpanLimit),
		"tracing.spanLogLimit":           int64(raw.Tracing.SpanLogLimit),
		"diagnostics.toolTimeoutSeconds": int64(raw.Diagnostics.ToolTimeoutSeconds),
		"diagnostics.memoryWarningMB":    int64(raw.Diagnostics.MemoryWarningMB),
		"diagnostics.memoryErrorMB":      int64(raw.Diagnostics.MemoryErrorMB),
		"diagnostics.healthSweepSeconds": int64(raw.Diagnostics.HealthSweepSeconds),
	} {
		if value < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", key))
		}
	}
	if raw.Diagnostics.MemoryErrorMB > 0 && raw.Diagnostics.MemoryErrorMB < raw.Diagnostics.MemoryWarningMB {
		errs = append(errs, "diagnostics.memoryErrorMB must be >= diagnostics.memoryWarningMB")
	}

	tools := make([]domain.ToolSpec, 0, len(raw.Diagnostics.Tools))
	for i, tool := range raw.Diagnostics.Tools {
		name := strings.TrimSpace(tool.Name)
		command := strings.TrimSpace(tool.Command)
		if command == "" {
			command = name
		}
		if name == "" {
			errs = append(errs, fmt.Sprintf("diagnostics.tools[%d]: name is required", i))
			continue
		}
		tools = append(tools, domain.ToolSpec{Name: name, Command: command, Args: append([]string(nil), tool.Args...)})
	}

	if len(errs) > 0 {
		return Config{}, errs
	}

	return Config{
		Logger: domain.LoggerConfig{
			Level:            level,
			EnableConsole:    raw.Logger.EnableConsole,
			EnableFile:       raw.Logger.EnableFile,
			FilePath:         strings.TrimSpace(raw.Logger.FilePath),
			EnableStructured: raw.Logger.EnableStructured,
			DisableTracing:   !raw.Logger.EnableTracing,
			MaxFileSize:      raw.Logger.MaxFileSize,
			MaxFiles:         raw.Logger.MaxFiles,
			BufferSize:       raw.Logger.BufferSize,
		},
		EnableMetrics:     raw.EnableMetrics,
		EnableTracing:     raw.EnableTracing,
		EnableDiagnostics: raw.EnableDiagnostics,
		Metrics: domain.MetricsConfig{
			BufferSize:     raw.Metrics.BufferSize,
			SampleInterval: time.Duration(raw.Metrics.SampleIntervalSeconds) * time.Second,
			SamplerEnabled: raw.Metrics.SamplerEnabled,
		},
		Tracing: domain.TracingConfig{
			CompletedSpanLimit: raw.Tracing.CompletedSpanLimit,
			SpanLogLimit:       raw.Tracing.SpanLogLimit,
		},
		Diagnostics: domain.DiagnosticsConfig{
			WorkspaceDir:        raw.Diagnostics.WorkspaceDir,
			SnapshotDir:         raw.Diagnostics.SnapshotDir,
			HistoryPath:         raw.Diagnostics.HistoryPath,
			StateFile:           raw.Diagnostics.StateFile,
			WorkspaceConfigFile: raw.Diagnostics.WorkspaceConfigFile,
			Tools:               tools,
			ToolTimeout:         time.Duration(raw.Diagnostics.ToolTimeoutSeconds) * time.Second,
			MemoryWarningBytes:  uint64(raw.Diagnostics.MemoryWarningMB) * mb,
			MemoryErrorBytes:    uint64(raw.Diagnostics.MemoryErrorMB) * mb,
			StateFileWarnBytes:  domain.DefaultStateFileWarnBytes,
			HealthSweepInterval: time.Duration(raw.Diagnostics.HealthSweepSeconds) * time.Second,
			LogTail:             domain.DefaultSnapshotLogTail,
			MetricTail:          domain.DefaultSnapshotMetricTail,
			SpanLimit:           domain.DefaultSnapshotSpanLimit,
		},
		Observability: domain.ObservabilityServerConfig{
			ListenAddress:  strings.TrimSpace(raw.Observability.ListenAddress),
			MetricsEnabled: raw.Observability.MetricsEnabled,
			HealthzEnabled: raw.Observability.HealthzEnabled,
		},
	}, nil
}
