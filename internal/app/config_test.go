package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"obskit/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "obskit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	want := DefaultConfig()
	want.Observability.ListenAddress = domain.DefaultObservabilityAddress
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("default config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: warning
  enableConsole: false
  enableFile: true
  filePath: /var/log/obskit.jsonl
  enableStructured: true
  enableTracing: false
enableTracing: false
metrics:
  bufferSize: 200
  sampleIntervalSeconds: 5
  samplerEnabled: false
tracing:
  completedSpanLimit: 50
diagnostics:
  workspaceDir: /srv/infra
  historyPath: /srv/infra/.obskit/history.db
  toolTimeoutSeconds: 2
  memoryWarningMB: 100
  memoryErrorMB: 200
  healthSweepSeconds: 0
  tools:
    - name: kubectl
      args: ["version", "--client"]
observability:
  listenAddress: 0.0.0.0:9100
  healthzEnabled: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, domain.LogLevelWarn, cfg.Logger.Level)
	require.False(t, cfg.Logger.EnableConsole)
	require.True(t, cfg.Logger.EnableFile)
	require.Equal(t, "/var/log/obskit.jsonl", cfg.Logger.FilePath)
	require.True(t, cfg.Logger.EnableStructured)
	require.True(t, cfg.Logger.DisableTracing)
	require.False(t, cfg.EnableTracing)
	require.True(t, cfg.EnableMetrics)
	require.Equal(t, 200, cfg.Metrics.BufferSize)
	require.Equal(t, 5*time.Second, cfg.Metrics.SampleInterval)
	require.False(t, cfg.Metrics.SamplerEnabled)
	require.Equal(t, 50, cfg.Tracing.CompletedSpanLimit)
	require.Equal(t, "/srv/infra", cfg.Diagnostics.WorkspaceDir)
	require.Equal(t, 2*time.Second, cfg.Diagnostics.ToolTimeout)
	require.Equal(t, uint64(100*1024*1024), cfg.Diagnostics.MemoryWarningBytes)
	require.Equal(t, uint64(200*1024*1024), cfg.Diagnostics.MemoryErrorBytes)
	require.Zero(t, cfg.Diagnostics.HealthSweepInterval)
	require.Equal(t, []domain.ToolSpec{{Name: "kubectl", Command: "kubectl", Args: []string{"version", "--client"}}}, cfg.Diagnostics.Tools)
	require.Equal(t, "0.0.0.0:9100", cfg.Observability.ListenAddress)
	require.NotNil(t, cfg.Observability.HealthzEnabled)
	require.True(t, *cfg.Observability.HealthzEnabled)
	require.Nil(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n")
	t.Setenv("OBSKIT_LOGGER_LEVEL", "debug")
	t.Setenv("OBSKIT_ENABLEDIAGNOSTICS", "false")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, domain.LogLevelDebug, cfg.Logger.Level)
	require.False(t, cfg.EnableDiagnostics)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown level", content: "logger:\n  level: loud\n", wantErr: "logger.level"},
		{name: "file without path", content: "logger:\n  enableFile: true\n", wantErr: "logger.filePath is required"},
		{name: "negative buffer", content: "metrics:\n  bufferSize: -1\n", wantErr: "metrics.bufferSize must be >= 0"},
		{name: "inverted memory thresholds", content: "diagnostics:\n  memoryWarningMB: 500\n  memoryErrorMB: 100\n", wantErr: "memoryErrorMB"},
		{name: "unnamed tool", content: "diagnostics:\n  tools:\n    - command: helm\n", wantErr: "diagnostics.tools[0]: name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, domain.ErrInvalidConfig)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")

	_, err = LoadConfig(writeConfig(t, "logger: [unclosed"))
	require.ErrorContains(t, err, "parse config")
}

func TestVersionString(t *testing.T) {
	prevVersion, prevBuild := Version, Build
	t.Cleanup(func() { Version, Build = prevVersion, prevBuild })

	Version, Build = "1.2.0", ""
	require.Equal(t, "1.2.0", VersionString())
	Build = "abc123"
	require.Equal(t, "1.2.0 (abc123)", VersionString())
}
