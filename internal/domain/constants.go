package domain

import "time"

const (
	DefaultLogBufferSize        = 1000
	DefaultMetricBufferSize     = 5000
	DefaultCompletedSpanLimit   = 1000
	DefaultSpanLogLimit         = 100
	DefaultRecentLogsLimit      = 100
	DefaultMetricsQueryLimit    = 100
	DefaultSnapshotLogTail      = 500
	DefaultSnapshotMetricTail   = 200
	DefaultSnapshotSpanLimit    = 50
	DefaultLogFileMaxSizeBytes  = 10 * 1024 * 1024
	DefaultLogFileMaxFiles      = 5
	DefaultSampleInterval       = 30 * time.Second
	DefaultHealthSweepInterval  = 5 * time.Minute
	DefaultToolProbeTimeout     = 5 * time.Second
	DefaultMemoryWarningBytes   = 512 * 1024 * 1024
	DefaultMemoryErrorBytes     = 1024 * 1024 * 1024
	DefaultStateFileWarnBytes   = 50 * 1024 * 1024
	DefaultSnapshotDirName      = "diagnostics"
	DefaultWorkspaceConfigFile  = "config.yaml"
	DefaultStateFileName        = "state.db"
	DefaultObservabilityAddress = "127.0.0.1:9464"
)

// DefaultSummaryWindow is the metrics summary window used when callers pass zero.
const DefaultSummaryWindow = 5 * time.Minute

// SystemMetricTag marks metrics produced by the background sampler.
const SystemMetricTag = "system"
