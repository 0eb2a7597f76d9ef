package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/procfs"

	"obskit/internal/domain"
	"obskit/internal/infra/probe"
)

// Probe is one independent health check.
type Probe interface {
	Name() string
	Check(ctx context.Context) (domain.HealthStatus, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc struct {
	Component string
	Fn        func(ctx context.Context) (domain.HealthStatus, error)
}

func (p ProbeFunc) Name() string { return p.Component }

func (p ProbeFunc) Check(ctx context.Context) (domain.HealthStatus, error) {
	return p.Fn(ctx)
}

// runProbe executes p and converts errors and panics into an error status so
// one failing probe never affects the others.
func runProbe(ctx context.Context, p Probe, now func() time.Time) (status domain.HealthStatus) {
	name := p.Name()
	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			status = domain.HealthStatus{
				Component: name,
				Status:    domain.HealthError,
				Message:   fmt.Sprintf("health check panicked: %v", recovered),
			}
		}
		if status.Component == "" {
			status.Component = name
		}
		if status.Status == "" {
			status.Status = domain.HealthError
		}
		if status.Timestamp.IsZero() {
			status.Timestamp = now()
		}
		elapsed := float64(time.Since(start)) / float64(time.Millisecond)
		status.ResponseTimeMs = &elapsed
	}()

	result, err := p.Check(ctx)
	if err != nil {
		return domain.HealthStatus{
			Component: name,
			Status:    domain.HealthError,
			Message:   err.Error(),
			Details:   result.Details,
		}
	}
	return result
}

// LoadReader returns the one-minute load average.
type LoadReader func() (float64, error)

// ProcfsLoad reads /proc/loadavg.
func ProcfsLoad() (float64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, err
	}
	load, err := fs.LoadAvg()
	if err != nil {
		return 0, err
	}
	return load.Load1, nil
}

// LoadProbe compares the load average with the CPU count. Load above the
// CPU count is a warning, above twice the count an error.
type LoadProbe struct {
	Read   LoadReader
	NumCPU int
}

func (p LoadProbe) Name() string { return "system_load" }

func (p LoadProbe) Check(context.Context) (domain.HealthStatus, error) {
	read := p.Read
	if read == nil {
		read = ProcfsLoad
	}
	cpus := p.NumCPU
	if cpus <= 0 {
		cpus = runtime.NumCPU()
	}
	load, err := read()
	if err != nil {
		return domain.HealthStatus{
			Component: p.Name(),
			Status:    domain.HealthHealthy,
			Message:   "Load average unavailable on this platform",
			Details:   map[string]any{"cpus": cpus, "reason": err.Error()},
		}, nil
	}
	details := map[string]any{"load1": load, "cpus": cpus}
	switch {
	case load > float64(2*cpus):
		return domain.HealthStatus{Component: p.Name(), Status: domain.HealthError, Message: fmt.Sprintf("System load %.2f exceeds twice the CPU count (%d)", load, cpus), Details: details}, nil
	case load > float64(cpus):
		return domain.HealthStatus{Component: p.Name(), Status: domain.HealthWarning, Message: fmt.Sprintf("System load %.2f exceeds the CPU count (%d)", load, cpus), Details: details}, nil
	default:
		return domain.HealthStatus{Component: p.Name(), Status: domain.HealthHealthy, Message: fmt.Sprintf("System load %.2f is normal", load), Details: details}, nil
	}
}

// MemoryReader returns heap and resident set sizes in bytes. RSS may be zero
// when the platform does not expose it.
type MemoryReader func() (heap uint64, rss uint64)

func RuntimeMemory() (uint64, uint64) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	var rss uint64
	if proc, err := procfs.Self(); err == nil {
		if stat, err := proc.Stat(); err == nil {
			rss = uint64(stat.ResidentMemory())
		}
	}
	return stats.HeapAlloc, rss
}

// MemoryProbe compares heap usage with the warning and error thresholds.
type MemoryProbe struct {
	Read         MemoryReader
	WarningBytes uint64
	ErrorBytes   uint64
}

func (p MemoryProbe) Name() string { return "memory" }

func (p MemoryProbe) Check(context.Context) (domain.HealthStatus, error) {
	read := p.Read
	if read == nil {
		read = RuntimeMemory
	}
	warning, limit := p.WarningBytes, p.ErrorBytes
	if warning == 0 {
		warning = domain.DefaultMemoryWarningBytes
	}
	if limit == 0 {
		limit = domain.DefaultMemoryErrorBytes
	}
	heap, rss := read()
	details := map[string]any{"heapBytes": heap, "warningBytes": warning, "errorBytes": limit}
	if rss > 0 {
		details["rssBytes"] = rss
	}
	heapMB := float64(heap) / (1 << 20)
	switch {
	case heap >= limit:
		return domain.HealthStatus{Component: p.Name(), Status: domain.HealthError, Message: fmt.Sprintf("Heap usage %.1f MB exceeds the error threshold", heapMB), Details: details}, nil
	case heap >= warning:
		return domain.HealthStatus{Component: p.Name(), Status: domain.HealthWarning, Message: fmt.Sprintf("Heap usage %.1f MB exceeds the warning threshold", heapMB), Details: details}, nil
	default:
		return domain.HealthStatus{Component: p.Name(), Status: domain.HealthHealthy, Message: fmt.Sprintf("Heap usage %.1f MB", heapMB), Details: details}, nil
	}
}

// ToolCheck reports whether an external tool answers its version command.
type ToolCheck struct {
	Spec  domain.ToolSpec
	Probe *probe.ToolProbe
}

func (p ToolCheck) Name() string { return "tool_" + p.Spec.Name }

func (p ToolCheck) Check(ctx context.Context) (domain.HealthStatus, error) {
	prober := p.Probe
	if prober == nil {
		prober = &probe.ToolProbe{}
	}
	version, err := prober.Probe(ctx, p.Spec)
	if err != nil {
		status := domain.HealthStatus{
			Component: p.Name(),
			Status:    domain.HealthError,
			Message:   fmt.Sprintf("%s is not available", p.Spec.Name),
			Details:   map[string]any{"command": p.Spec.Command, "reason": err.Error()},
		}
		if errors.Is(err, context.DeadlineExceeded) {
			status.Message = fmt.Sprintf("%s version check timed out", p.Spec.Name)
		}
		return status, nil
	}
	return domain.HealthStatus{
		Component: p.Name(),
		Status:    domain.HealthHealthy,
		Message:   fmt.Sprintf("%s %s available", p.Spec.Name, version.Version),
		Details:   map[string]any{"version": version.Version, "command": version.Command},
	}, nil
}

// StateFileProbe checks the local state file. A missing file is normal for a
// fresh workspace; an oversized one is a warning.
type StateFileProbe struct {
	Path      string
	WarnBytes int64
}

func (p StateFileProbe) Name() string { return "state_file" }

func (p StateFileProbe) Check(context.Context) (domain.HealthStatus, error) {
	limit := p.WarnBytes
	if limit <= 0 {
		limit = domain.DefaultStateFileWarnBytes
	}
	info, err := os.Stat(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.HealthStatus{
			Component: p.Name(),
			Status:    domain.HealthHealthy,
			Message:   "No state file yet",
			Details:   map[string]any{"path": p.Path, "exists": false},
		}, nil
	}
	if err != nil {
		return domain.HealthStatus{}, fmt.Errorf("stat state file: %w", err)
	}
	if info.IsDir() {
		return domain.HealthStatus{}, fmt.Errorf("state file %s is a directory", p.Path)
	}
	details := map[string]any{"path": p.Path, "exists": true, "sizeBytes": info.Size()}
	if info.Size() > limit {
		return domain.HealthStatus{
			Component: p.Name(),
			Status:    domain.HealthWarning,
			Message:   fmt.Sprintf("State file is large (%d bytes)", info.Size()),
			Details:   details,
		}, nil
	}
	return domain.HealthStatus{
		Component: p.Name(),
		Status:    domain.HealthHealthy,
		Message:   "State file present",
		Details:   details,
	}, nil
}

// WorkspaceConfigProbe checks that the workspace configuration exists and parses.
type WorkspaceConfigProbe struct {
	Dir        string
	ConfigFile string
}

func (p WorkspaceConfigProbe) Name() string { return "workspace_config" }

func (p WorkspaceConfigProbe) Check(context.Context) (domain.HealthStatus, error) {
	path := filepath.Join(p.Dir, p.ConfigFile)
	if _, err := os.Stat(p.Dir); err != nil {
		return domain.HealthStatus{
			Component: p.Name(),
			Status:    domain.HealthError,
			Message:   "Workspace directory not found",
			Details:   map[string]any{"path": p.Dir},
		}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return domain.HealthStatus{
			Component: p.Name(),
			Status:    domain.HealthWarning,
			Message:   "Workspace configuration not found",
			Details:   map[string]any{"path": path},
		}, nil
	}
	if _, err := readWorkspaceConfig(path); err != nil {
		return domain.HealthStatus{
			Component: p.Name(),
			Status:    domain.HealthError,
			Message:   "Workspace configuration is invalid",
			Details:   map[string]any{"path": path, "reason": err.Error()},
		}, nil
	}
	return domain.HealthStatus{
		Component: p.Name(),
		Status:    domain.HealthHealthy,
		Message:   "Workspace configuration present",
		Details:   map[string]any{"path": path},
	}, nil
}
