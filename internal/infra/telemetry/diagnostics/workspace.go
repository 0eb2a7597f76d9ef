package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"obskit/internal/domain"
)

// readWorkspaceConfig parses a YAML or JSON workspace configuration.
func readWorkspaceConfig(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// InspectWorkspace describes the workspace rooted at dir. The returned config
// is the raw parsed document; redaction happens where it is rendered.
func InspectWorkspace(dir, name, configFile, stateFile string) *domain.WorkspaceInfo {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	if name == "" {
		name = filepath.Base(abs)
	}
	info := &domain.WorkspaceInfo{Name: name, Path: abs}
	if stat, err := os.Stat(abs); err == nil && stat.IsDir() {
		info.Exists = true
	}
	if configFile != "" {
		info.ConfigFile = filepath.Join(abs, configFile)
		if cfg, err := readWorkspaceConfig(info.ConfigFile); err == nil {
			info.ConfigPresent = true
			info.Config = cfg
		}
	}
	if stateFile != "" {
		info.StateFile = filepath.Join(abs, stateFile)
		if stat, err := os.Stat(info.StateFile); err == nil && !stat.IsDir() {
			info.StatePresent = true
			info.StateSize = stat.Size()
		}
	}
	return info
}

// CollectSystemInfo captures static facts about the running process.
func CollectSystemInfo(started time.Time, read MemoryReader) domain.SystemInfo {
	if read == nil {
		read = RuntimeMemory
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	heap, rss := read()
	hostname, _ := os.Hostname()
	return domain.SystemInfo{
		RuntimeVersion: runtime.Version(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		Hostname:       hostname,
		NumCPU:         runtime.NumCPU(),
		Goroutines:     runtime.NumGoroutine(),
		MemoryUsage: domain.MemoryUsage{
			HeapAlloc: heap,
			HeapSys:   stats.HeapSys,
			Sys:       stats.Sys,
			RSS:       rss,
			NumGC:     stats.NumGC,
		},
		UptimeSeconds: time.Since(started).Seconds(),
	}
}
