package metrics

import (
	"github.com/prometheus/procfs"
)

// ProcessStats reads resource usage of the current process.
type ProcessStats interface {
	RSSBytes() (uint64, error)
	CPUSeconds() (float64, error)
}

// ProcfsStats reads /proc/self. On platforms without procfs every call
// returns an error and callers skip the sample.
type ProcfsStats struct{}

func NewProcfsStats() *ProcfsStats {
	return &ProcfsStats{}
}

func (ProcfsStats) stat() (procfs.ProcStat, error) {
	proc, err := procfs.Self()
	if err != nil {
		return procfs.ProcStat{}, err
	}
	return proc.Stat()
}

func (s ProcfsStats) RSSBytes() (uint64, error) {
	stat, err := s.stat()
	if err != nil {
		return 0, err
	}
	return uint64(stat.ResidentMemory()), nil
}

func (s ProcfsStats) CPUSeconds() (float64, error) {
	stat, err := s.stat()
	if err != nil {
		return 0, err
	}
	return stat.CPUTime(), nil
}

var _ ProcessStats = ProcfsStats{}
