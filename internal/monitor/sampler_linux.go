//go:build linux

package monitor

import (
	"fmt"
	"os"
)

// ProcSampler reads /proc/<pid>/status and /proc/<pid>/stat.
type ProcSampler struct{}

func (ProcSampler) Sample(pid int) (*Sample, error) {
	status, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return nil, fmt.Errorf("process %d not observable: %w", pid, err)
	}

	s := &Sample{}
	parseStatus(status, s)

	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err == nil {
		// Accounting beyond memory is best-effort.
		_ = parseStat(stat, s)
	}

	return s, nil
}

// NewPlatformSampler returns the /proc-backed sampler.
func NewPlatformSampler() ResourceSampler { return ProcSampler{} }
