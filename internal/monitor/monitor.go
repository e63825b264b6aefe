package monitor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the memory sampling period.
const DefaultInterval = 100 * time.Millisecond

// Linux USER_HZ; cpu tick counters are reported in this unit.
const clockTicksPerSec = 100

// Report is the frozen accounting record of one supervised process,
// produced exactly once when the watch stops.
type Report struct {
	PeakRssKb int64

	CpuTimeMs       int64
	CtxSwVoluntary  int64
	CtxSwForced     int64
	MajorPageFaults int64
	MinorPageFaults int64

	MemoryExceeded     bool
	ResourceViolations []string

	StartedAt time.Time
	EndedAt   time.Time
}

// Monitor supervises live processes: it polls resource usage on a fixed
// interval, tracks peaks, and kills the process when a limit is breached.
type Monitor struct {
	sampler  ResourceSampler
	interval time.Duration
	logger   *slog.Logger
}

func New(sampler ResourceSampler, logger *slog.Logger) *Monitor {
	return &Monitor{sampler: sampler, interval: DefaultInterval, logger: logger}
}

// NewWithInterval is used by tests to tighten the sampling period.
func NewWithInterval(sampler ResourceSampler, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{sampler: sampler, interval: interval, logger: logger}
}

// Watch is one in-flight supervision, tied 1:1 to the process it observes.
type Watch struct {
	mu     sync.Mutex
	report Report
	done   chan struct{}
	stop   chan struct{}
	once   sync.Once
}

// Watch starts supervising the given pid. When sampled peak memory
// exceeds memoryLimitKb, kill is invoked once and the breach is recorded.
// The sampling loop exits when Stop is called; polling failures are
// tolerated until then, since the process often exits mid-interval.
func (m *Monitor) Watch(pid int, memoryLimitKb int64, kill func()) *Watch {
	w := &Watch{
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	w.report.StartedAt = time.Now()

	go m.loop(w, pid, memoryLimitKb, kill)
	return w
}

func (m *Monitor) loop(w *Watch, pid int, memoryLimitKb int64, kill func()) {
	defer close(w.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	killed := false
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		sample, err := m.sampler.Sample(pid)
		if err != nil {
			// The process is usually already gone; keep the last
			// observation and wait for Stop.
			continue
		}

		w.mu.Lock()
		mergeSample(&w.report, sample)
		breach := memoryLimitKb > 0 && w.report.PeakRssKb > memoryLimitKb
		if breach && !w.report.MemoryExceeded {
			w.report.MemoryExceeded = true
			w.report.ResourceViolations = append(w.report.ResourceViolations,
				fmt.Sprintf("peak memory %d KiB exceeded limit %d KiB",
					w.report.PeakRssKb, memoryLimitKb))
		}
		w.mu.Unlock()

		if breach && !killed {
			killed = true
			if m.logger != nil {
				m.logger.Warn("memory limit breached, killing process",
					"pid", pid, "limit_kb", memoryLimitKb)
			}
			kill()
		}
	}
}

func mergeSample(r *Report, s *Sample) {
	if s.PeakRssKb > r.PeakRssKb {
		r.PeakRssKb = s.PeakRssKb
	}
	// Cumulative counters only ever grow; keep the latest observation.
	if s.CpuTicks > 0 {
		r.CpuTimeMs = s.CpuTicks * 1000 / clockTicksPerSec
	}
	if s.CtxSwVoluntary > 0 {
		r.CtxSwVoluntary = s.CtxSwVoluntary
	}
	if s.CtxSwForced > 0 {
		r.CtxSwForced = s.CtxSwForced
	}
	if s.MajorFaults > 0 {
		r.MajorPageFaults = s.MajorFaults
	}
	if s.MinorFaults > 0 {
		r.MinorPageFaults = s.MinorFaults
	}
}

// Stop ends the sampling loop and freezes the report. Safe to call more
// than once; later calls return the same frozen report.
func (w *Watch) Stop() Report {
	w.once.Do(func() {
		close(w.stop)
	})
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.report.EndedAt.IsZero() {
		w.report.EndedAt = time.Now()
	}
	return w.report
}

// MemoryExceeded reports whether the watch has recorded a breach so far.
func (w *Watch) MemoryExceeded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.report.MemoryExceeded
}
