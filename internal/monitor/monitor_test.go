package monitor_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/judgecore/executor/internal/monitor"
)

// rampSampler reports memory that grows by stepKb on every sample.
type rampSampler struct {
	stepKb int64
	calls  atomic.Int64
}

func (r *rampSampler) Sample(pid int) (*monitor.Sample, error) {
	n := r.calls.Add(1)
	return &monitor.Sample{
		PeakRssKb:      n * r.stepKb,
		CpuTicks:       n * 10,
		CtxSwVoluntary: n,
	}, nil
}

func TestWatchKillsOnMemoryBreach(t *testing.T) {
	m := monitor.NewWithInterval(&rampSampler{stepKb: 10_000}, 5*time.Millisecond, nil)

	var killed atomic.Bool
	w := m.Watch(4242, 25_000, func() { killed.Store(true) })

	require.Eventually(t, killed.Load, time.Second, time.Millisecond)
	require.True(t, w.MemoryExceeded())

	report := w.Stop()
	require.True(t, report.MemoryExceeded)
	require.Greater(t, report.PeakRssKb, int64(25_000))
	require.NotEmpty(t, report.ResourceViolations)
}

func TestWatchWithinLimitNeverKills(t *testing.T) {
	m := monitor.NewWithInterval(&rampSampler{stepKb: 1}, time.Millisecond, nil)

	var killed atomic.Bool
	w := m.Watch(4242, 1<<30, func() { killed.Store(true) })

	time.Sleep(30 * time.Millisecond)
	report := w.Stop()

	require.False(t, killed.Load())
	require.False(t, report.MemoryExceeded)
	require.Greater(t, report.PeakRssKb, int64(0))
	require.Greater(t, report.CpuTimeMs, int64(0))
}

func TestStopIsIdempotentAndFreezes(t *testing.T) {
	m := monitor.NewWithInterval(&rampSampler{stepKb: 1}, time.Millisecond, nil)
	w := m.Watch(4242, 0, func() {})

	time.Sleep(10 * time.Millisecond)
	first := w.Stop()
	second := w.Stop()

	require.Equal(t, first.PeakRssKb, second.PeakRssKb)
	require.Equal(t, first.EndedAt, second.EndedAt)
}

// vanishedSampler simulates a process that is already reaped.
type vanishedSampler struct{}

func (vanishedSampler) Sample(pid int) (*monitor.Sample, error) {
	return nil, errProcessGone
}

var errProcessGone = &processGoneError{}

type processGoneError struct{}

func (*processGoneError) Error() string { return "no such process" }

func TestWatchToleratesVanishedProcess(t *testing.T) {
	m := monitor.NewWithInterval(vanishedSampler{}, time.Millisecond, nil)

	w := m.Watch(99999, 1024, func() { t.Error("kill must not fire for a vanished process") })
	time.Sleep(10 * time.Millisecond)
	report := w.Stop()

	require.False(t, report.MemoryExceeded)
	require.Zero(t, report.PeakRssKb)
}

func TestNoopSamplerDegradesToZeros(t *testing.T) {
	m := monitor.NewWithInterval(monitor.NoopSampler{}, time.Millisecond, nil)

	w := m.Watch(1, 1, func() { t.Error("noop sampler must never trigger a kill") })
	time.Sleep(10 * time.Millisecond)
	report := w.Stop()

	require.Zero(t, report.PeakRssKb)
	require.Zero(t, report.CpuTimeMs)
}
