package monitor

// Sample is one point-in-time observation of a live process taken from OS
// process accounting. Fields that the platform cannot provide stay zero.
type Sample struct {
	PeakRssKb int64

	CpuTicks       int64
	CtxSwVoluntary int64
	CtxSwForced    int64

	MajorFaults int64
	MinorFaults int64
}

// ResourceSampler reads resource usage of a live process. Implementations
// are best-effort: a vanished process is an expected, non-fatal error.
type ResourceSampler interface {
	Sample(pid int) (*Sample, error)
}

// NoopSampler is the zero-valued sampler for platforms without a process
// accounting interface. The monitor's control flow stays identical.
type NoopSampler struct{}

func (NoopSampler) Sample(pid int) (*Sample, error) {
	return &Sample{}, nil
}
