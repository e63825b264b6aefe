//go:build !linux

package monitor

// NewPlatformSampler returns the no-op sampler on platforms without a
// /proc-style process accounting interface.
func NewPlatformSampler() ResourceSampler { return NoopSampler{} }
