package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
)

// Handle is one in-flight execution as seen by the registry. The Kill
// callback must be safe to invoke at any point after registration and
// must be idempotent.
type Handle struct {
	ID        string
	Language  string
	StartedAt time.Time
	Kill      func()
}

// Registry is the single source of truth for what is currently running.
// It is safe for concurrent use and bounds the number of in-flight
// executions.
type Registry struct {
	entries *xsync.MapOf[string, *Handle]
	slots   *semaphore.Weighted
	max     int64
}

func New(maxConcurrent int64) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Registry{
		entries: xsync.NewMapOf[string, *Handle](),
		slots:   semaphore.NewWeighted(maxConcurrent),
		max:     maxConcurrent,
	}
}

// Register blocks until a concurrency slot is free (or ctx is cancelled)
// and then records the handle. Every successful Register must be paired
// with exactly one Remove.
func (r *Registry) Register(ctx context.Context, h *Handle) error {
	if h == nil || h.ID == "" {
		return fmt.Errorf("handle must have an id")
	}
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire execution slot: %w", err)
	}
	if _, loaded := r.entries.LoadOrStore(h.ID, h); loaded {
		r.slots.Release(1)
		return fmt.Errorf("execution %s is already registered", h.ID)
	}
	return nil
}

// Remove deletes the entry and frees its slot. Removing an id twice, or
// an id that was never registered, is a no-op.
func (r *Registry) Remove(id string) {
	if _, loaded := r.entries.LoadAndDelete(id); loaded {
		r.slots.Release(1)
	}
}

// Size returns the number of in-flight executions.
func (r *Registry) Size() int {
	return r.entries.Size()
}

// MaxConcurrent returns the configured ceiling.
func (r *Registry) MaxConcurrent() int64 { return r.max }

// Snapshot returns the currently registered handles.
func (r *Registry) Snapshot() []*Handle {
	handles := make([]*Handle, 0, r.entries.Size())
	r.entries.Range(func(_ string, h *Handle) bool {
		handles = append(handles, h)
		return true
	})
	return handles
}

// KillAll force-kills every registered execution without waiting for
// graceful shutdown. Entries are removed by their owners' cleanup paths;
// this only fires the kill switches.
func (r *Registry) KillAll() int {
	killed := 0
	r.entries.Range(func(_ string, h *Handle) bool {
		if h.Kill != nil {
			h.Kill()
		}
		killed++
		return true
	})
	return killed
}
