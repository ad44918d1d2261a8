// Package resource caps the engine's appetite: concurrent search workers,
// scratch memory for ephemeral bucket and permutation tables, and archive
// I/O throughput. All limits are advisory; a nil Controller enforces
// nothing.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// ScratchLimitBytes is the hard limit for scratch memory held by
	// ephemeral search tables. If 0, no hard limit is enforced (only
	// tracking).
	ScratchLimitBytes int64

	// MaxSearchWorkers is the maximum number of concurrent search runs.
	// If 0, defaults to 1.
	MaxSearchWorkers int64

	// ArchiveIOBytesPerSec is the maximum throughput for archive export,
	// publish, and fetch. If 0, unlimited.
	ArchiveIOBytesPerSec int64
}

// Controller manages shared resources for an engine.
type Controller struct {
	cfg Config

	scratchSem  *semaphore.Weighted // nil if unlimited
	scratchUsed atomic.Int64

	searchSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxSearchWorkers <= 0 {
		cfg.MaxSearchWorkers = 1
	}

	c := &Controller{
		cfg:       cfg,
		searchSem: semaphore.NewWeighted(cfg.MaxSearchWorkers),
	}

	if cfg.ScratchLimitBytes > 0 {
		c.scratchSem = semaphore.NewWeighted(cfg.ScratchLimitBytes)
	}

	if cfg.ArchiveIOBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.ArchiveIOBytesPerSec), int(cfg.ArchiveIOBytesPerSec))
	}

	return c
}

// AcquireScratch reserves scratch memory for one run's ephemeral tables.
// If a hard limit is configured and usage would exceed it, this blocks
// until memory is available or ctx is canceled.
func (c *Controller) AcquireScratch(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.scratchSem != nil {
		if err := c.scratchSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.scratchUsed.Add(bytes)
	return nil
}

// TryAcquireScratch reserves scratch memory without blocking.
// Returns true if acquired, false if the limit would be exceeded.
func (c *Controller) TryAcquireScratch(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.scratchSem != nil {
		if !c.scratchSem.TryAcquire(bytes) {
			return false
		}
	}

	c.scratchUsed.Add(bytes)
	return true
}

// ReleaseScratch releases reserved scratch memory.
func (c *Controller) ReleaseScratch(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.scratchSem != nil {
		c.scratchSem.Release(bytes)
	}
	c.scratchUsed.Add(-bytes)
}

// ScratchUsage returns the currently reserved scratch bytes.
func (c *Controller) ScratchUsage() int64 {
	if c == nil {
		return 0
	}
	return c.scratchUsed.Load()
}

// AcquireSearch reserves a search-run slot, blocking while all slots are
// busy. A nil controller admits immediately.
func (c *Controller) AcquireSearch(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.searchSem.Acquire(ctx, 1)
}

// TryAcquireSearch reserves a search-run slot without blocking.
func (c *Controller) TryAcquireSearch() bool {
	if c == nil {
		return true
	}
	return c.searchSem.TryAcquire(1)
}

// ReleaseSearch releases a search-run slot.
func (c *Controller) ReleaseSearch() {
	if c == nil {
		return
	}
	c.searchSem.Release(1)
}

// AcquireIO waits until the archive I/O limit admits bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
