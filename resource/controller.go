// Package resource provides pacing and concurrency control for the sieve.
//
// The controller owns the two knobs the engine deliberately keeps out of its
// own control flow: the optional inter-window delay (a rate limiter, for
// human-observable progress) and the cap on parallel Phase 1 markers.
// Neither may alter sieve results; a nil *Controller disables both.
package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// WindowsPerSecond throttles how fast windows are processed.
	// If 0, windows run unpaced.
	WindowsPerSecond float64

	// MaxMarkWorkers is the maximum number of concurrent Phase 1 markers.
	// If 0, defaults to 1 (sequential marking).
	MaxMarkWorkers int64
}

// Controller manages pacing and marking concurrency.
type Controller struct {
	cfg Config

	pacer   *rate.Limiter       // nil if unpaced
	markSem *semaphore.Weighted // caps concurrent markers
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxMarkWorkers <= 0 {
		cfg.MaxMarkWorkers = 1
	}

	c := &Controller{
		cfg:     cfg,
		markSem: semaphore.NewWeighted(cfg.MaxMarkWorkers),
	}

	if cfg.WindowsPerSecond > 0 {
		c.pacer = rate.NewLimiter(rate.Limit(cfg.WindowsPerSecond), 1)
	}

	return c
}

// WaitWindow blocks until the next window may start, or ctx is canceled.
// Unpaced controllers (and nil controllers) return immediately.
func (c *Controller) WaitWindow(ctx context.Context) error {
	if c == nil || c.pacer == nil {
		return nil
	}
	return c.pacer.Wait(ctx)
}

// AcquireMarkWorker reserves one marking slot, blocking until a slot is
// available or ctx is canceled.
func (c *Controller) AcquireMarkWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.markSem.Acquire(ctx, 1)
}

// ReleaseMarkWorker returns a marking slot.
func (c *Controller) ReleaseMarkWorker() {
	if c == nil {
		return
	}
	c.markSem.Release(1)
}

// MaxMarkWorkers returns the configured marker cap.
func (c *Controller) MaxMarkWorkers() int64 {
	if c == nil {
		return 1
	}
	return c.cfg.MaxMarkWorkers
}
