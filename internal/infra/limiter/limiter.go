package limiter

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Limiter is the process-wide concurrency cap shared between the search
// pipeline and other subsystems (ingestion, backfills). The cap is a
// configuration input; the pipeline never computes it.
type Limiter struct {
	sem *semaphore.Weighted
}

// New creates a limiter admitting at most max concurrent holders.
func New(max int64) *Limiter {
	if max <= 0 {
		max = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(max)}
}

// Acquire blocks until a slot is free or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire concurrency slot: %w", err)
	}
	return nil
}

// Release frees a slot acquired with Acquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
