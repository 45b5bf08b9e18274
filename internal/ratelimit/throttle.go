// Package ratelimit paces tool execution within a run.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum delay between consecutive executions.
// All tool calls in a run share one throttle, so the delay applies
// across tools, not per tool. A zero delay disables pacing.
type Throttle struct {
	mu       sync.Mutex
	minDelay time.Duration
	lastAt   time.Time
}

// NewThrottle creates a throttle with the given minimum delay.
func NewThrottle(minDelay time.Duration) *Throttle {
	return &Throttle{minDelay: minDelay}
}

// SetMinDelay updates the minimum delay for subsequent waits.
func (t *Throttle) SetMinDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minDelay = d
}

// Wait blocks until the minimum delay since the previous execution has
// elapsed, then records the new execution time. Returns early with the
// context error when cancelled; the timestamp is not advanced in that
// case.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	delay := t.minDelay
	var remaining time.Duration
	if delay > 0 && !t.lastAt.IsZero() {
		remaining = delay - time.Since(t.lastAt)
	}
	if remaining <= 0 {
		t.lastAt = time.Now()
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	t.lastAt = time.Now()
	t.mu.Unlock()
	return nil
}

// Reset clears the last execution timestamp, so the next Wait returns
// immediately.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastAt = time.Time{}
}
