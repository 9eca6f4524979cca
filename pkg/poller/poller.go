// Package poller provides a bounded-retry polling primitive for awaiting
// asynchronous side effects the caller does not control.
package poller

import (
	"context"
	"fmt"
	"time"
)

// CheckFunc reports whether the awaited resource is ready. A non-nil error
// stops polling immediately.
type CheckFunc func(ctx context.Context) (bool, error)

// TimeoutError identifies which awaited resource stalled.
type TimeoutError struct {
	Resource string
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s after %s", e.Resource, e.Elapsed)
}

// Wait invokes check at the given interval until it reports ready, the
// timeout elapses, or the context is cancelled. The check runs once
// immediately so an already-ready resource never sleeps.
func Wait(ctx context.Context, resource string, check CheckFunc, interval, timeout time.Duration) error {
	start := time.Now()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ready, err := check(ctx)
		if err != nil {
			return fmt.Errorf("readiness check for %s: %w", resource, err)
		}

		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &TimeoutError{Resource: resource, Elapsed: time.Since(start)}
		case <-ticker.C:
		}
	}
}
