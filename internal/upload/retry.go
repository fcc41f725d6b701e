package upload

import (
	"context"
	"time"
)

// DefaultRetryDelays is the wait before each retry of a failed request; with
// the original attempt that makes six attempts in total.
var DefaultRetryDelays = []time.Duration{
	0,
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
}

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy is a fixed backoff schedule.
type RetryPolicy struct {
	Delays  []time.Duration
	Sleeper Sleeper
}

// DefaultRetryPolicy returns the standard schedule with a real clock.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delays: append([]time.Duration(nil), DefaultRetryDelays...)}
}

// MaxAttempts returns the total attempts per request including the original.
func (p RetryPolicy) MaxAttempts() int {
	return len(p.Delays) + 1
}

// Next returns the delay before retrying after the given number of
// consecutive failures, and false once the schedule is exhausted.
func (p RetryPolicy) Next(failures int) (time.Duration, bool) {
	if failures < 1 || failures > len(p.Delays) {
		return 0, false
	}
	return p.Delays[failures-1], true
}

// Wait sleeps for d using the policy's sleeper.
func (p RetryPolicy) Wait(ctx context.Context, d time.Duration) error {
	if p.Sleeper != nil {
		return p.Sleeper.Sleep(ctx, d)
	}
	return SleepWithContext(ctx, d)
}
