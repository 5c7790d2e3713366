package request

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Scheduler abstracts time for the executor so tests can drive retries
// with a fake clock instead of real sleeps.
type Scheduler interface {
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error

	// Now returns the current time.
	Now() time.Time
}

// RealScheduler returns the production scheduler backed by the wall clock.
func RealScheduler() Scheduler {
	return realScheduler{}
}

type realScheduler struct{}

func (realScheduler) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (realScheduler) Now() time.Time {
	return time.Now()
}

// backoff is the retry delay state machine: attempt counter plus next
// delay, advanced one step per retriable failure.
//
// Delay for attempt n (0-based): base * multiplier^n, scaled by a random
// factor in [0.5, 1.5) to avoid retry alignment across kiosks. Jitter
// comes from the package-level rand source, which is safe for the
// concurrent Execute calls the executor promises to support.
type backoff struct {
	base       time.Duration
	multiplier float64
	attempt    int
}

func newBackoff(base time.Duration, multiplier float64) *backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if multiplier <= 1 {
		multiplier = DefaultBackoffMultiplier
	}
	return &backoff{base: base, multiplier: multiplier}
}

// Next returns the delay before the next attempt and advances the state.
func (b *backoff) Next() time.Duration {
	d := float64(b.base) * math.Pow(b.multiplier, float64(b.attempt))
	b.attempt++

	factor := 0.5 + rand.Float64()
	return time.Duration(d * factor)
}
