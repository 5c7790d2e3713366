package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeScheduler implements request.Scheduler without real sleeping.
//
// Sleep returns immediately, records the requested delay, and advances the
// fake clock by it. This lets retry/backoff tests run instantly while still
// asserting on the exact delays the executor asked for.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type FakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFakeScheduler creates a fake scheduler starting at a fixed epoch.
//
// The epoch is arbitrary but constant so tests comparing timestamps are
// reproducible.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{
		now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Sleep records d, advances the fake clock, and returns immediately.
// Honors context cancellation the way the real scheduler does.
func (s *FakeScheduler) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	s.now = s.now.Add(d)
	return nil
}

// Now returns the current fake time.
func (s *FakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the fake clock forward without recording a sleep.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

// Sleeps returns a copy of every delay Sleep has recorded, in order.
func (s *FakeScheduler) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.sleeps))
	copy(out, s.sleeps)
	return out
}
