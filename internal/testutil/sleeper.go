// Package testutil holds test doubles shared by the repository's tests.
package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeSleeper records think-time pauses instead of sleeping.
//
// Many VUs call Sleep at once, so all methods are safe for concurrent use.
// Sleep still honors cancellation: once ctx is done it returns without
// recording.
type FakeSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

// NewFakeSleeper creates a sleeper with no recorded pauses.
func NewFakeSleeper() *FakeSleeper {
	return &FakeSleeper{}
}

// Sleep records d and returns immediately.
func (s *FakeSleeper) Sleep(ctx context.Context, d time.Duration) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
}

// Count returns the number of recorded pauses.
func (s *FakeSleeper) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sleeps)
}

// Total returns the sum of recorded pauses.
func (s *FakeSleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.sleeps {
		total += d
	}
	return total
}

// Reset forgets every recorded pause.
func (s *FakeSleeper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = nil
}
