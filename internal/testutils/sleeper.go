package testutils

import (
	"context"
	"sync"
	"time"
)

// RecordingSleeper replaces real backoff timers in tests.
// It returns immediately, records every requested delay and honours context cancellation.
type RecordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

// NewRecordingSleeper creates an empty RecordingSleeper
func NewRecordingSleeper() *RecordingSleeper {
	return &RecordingSleeper{}
}

// Sleep matches backoff.SleepFunc
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Delays returns a copy of all recorded delays in call order
func (s *RecordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}

// Reset forgets recorded delays
func (s *RecordingSleeper) Reset() {
	s.mu.Lock()
	s.delays = nil
	s.mu.Unlock()
}

// ExpectedDelays returns the doubling delay sequence for n retries starting at initial
func ExpectedDelays(initial time.Duration, n int) []time.Duration {
	out := make([]time.Duration, 0, n)
	d := initial
	for i := 0; i < n; i++ {
		out = append(out, d)
		d *= 2
	}
	return out
}
