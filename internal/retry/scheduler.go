// Package retry computes the wait between failed connection attempts.
//
// The Scheduler escalates through a fixed table of delays while attempts keep
// failing and rewinds to the first entry once a connection succeeds. It
// satisfies backoff.BackOff from github.com/cenkalti/backoff/v4.
package retry

import (
	"sync"
	"time"
)

// MinDelay is the smallest delay the scheduler will ever return.
const MinDelay = 5 * time.Second

// steps is the escalation table used when no fixed interval is configured.
var steps = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	20 * time.Minute,
	30 * time.Minute,
	time.Hour,
}

// Steps returns a copy of the escalation table.
func Steps() []time.Duration {
	out := make([]time.Duration, len(steps))
	copy(out, steps)
	return out
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	mu       sync.Mutex
	interval time.Duration
	current  int
}

// NewScheduler creates a scheduler. A zero interval selects the escalation table.
func NewScheduler(interval time.Duration) *Scheduler {
	return &Scheduler{interval: interval}
}

// SetInterval switches to a fixed interval, or back to the table when d is zero.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// NextDelay returns the wait before the next attempt and advances the step.
func (s *Scheduler) NextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var d time.Duration
	if s.interval != 0 {
		d = s.interval
	} else {
		d = steps[s.current]
		if s.current < len(steps)-1 {
			s.current++
		}
	}

	if d < MinDelay {
		d = MinDelay
	}
	return d
}

// Reset rewinds the escalation to the first step.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.current = 0
	s.mu.Unlock()
}

// Step reports the current index into the escalation table.
func (s *Scheduler) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// NextBackOff implements backoff.BackOff.
func (s *Scheduler) NextBackOff() time.Duration {
	return s.NextDelay()
}
