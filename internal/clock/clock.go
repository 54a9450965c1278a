// Package clock abstracts the current time so services can be tested deterministically.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Step advances by a fixed increment on every call.
type Step struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func NewStep(start time.Time, step time.Duration) *Step {
	return &Step{next: start, step: step}
}

func (s *Step) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.next
	s.next = s.next.Add(s.step)
	return now
}
