// Package clock supplies the current instant to time-dependent code so it can
// be driven deterministically from tests.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in a fixed location.
type System struct {
	loc *time.Location
}

// NewSystem returns a wall clock reporting times in loc. A nil loc means time.Local.
func NewSystem(loc *time.Location) System {
	if loc == nil {
		loc = time.Local
	}
	return System{loc: loc}
}

// Now returns the wall-clock time in the configured location.
func (s System) Now() time.Time {
	if s.loc == nil {
		return time.Now()
	}
	return time.Now().In(s.loc)
}

// Manual is a clock that only moves when told to.
type Manual struct {
	mu      sync.Mutex
	current time.Time
}

// NewManual returns a manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{current: start}
}

// Now returns the instant the clock is set to.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.current = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
	return m.current
}

// Func adapts a plain function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }
