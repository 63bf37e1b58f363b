// Package clock supplies the time source used to stamp layers and mounts.
package clock

import "time"

// Clock provides an abstraction for time operations to enable deterministic testing.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system time, truncated to seconds
// so persisted timestamps stay stable across JSON round trips.
type RealClock struct{}

// Now returns the current system time in UTC.
func (c *RealClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// StepClock returns a fixed start time on the first call and advances by
// a fixed step on every call after that. Tests use it to get distinct,
// ordered creation times without sleeping.
type StepClock struct {
	next time.Time
	step time.Duration
}

// NewStepClock creates a StepClock starting at start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{next: start, step: step}
}

// Now returns the current step and advances the clock.
func (c *StepClock) Now() time.Time {
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}
