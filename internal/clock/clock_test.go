package clock

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := &RealClock{}

	before := time.Now().UTC().Truncate(time.Second)
	actual := clock.Now()
	after := time.Now().UTC()

	if actual.Before(before) || actual.After(after) {
		t.Errorf("RealClock.Now() = %v, expected between %v and %v", actual, before, after)
	}
	if actual.Nanosecond() != 0 {
		t.Errorf("RealClock.Now() should be truncated to seconds, got %v", actual)
	}
	if actual.Location() != time.UTC {
		t.Errorf("RealClock.Now() location = %v, want UTC", actual.Location())
	}
}

func TestStepClock_Now(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewStepClock(start, time.Minute)

	first := clock.Now()
	second := clock.Now()
	third := clock.Now()

	if !first.Equal(start) {
		t.Errorf("first Now() = %v, want %v", first, start)
	}
	if got := second.Sub(first); got != time.Minute {
		t.Errorf("step between calls = %v, want 1m", got)
	}
	if !third.After(second) {
		t.Errorf("expected increasing times: %v then %v", second, third)
	}
}
