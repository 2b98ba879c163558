package model

import (
	"testing"
	"time"
)

func TestRemainingSeconds(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		duration  int
		timeTaken int
		now       time.Time
		want      int
	}{
		{name: "fresh attempt", duration: 60, timeTaken: 0, now: start, want: 3600},
		{name: "halfway by wallclock", duration: 60, timeTaken: 0, now: start.Add(30 * time.Minute), want: 1800},
		{name: "time taken stacks on wallclock", duration: 60, timeTaken: 600, now: start.Add(30 * time.Minute), want: 1200},
		{name: "exactly expired", duration: 60, timeTaken: 0, now: start.Add(time.Hour), want: 0},
		{name: "past deadline clamps to zero", duration: 60, timeTaken: 0, now: start.Add(2 * time.Hour), want: 0},
		{name: "time taken alone expires", duration: 10, timeTaken: 700, now: start, want: 0},
		{name: "clock skew before start", duration: 10, timeTaken: 0, now: start.Add(-time.Minute), want: 600},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RemainingSeconds(tc.duration, start, tc.timeTaken, tc.now)
			if got != tc.want {
				t.Errorf("RemainingSeconds = %d, want %d", got, tc.want)
			}
		})
	}
}

// Remaining time must never grow as the clock or the accumulated active
// time advances.
func TestRemainingSeconds_Monotonic(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	prev := RemainingSeconds(30, start, 0, start)
	for tick := 1; tick <= 240; tick++ {
		now := start.Add(time.Duration(tick) * 15 * time.Second)
		timeTaken := tick // grows with every save
		got := RemainingSeconds(30, start, timeTaken, now)
		if got > prev {
			t.Fatalf("tick %d: remaining grew from %d to %d", tick, prev, got)
		}
		prev = got
	}
}
