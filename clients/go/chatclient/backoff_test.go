package chatclient

import (
	"testing"
	"time"
)

func TestDelayDoublesPerAttempt(t *testing.T) {
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
	}
	for attempt, d := range want {
		if got := Delay(attempt); got != d {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, d)
		}
	}
}

func TestDelayCapped(t *testing.T) {
	for attempt := 4; attempt < 100; attempt += 13 {
		if got := Delay(attempt); got != backoffMax {
			t.Errorf("Delay(%d) = %v, want cap %v", attempt, got, backoffMax)
		}
	}
}

func TestDelayNonDecreasing(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v, less than Delay(%d) = %v", attempt, d, attempt-1, prev)
		}
		prev = d
	}
}

func TestDelayNegativeAttempt(t *testing.T) {
	if got := Delay(-3); got != backoffBase {
		t.Errorf("Delay(-3) = %v, want %v", got, backoffBase)
	}
}
