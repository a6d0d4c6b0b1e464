package backoff

import (
	"testing"
	"time"
)

func TestConstant(t *testing.T) {
	t.Parallel()
	c := Constant{Interval: 5 * time.Second}
	for _, failures := range []int{1, 2, 10} {
		if got := c.Delay(failures); got != 5*time.Second {
			t.Fatalf("Delay(%d) = %v, want 5s", failures, got)
		}
	}
}

func TestNone(t *testing.T) {
	t.Parallel()
	if got := (None{}).Delay(3); got != 0 {
		t.Fatalf("Delay(3) = %v, want 0", got)
	}
}

func TestExponential(t *testing.T) {
	t.Parallel()
	e := Exponential{Initial: time.Second, Max: 10 * time.Second}

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{10, 10 * time.Second},
		{0, 1 * time.Second}, // clamped to first failure
	}

	for _, tt := range tests {
		if got := e.Delay(tt.failures); got != tt.want {
			t.Fatalf("Delay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	t.Parallel()
	e := Exponential{Initial: time.Second, Max: 10 * time.Second, Jitter: true}

	for range 100 {
		d := e.Delay(3)
		if d < 0 || d > 4*time.Second {
			t.Fatalf("jittered delay %v outside [0, 4s]", d)
		}
	}
}
