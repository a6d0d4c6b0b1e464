// Package backoff provides retry delay strategies for durable
// operations. Strategies are stateless and safe for concurrent use;
// the delay is a function of the record's accumulated failure count, so
// a record that crashed mid-retry resumes with an honest delay rather
// than starting over at the initial interval.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before the next attempt of a record that
// has failed retryably failures times (failures >= 1).
type Strategy interface {
	Delay(failures int) time.Duration
}

// None returns zero delay for every attempt. Useful in tests and for
// job types whose work is cheap to re-attempt immediately.
type None struct{}

// Delay returns 0.
func (None) Delay(int) time.Duration { return 0 }

// Constant waits the same interval between every attempt.
type Constant struct {
	Interval time.Duration
}

// Delay returns the fixed interval.
func (c Constant) Delay(int) time.Duration { return c.Interval }

// Exponential doubles the delay with each accumulated failure, capped
// at Max, with optional full jitter. Full jitter draws uniformly from
// [0, delay], which spreads simultaneous retries (e.g. a burst of
// records all failing on the same outage) across the window.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// Delay returns min(Initial * 2^(failures-1), Max), jittered if enabled.
func (e Exponential) Delay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := float64(e.Initial) * math.Pow(2, float64(failures-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if e.Jitter {
		d = rand.Float64() * d //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	return time.Duration(d)
}

// Default returns the strategy used when a job type does not supply its
// own: exponential with full jitter, 1s initial, 1m cap.
func Default() Strategy {
	return Exponential{Initial: time.Second, Max: time.Minute, Jitter: true}
}
