package keel

import "time"

// Config holds engine-wide defaults. Per-job-type knobs (retry ceiling,
// concurrency, reachability) live on the JobType contract instead.
type Config struct {
	// ShutdownTimeout is the maximum time to wait for in-flight
	// operations during graceful shutdown. In-flight work past the
	// deadline has its context cancelled; cancellation is cooperative.
	ShutdownTimeout time.Duration

	// BackoffInitial is the first retry delay for job types that do
	// not supply their own backoff strategy.
	BackoffInitial time.Duration

	// BackoffMax caps the retry delay for the default strategy.
	BackoffMax time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout: 30 * time.Second,
		BackoffInitial:  1 * time.Second,
		BackoffMax:      1 * time.Minute,
	}
}
