package ports

import "time"

// RetryPolicy bounds per-sink write attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}
