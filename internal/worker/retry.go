package worker

import (
	"math"
	"time"
)

const fallbackDelay = time.Second

// RetryPolicy schedules redelivery of outbox rows with exponential backoff.
// MaxRetries counts delivery attempts, the first one included.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Exhausted reports whether a notification that just failed its attempt-th
// delivery goes to the dead letter instead of being retried.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// NextDelay is the wait after the attempt-th failure (1-based), capped at MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base, factor := r.InitialDelay, r.BackoffFactor
	if base <= 0 {
		base = fallbackDelay
	}
	if factor <= 0 {
		factor = 2
	}

	d := time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
	switch {
	case d <= 0:
		// float overflow on large attempts
		d = fallbackDelay
		if r.MaxDelay > 0 {
			d = r.MaxDelay
		}
	case r.MaxDelay > 0 && d > r.MaxDelay:
		d = r.MaxDelay
	}
	return d
}

// RetryAt is when the row becomes due again.
func (r RetryPolicy) RetryAt(now time.Time, attempt int) time.Time {
	return now.Add(r.NextDelay(attempt))
}
