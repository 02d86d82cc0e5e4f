package queue

import "time"

// Backoff returns the exponential retry delay for a failed attempt:
// base * 2^attempt, capped at max. A negative attempt returns base.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		return base
	}

	// 2^30 seconds already exceeds any sane cap; shortcut to avoid overflow
	// from the shift below.
	if attempt > 30 {
		return max
	}

	d := base * time.Duration(1<<attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}
