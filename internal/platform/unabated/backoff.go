package unabated

import (
	"math"
	"time"
)

// Backoff computes exponential retry delays for transient poll failures.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
}

// Next returns the delay before retry attempt (zero-based): Min scaled by
// Factor^attempt, capped at Max.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Min) * math.Pow(b.Factor, float64(attempt))
	if d > float64(b.Max) || math.IsInf(d, 1) {
		return b.Max
	}
	return time.Duration(d)
}
