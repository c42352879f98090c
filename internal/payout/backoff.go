package payout

import (
	"math"
	"time"
)

// Backoff computes the delay before retry attempt n (1-indexed). Attempt 1 is
// the first retry after the initial failure.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay geometrically:
// Delay = Base * Multiplier^(attempt-1), capped at Max when Max > 0.
type ExponentialBackoff struct {
	Base       time.Duration
	Multiplier int
	Max        time.Duration
}

// Delay returns the wait before the given retry attempt.
func (e ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := e.Multiplier
	if multiplier < 1 {
		multiplier = DefaultBackoffMultiplier
	}
	d := time.Duration(float64(e.Base) * math.Pow(float64(multiplier), float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}
