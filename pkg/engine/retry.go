package engine

import (
	"math/rand"
	"time"
)

// RetryPolicy governs automated-action retries: exponential backoff with
// jitter so many requests failing together do not retry in lockstep.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	JitterPct    float64
}

// DefaultRetryPolicy matches the documented defaults: 3 attempts, 30s initial
// delay, doubling, +/-20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 30 * time.Second,
		Multiplier:   2,
		JitterPct:    0.2,
	}
}

// Backoff returns the delay before the given retry attempt (1-based: the
// delay after the first failure is Backoff(1)).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	if p.JitterPct > 0 {
		// random in [-JitterPct, +JitterPct]
		delta := (rand.Float64()*2 - 1) * p.JitterPct
		delay *= 1 + delta
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
