package utils

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewConstantBackoff waits the same interval after every failure.
func NewConstantBackoff(interval time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(interval)
}

// NewExponentialBackoff starts at initial, doubles up to max and never gives up;
// the caller owns the retry budget.
func NewExponentialBackoff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.1
	b.Reset()
	return b
}
