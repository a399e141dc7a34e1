package middleware

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"crypto_tracker/utils"
)

// BreakerSettings mirrors the configurable subset of gobreaker.Settings.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	TripRatio   float64
	MinRequests uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests: 1,
		Interval:    30 * time.Minute,
		Timeout:     10 * time.Minute,
		TripRatio:   0.6,
		MinRequests: 3,
	}
}

// Breaker guards calls to one downstream dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewBreaker(name string, s BreakerSettings) *Breaker {
	if s.MinRequests == 0 {
		s.MinRequests = 3
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.TripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			utils.Logger.Infow("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})}
}

// Execute runs fn through the breaker. When the breaker is open fn is not
// called and an error matching IsOpen is returned. A nil Breaker just runs fn.
func (b *Breaker) Execute(fn func() error) error {
	if b == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (b *Breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

// IsOpen reports whether err was produced by an open or saturated breaker.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
