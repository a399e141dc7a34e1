// Package sink defines the consumers of a completed refresh cycle and the
// error taxonomy they report.
package sink

import (
	"context"
	"errors"
	"fmt"

	"crypto_tracker/models"
)

// Publisher forwards a cycle to live subscribers. It never fails the cycle
// and must return within bounded time regardless of subscriber health.
type Publisher interface {
	Publish(ctx context.Context, result models.RefreshCycleResult)
}

// Persister mirrors a cycle into a store. Failures are reported, never retried here.
type Persister interface {
	Name() string
	Persist(ctx context.Context, result models.RefreshCycleResult) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(context.Context, models.RefreshCycleResult)

func (f PublisherFunc) Publish(ctx context.Context, r models.RefreshCycleResult) { f(ctx, r) }

type ErrorKind string

const (
	AuthError          ErrorKind = "auth"
	RangeOverflowError ErrorKind = "range_overflow"
	TransportError     ErrorKind = "transport"
)

// PersistError is the only error type a Persister returns.
type PersistError struct {
	Sink string
	Kind ErrorKind
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist to %s (%s): %v", e.Sink, e.Kind, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Is matches another *PersistError of the same Kind, so callers can test
// errors.Is(err, &sink.PersistError{Kind: sink.AuthError}).
func (e *PersistError) Is(target error) bool {
	t, ok := target.(*PersistError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Sink == "" || t.Sink == e.Sink)
}

// NewPersistError wraps err unless it is already a PersistError.
func NewPersistError(sink string, kind ErrorKind, err error) error {
	var pe *PersistError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistError{Sink: sink, Kind: kind, Err: err}
}

// KindOf reports the PersistError kind of err, defaulting to TransportError.
func KindOf(err error) ErrorKind {
	var pe *PersistError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return TransportError
}
