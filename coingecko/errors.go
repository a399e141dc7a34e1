package coingecko

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	NetworkError  ErrorKind = "network"
	UpstreamError ErrorKind = "upstream"
	ParseError    ErrorKind = "parse"
)

// FetchError is the only error type Fetch returns.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int // set for UpstreamError
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == UpstreamError {
		return fmt.Sprintf("fetch markets (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch markets (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches a *FetchError target by Kind.
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the fetch error kind of err, or "" if err is not a FetchError.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
