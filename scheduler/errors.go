package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrHalted matches the error Run returns once the failure budget is spent.
	ErrHalted = errors.New("refresh scheduler halted")

	// ErrEmptyBatch reports a fetch that succeeded but returned no records.
	ErrEmptyBatch = errors.New("no market data fetched")
)

// HaltError is the terminal condition of a Scheduler. It matches ErrHalted
// and unwraps to the failure that exhausted the budget.
type HaltError struct {
	Failures int
	LastErr  error
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("%v after %d consecutive failures: %v", ErrHalted, e.Failures, e.LastErr)
}

func (e *HaltError) Is(target error) bool { return target == ErrHalted }

func (e *HaltError) Unwrap() error { return e.LastErr }
