package rangesensor

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when no echo completes within the timeout.
// It is an expected result, not a fault.
var ErrOutOfRange = errors.New("rangesensor: out of range")

// FaultError reports an I/O failure on the trigger or echo pin.
type FaultError struct {
	Op  string
	Err error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("rangesensor: %s: %v", e.Op, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

func fault(op string, err error) error {
	return &FaultError{Op: op, Err: err}
}
