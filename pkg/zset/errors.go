package zset

import (
	"errors"
	"fmt"
)

// ErrOverflow is returned when multiplicity arithmetic would wrap around.
var ErrOverflow = errors.New("multiplicity overflow")

// ZSetError is returned by Z-set operations.
type ZSetError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ZSetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the cause.
func (e *ZSetError) Unwrap() error { return e.Cause }

func newZSetError(message string, cause error) error {
	return &ZSetError{Message: message, Cause: cause}
}

type ErrMultiplicity = error

// NewOverflowError reports the multiplicity expression that overflowed.
func NewOverflowError(expr string) ErrMultiplicity {
	return fmt.Errorf("%w: %s", ErrOverflow, expr)
}
