package dataflow

import (
	"errors"
	"fmt"
)

var (
	// ErrDataflowMismatch is returned when workers build different dataflows at the same index.
	ErrDataflowMismatch = errors.New("workers built mismatching dataflows")
	// ErrInputClosed is returned when a closed input handle is used.
	ErrInputClosed = errors.New("input handle is closed")
)

type ErrWorker = error

// NewWorkerError wraps an error that terminated a worker.
func NewWorkerError(index int, err error) ErrWorker {
	return fmt.Errorf("worker %d: %w", index, err)
}

type ErrBuild = error

// NewBuildError wraps an error raised while building a dataflow.
func NewBuildError(name string, err error) ErrBuild {
	return fmt.Errorf("failed to build dataflow %q: %w", name, err)
}

type ErrOperator = error

// NewOperatorError wraps an error raised by an operator.
func NewOperatorError(operator string, err error) ErrOperator {
	return fmt.Errorf("operator %s failed: %w", operator, err)
}
