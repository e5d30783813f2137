package arrangement

import (
	"errors"
	"fmt"
)

// ErrPartitionViolation is returned when a shard receives a key owned by another worker. This
// indicates a distribution bug: continuing would produce silently wrong joins.
var ErrPartitionViolation = errors.New("partition violation")

type ErrPartition = error

// NewPartitionViolationError reports a key routed to the wrong worker.
func NewPartitionViolationError(name string, worker int, key any) ErrPartition {
	return fmt.Errorf("%w: arrangement %q on worker %d received key %v owned by another worker",
		ErrPartitionViolation, name, worker, key)
}

type ErrArrangement = error

// NewArrangementError wraps an error raised while maintaining or querying the arrangement.
func NewArrangementError(name string, key any, err error) ErrArrangement {
	return fmt.Errorf("arrangement %q, key %v: %w", name, key, err)
}
