package join

import (
	"fmt"
	"sync/atomic"

	"github.com/l7mp/deltajoin/pkg/exchange"
)

// Stats counts the work done by a join across all workers.
type Stats struct {
	// Lookups is the number of arrangement lookups.
	Lookups atomic.Int64
	// Results is the number of rows emitted.
	Results atomic.Int64
	// Clones is the number of values copied into emitted rows.
	Clones atomic.Int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("lookups=%d results=%d clones=%d", s.Lookups.Load(), s.Results.Load(), s.Clones.Load())
}

// Option configures a join.
type Option func(*options)

type options struct {
	name       string
	hasher     any
	cloneLeft  any
	cloneRight any
	stats      *Stats
}

// WithName sets the name of the join, used as prefix of its operators and as metrics label.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithHasher sets the hash function used to distribute keys. The key type must match the key
// type of the joined relations.
func WithHasher[K any](hash exchange.Hasher[K]) Option {
	return func(o *options) { o.hasher = hash }
}

// WithLeftCloner sets the function that copies left values into emitted rows. Without a cloner
// values are shared between rows.
func WithLeftCloner[A any](clone func(A) A) Option {
	return func(o *options) { o.cloneLeft = clone }
}

// WithRightCloner sets the function that copies right values into emitted rows.
func WithRightCloner[B any](clone func(B) B) Option {
	return func(o *options) { o.cloneRight = clone }
}

// WithStats makes the join count its work into stats.
func WithStats(stats *Stats) Option {
	return func(o *options) { o.stats = stats }
}

func newOptions(name string, opts []Option) *options {
	o := &options{name: name}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func hasherOf[K any](o *options) (exchange.Hasher[K], error) {
	if o.hasher == nil {
		return nil, nil
	}
	h, ok := o.hasher.(exchange.Hasher[K])
	if !ok {
		return nil, fmt.Errorf("join %s: hasher of type %T does not match the key type", o.name, o.hasher)
	}
	return h, nil
}

func clonerOf[V any](o *options, clone any, side string) (func(V) V, error) {
	if clone == nil {
		return nil, nil
	}
	f, ok := clone.(func(V) V)
	if !ok {
		return nil, fmt.Errorf("join %s: %s cloner of type %T does not match the value type", o.name, side, clone)
	}
	return f, nil
}
