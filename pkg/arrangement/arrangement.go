// Package arrangement implements a key-partitioned, time-indexed index over the update history of
// a relation that can be queried "as of" any logical time.
//
// An Arrangement is one worker's shard: it holds the keys the worker owns according to the
// distribution scheme. It is append-only; retractions are new entries with negative multiplicity.
// A single writer (the worker that owns the shard) appends entries while any number of readers
// may look up snapshots concurrently.
package arrangement

import (
	"fmt"
	"slices"
	"sync"

	"github.com/l7mp/deltajoin/pkg/timestamp"
	"github.com/l7mp/deltajoin/pkg/zset"
)

// Entry is an element in the history of a key.
type Entry[V comparable, T timestamp.Timestamp[T]] struct {
	Value V
	Time  T
	Diff  int64
}

// Weighted is a value with its net multiplicity in a snapshot.
type Weighted[V comparable] struct {
	Value V
	Diff  int64
}

// Option configures an arrangement.
type Option[K comparable] func(*options[K])

type options[K comparable] struct {
	owns func(K) bool
}

// WithOwnership installs a predicate that tells whether a key belongs to this shard. Inserting a
// key that is not owned fails with ErrPartitionViolation.
func WithOwnership[K comparable](owns func(K) bool) Option[K] {
	return func(o *options[K]) { o.owns = owns }
}

// Arrangement is a per-worker shard of a relation indexed by key.
type Arrangement[K, V comparable, T timestamp.Timestamp[T]] struct {
	name   string
	worker int
	owns   func(K) bool

	mu       sync.RWMutex
	index    map[K][]Entry[V, T]
	keys     []K
	records  int
	frontier timestamp.Antichain[T]
}

// New creates an empty arrangement shard owned by the given worker.
func New[K, V comparable, T timestamp.Timestamp[T]](name string, worker int, opts ...Option[K]) *Arrangement[K, V, T] {
	o := options[K]{}
	for _, opt := range opts {
		opt(&o)
	}

	return &Arrangement[K, V, T]{
		name:     name,
		worker:   worker,
		owns:     o.owns,
		index:    make(map[K][]Entry[V, T]),
		frontier: timestamp.MinimumAntichain[T](),
	}
}

// Name returns the name of the arrangement.
func (a *Arrangement[K, V, T]) Name() string { return a.name }

// Worker returns the index of the worker that owns the shard.
func (a *Arrangement[K, V, T]) Worker() int { return a.worker }

// Insert appends an entry to the history of a key. Each (key, value, time) must be supplied at
// most once with its net multiplicity; entries with zero multiplicity are dropped.
func (a *Arrangement[K, V, T]) Insert(key K, value V, t T, diff int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insert(key, value, t, diff)
}

// InsertBatch appends a batch of keyed updates atomically with respect to readers.
func (a *Arrangement[K, V, T]) InsertBatch(updates []zset.Update[zset.KV[K, V], T]) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, u := range updates {
		if err := a.insert(u.Data.Key, u.Data.Value, u.Time, u.Diff); err != nil {
			return err
		}
	}
	return nil
}

func (a *Arrangement[K, V, T]) insert(key K, value V, t T, diff int64) error {
	if a.owns != nil && !a.owns(key) {
		return NewPartitionViolationError(a.name, a.worker, key)
	}
	if !a.frontier.LessEqual(t) {
		return NewArrangementError(a.name, key,
			timestamp.NewOutOfOrderError(fmt.Sprintf("worker %d", a.worker), t, a.frontier))
	}
	if diff == 0 {
		return nil
	}

	history, ok := a.index[key]
	if !ok {
		a.keys = append(a.keys, key)
	}
	a.index[key] = append(history, Entry[V, T]{Value: value, Time: t, Diff: diff})
	a.records++

	return nil
}

// Advance declares that no further entries will arrive at times not beyond frontier. A frontier
// never moves backwards: an earlier frontier is ignored.
func (a *Arrangement[K, V, T]) Advance(frontier timestamp.Antichain[T]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frontier.Precedes(frontier) {
		a.frontier = frontier
	}
}

// Frontier returns the times at or beyond which entries may still be inserted.
func (a *Arrangement[K, V, T]) Frontier() timestamp.Antichain[T] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frontier
}

// Lookup returns the as-of-t snapshot of a key: the values whose entries at times less or equal
// to t sum to a non-zero multiplicity. A missing key yields an empty snapshot.
func (a *Arrangement[K, V, T]) Lookup(key K, t T) ([]Weighted[V], error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snapshot := zset.New[V]()
	for _, e := range a.index[key] {
		if !e.Time.LessEqual(t) {
			continue
		}
		if err := snapshot.AddMutate(e.Value, e.Diff); err != nil {
			return nil, NewArrangementError(a.name, key, err)
		}
	}

	entries := snapshot.List()
	result := make([]Weighted[V], len(entries))
	for i, e := range entries {
		result[i] = Weighted[V]{Value: e.Data, Diff: e.Multiplicity}
	}
	return result, nil
}

// Select returns the history of a key restricted to the entries whose time satisfies pred,
// consolidated per (value, time). Entries that cancel out are dropped; the result is sorted by
// time.
func (a *Arrangement[K, V, T]) Select(key K, pred func(T) bool) ([]Entry[V, T], error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	history := a.index[key]
	if len(history) == 0 {
		return nil, nil
	}

	selected := make([]zset.Update[V, T], 0, len(history))
	for _, e := range history {
		if pred(e.Time) {
			selected = append(selected, zset.Update[V, T]{Data: e.Value, Time: e.Time, Diff: e.Diff})
		}
	}

	consolidated, err := zset.Consolidate(selected)
	if err != nil {
		return nil, NewArrangementError(a.name, key, err)
	}

	result := make([]Entry[V, T], len(consolidated))
	for i, u := range consolidated {
		result[i] = Entry[V, T]{Value: u.Data, Time: u.Time, Diff: u.Diff}
	}
	return result, nil
}

// History returns a copy of the raw entries of a key in insertion order.
func (a *Arrangement[K, V, T]) History(key K) []Entry[V, T] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.index[key])
}

// Keys returns the keys held by the shard in first-insertion order.
func (a *Arrangement[K, V, T]) Keys() []K {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.keys)
}

// Len returns the number of entries stored in the shard.
func (a *Arrangement[K, V, T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.records
}

func (a *Arrangement[K, V, T]) String() string {
	return fmt.Sprintf("arrangement %q (worker %d): %d keys, %d entries, frontier %s",
		a.name, a.worker, len(a.Keys()), a.Len(), a.Frontier())
}
