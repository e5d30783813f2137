package exchange

import (
	"fmt"
	"slices"

	"github.com/l7mp/deltajoin/pkg/zset"
)

// Record is the broadcast form of a keyed update: the update's own time travels with it as
// payload so the receiving half-join can decide which snapshot of the other relation to query.
type Record[K, V, T any] struct {
	Key    K
	Value  V
	Origin T
}

func (r Record[K, V, T]) String() string {
	return fmt.Sprintf("(%v, %v, @%v)", r.Key, r.Value, r.Origin)
}

// Stash pairs a keyed record with the time it changes at.
func Stash[K, V, T any](kv zset.KV[K, V], t T) Record[K, V, T] {
	return Record[K, V, T]{Key: kv.Key, Value: kv.Value, Origin: t}
}

// Replicate returns an identical copy of a batch for each of the workers. The copies share the
// records but not the slice, and keep the order of the batch.
func Replicate[D, T any](peers int, updates []zset.Update[D, T]) [][]zset.Update[D, T] {
	copies := make([][]zset.Update[D, T], peers)
	for i := range copies {
		copies[i] = slices.Clone(updates)
	}
	return copies
}
