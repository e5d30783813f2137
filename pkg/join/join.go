// Package join implements the delta join of two keyed relations on top of the dataflow substrate.
//
// A join of A and B is incrementalized as the union of two half-joins, one per input: the changes
// of A are broadcast to every worker and joined against the arrangement of B, and the changes of
// B are joined against the arrangement of A. To count a pair of simultaneous changes exactly once
// the two half-joins look at the other relation through complementary comparisons: A's changes
// see B's entries at strictly earlier times, B's changes see A's entries at earlier or equal
// times.
//
// Example usage:
//
//	joined, err := join.CrossJoin(left, right, join.WithName("orders-customers"))
//	if err != nil {
//		return err
//	}
//	probe := joined.Inspect(func(u zset.Update[join.Result[string, Order, Customer], timestamp.Time]) {
//		fmt.Println(u)
//	}).Probe()
package join

import (
	"fmt"

	"github.com/l7mp/deltajoin/pkg/dataflow"
	"github.com/l7mp/deltajoin/pkg/exchange"
	"github.com/l7mp/deltajoin/pkg/timestamp"
	"github.com/l7mp/deltajoin/pkg/zset"
)

// Result is a row of a join: a key with a left and a right value.
type Result[K, A, B comparable] struct {
	Key   K
	Left  A
	Right B
}

func (r Result[K, A, B]) String() string {
	return fmt.Sprintf("(%v, %v, %v)", r.Key, r.Left, r.Right)
}

// DeltaJoin joins two keyed streams on their keys. Both inputs are arranged by key across the
// workers and broadcast with their times stashed as payload; each half-join reads the
// arrangement of the other input, and the two outputs are concatenated. The output is, as of
// every time, the join of the two inputs as of that time.
func DeltaJoin[K, A, B comparable, R any, T timestamp.Timestamp[T]](
	a *dataflow.Stream[zset.KV[K, A], T],
	b *dataflow.Stream[zset.KV[K, B], T],
	combine func(K, A, B) R,
	opts ...Option,
) (*dataflow.Stream[R, T], error) {
	o := newOptions("delta-join", opts)
	if a.Scope() != b.Scope() {
		return nil, fmt.Errorf("join %s: inputs belong to different dataflows", o.name)
	}

	hash, err := hasherOf[K](o)
	if err != nil {
		return nil, err
	}
	cloneA, err := clonerOf[A](o, o.cloneLeft, "left")
	if err != nil {
		return nil, err
	}
	cloneB, err := clonerOf[B](o, o.cloneRight, "right")
	if err != nil {
		return nil, err
	}
	cmpA, err := ComparisonFor[T](0, 1)
	if err != nil {
		return nil, err
	}
	cmpB, err := ComparisonFor[T](1, 0)
	if err != nil {
		return nil, err
	}

	arrangedA := dataflow.Arrange(a, o.name+"/arrange-a", hash)
	arrangedB := dataflow.Arrange(b, o.name+"/arrange-b", hash)

	changesA := dataflow.Broadcast(dataflow.Map(a, o.name+"/stash-a", exchange.Stash[K, A, T]), o.name+"/broadcast-a")
	changesB := dataflow.Broadcast(dataflow.Map(b, o.name+"/stash-b", exchange.Stash[K, B, T]), o.name+"/broadcast-b")

	fromA := halfJoin(o.name+"/half-join-a", changesA, arrangedB, cmpA, combine, cloneA, cloneB, o.stats)
	fromB := halfJoin(o.name+"/half-join-b", changesB, arrangedA, cmpB,
		func(k K, vb B, va A) R { return combine(k, va, vb) }, cloneB, cloneA, o.stats)

	a.Scope().Logger().V(2).Info("delta join built", "name", o.name)
	return dataflow.Concat(o.name, fromA, fromB), nil
}

// CrossJoin joins two keyed streams into a stream of (key, left, right) rows.
func CrossJoin[K, A, B comparable, T timestamp.Timestamp[T]](
	a *dataflow.Stream[zset.KV[K, A], T],
	b *dataflow.Stream[zset.KV[K, B], T],
	opts ...Option,
) (*dataflow.Stream[Result[K, A, B], T], error) {
	return DeltaJoin(a, b, func(k K, va A, vb B) Result[K, A, B] {
		return Result[K, A, B]{Key: k, Left: va, Right: vb}
	}, opts...)
}
