// Package timestamp defines the logical times that govern the consistency of incremental updates
// and the frontiers (antichains) used to reason about the progress of a computation.
//
// A logical time is partially ordered and forms a lattice: any two times have a least upper bound
// (Join) and a greatest lower bound (Meet). Totally ordered times, like Time, are the special case
// in which any two times are comparable. The zero value of every timestamp type is its minimum.
package timestamp

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrOutOfOrder is returned when an update arrives at a time that has already been declared
// complete. The engine never reorders updates, so this is a fatal precondition violation.
var ErrOutOfOrder = errors.New("out-of-order time")

type ErrTimeOrder = error

// NewOutOfOrderError reports that time t was supplied although the frontier had passed it.
func NewOutOfOrderError(where string, t, frontier fmt.Stringer) ErrTimeOrder {
	return fmt.Errorf("%w at %s: time %s is not beyond frontier %s", ErrOutOfOrder, where, t, frontier)
}

// Timestamp is the constraint satisfied by logical times.
type Timestamp[T any] interface {
	comparable
	fmt.Stringer

	// LessEqual is the partial order.
	LessEqual(other T) bool
	// Less is LessEqual without equality.
	Less(other T) bool
	// Join returns the least upper bound.
	Join(other T) T
	// Meet returns the greatest lower bound.
	Meet(other T) T
	// Compare is a total order that extends LessEqual, used only for sorting.
	Compare(other T) int
}

// isTimestamp only compiles for types that satisfy Timestamp.
func isTimestamp[T Timestamp[T]]() {}

// Time is a totally ordered logical time.
type Time uint64

var _ = isTimestamp[Time]

func (t Time) LessEqual(other Time) bool { return t <= other }
func (t Time) Less(other Time) bool      { return t < other }
func (t Time) Join(other Time) Time      { return max(t, other) }
func (t Time) Meet(other Time) Time      { return min(t, other) }
func (t Time) String() string            { return strconv.FormatUint(uint64(t), 10) }

func (t Time) Compare(other Time) int {
	switch {
	case t < other:
		return -1
	case t > other:
		return 1
	default:
		return 0
	}
}

// Product is a two-dimensional logical time ordered component-wise, e.g., an outer epoch and an
// inner iteration counter. Two products are incomparable if neither dominates the other.
type Product struct {
	Outer Time
	Inner Time
}

var _ = isTimestamp[Product]

// NewProduct returns a new product time.
func NewProduct(outer, inner uint64) Product {
	return Product{Outer: Time(outer), Inner: Time(inner)}
}

func (p Product) LessEqual(other Product) bool {
	return p.Outer <= other.Outer && p.Inner <= other.Inner
}

func (p Product) Less(other Product) bool { return p != other && p.LessEqual(other) }

// Join takes the component-wise maximum, just like merging two vector clocks.
func (p Product) Join(other Product) Product {
	return Product{Outer: p.Outer.Join(other.Outer), Inner: p.Inner.Join(other.Inner)}
}

// Meet takes the component-wise minimum.
func (p Product) Meet(other Product) Product {
	return Product{Outer: p.Outer.Meet(other.Outer), Inner: p.Inner.Meet(other.Inner)}
}

// Compare orders products lexicographically, which is a linear extension of the product order.
func (p Product) Compare(other Product) int {
	if c := p.Outer.Compare(other.Outer); c != 0 {
		return c
	}
	return p.Inner.Compare(other.Inner)
}

func (p Product) String() string { return fmt.Sprintf("(%d, %d)", p.Outer, p.Inner) }
