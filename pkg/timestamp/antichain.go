package timestamp

import (
	"slices"

	"github.com/l7mp/deltajoin/pkg/util"
)

// Antichain is a set of mutually incomparable times. Used as a frontier it stands for all times
// that are greater or equal to at least one of its elements. The empty antichain is the frontier
// of a computation that will produce nothing more.
type Antichain[T Timestamp[T]] struct {
	elements []T
}

// NewAntichain builds an antichain from the minimal elements of times.
func NewAntichain[T Timestamp[T]](times ...T) Antichain[T] {
	a := Antichain[T]{}
	for _, t := range times {
		a.Insert(t)
	}
	return a
}

// MinimumAntichain returns the frontier containing only the minimal time.
func MinimumAntichain[T Timestamp[T]]() Antichain[T] {
	var zero T
	return NewAntichain(zero)
}

// Insert adds t unless some element is already less or equal to it, removing the elements t
// dominates. It returns whether the antichain changed.
func (a *Antichain[T]) Insert(t T) bool {
	for _, e := range a.elements {
		if e.LessEqual(t) {
			return false
		}
	}
	a.elements = slices.DeleteFunc(a.elements, func(e T) bool { return t.LessEqual(e) })
	a.elements = append(a.elements, t)
	slices.SortFunc(a.elements, func(x, y T) int { return x.Compare(y) })
	return true
}

// LessEqual reports whether some element of the antichain is less or equal to t, i.e., whether t
// may still appear at this frontier.
func (a Antichain[T]) LessEqual(t T) bool {
	for _, e := range a.elements {
		if e.LessEqual(t) {
			return true
		}
	}
	return false
}

// LessThan reports whether some element is strictly less than t.
func (a Antichain[T]) LessThan(t T) bool {
	for _, e := range a.elements {
		if e.Less(t) {
			return true
		}
	}
	return false
}

// Precedes reports whether a is at or behind other: every element of other is greater or equal
// to some element of a. A frontier that only advances satisfies old.Precedes(new).
func (a Antichain[T]) Precedes(other Antichain[T]) bool {
	for _, t := range other.elements {
		if !a.LessEqual(t) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the antichain has no elements.
func (a Antichain[T]) IsEmpty() bool { return len(a.elements) == 0 }

// Elements returns the elements in ascending Compare order.
func (a Antichain[T]) Elements() []T { return slices.Clone(a.elements) }

// Equal reports whether the two antichains hold the same elements.
func (a Antichain[T]) Equal(other Antichain[T]) bool {
	return slices.Equal(a.elements, other.elements)
}

func (a Antichain[T]) String() string {
	return "{" + util.Join(a.elements, ", ") + "}"
}
