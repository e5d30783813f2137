package zset

import (
	"fmt"
	"math"

	"github.com/l7mp/deltajoin/pkg/util"
)

// ZSet is a multiset with signed integer multiplicities. Records are kept in first-insertion
// order so that listing a Z-set is deterministic. Records that cancel out stay in the index with
// a zero count until the next Copy.
type ZSet[D comparable] struct {
	counts map[D]int64
	order  []D
	live   int
}

// New creates an empty ZSet.
func New[D comparable]() *ZSet[D] {
	return &ZSet[D]{counts: make(map[D]int64)}
}

// FromUpdates sums a slice of updates into a Z-set, ignoring their times.
func FromUpdates[D comparable, T any](updates []Update[D, T]) (*ZSet[D], error) {
	result := New[D]()
	for _, u := range updates {
		if err := result.AddMutate(u.Data, u.Diff); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// AddMutate adds a record with the given multiplicity in place.
func (z *ZSet[D]) AddMutate(d D, count int64) error {
	if count == 0 {
		return nil
	}

	current, exists := z.counts[d]
	sum, err := AddDiff(current, count)
	if err != nil {
		return newZSetError(fmt.Sprintf("failed to add %v", d), err)
	}

	if !exists {
		z.order = append(z.order, d)
	}
	switch {
	case current == 0 && sum != 0:
		z.live++
	case current != 0 && sum == 0:
		z.live--
	}
	z.counts[d] = sum

	return nil
}

// Add performs Z-set addition and returns the result as a new Z-set.
func (z *ZSet[D]) Add(other *ZSet[D]) (*ZSet[D], error) {
	result := z.Copy()
	if other == nil {
		return result, nil
	}

	for _, e := range other.List() {
		if err := result.AddMutate(e.Data, e.Multiplicity); err != nil {
			return nil, newZSetError("failed to add record during Z-set addition", err)
		}
	}

	return result, nil
}

// Subtract performs Z-set subtraction.
func (z *ZSet[D]) Subtract(other *ZSet[D]) (*ZSet[D], error) {
	result := z.Copy()
	if other == nil {
		return result, nil
	}

	for _, e := range other.List() {
		if e.Multiplicity == math.MinInt64 {
			return nil, newZSetError("failed to negate record during Z-set subtraction",
				NewOverflowError(fmt.Sprintf("-(%d)", e.Multiplicity)))
		}
		if err := result.AddMutate(e.Data, -e.Multiplicity); err != nil {
			return nil, newZSetError("failed to subtract record during Z-set subtraction", err)
		}
	}

	return result, nil
}

// Copy returns a copy of the Z-set. Records themselves are not deep copied.
func (z *ZSet[D]) Copy() *ZSet[D] {
	result := &ZSet[D]{
		counts: make(map[D]int64, z.live),
		order:  make([]D, 0, z.live),
		live:   z.live,
	}
	for _, d := range z.order {
		if c := z.counts[d]; c != 0 {
			result.counts[d] = c
			result.order = append(result.order, d)
		}
	}
	return result
}

// Entry is a record with its multiplicity.
type Entry[D comparable] struct {
	Data         D
	Multiplicity int64
}

// List returns all records with non-zero multiplicity (including negative ones).
func (z *ZSet[D]) List() []Entry[D] {
	result := make([]Entry[D], 0, z.live)
	for _, d := range z.order {
		if c := z.counts[d]; c != 0 {
			result = append(result, Entry[D]{Data: d, Multiplicity: c})
		}
	}
	return result
}

// Multiplicity returns the multiplicity of a record.
func (z *ZSet[D]) Multiplicity(d D) int64 { return z.counts[d] }

// Contains checks if a record exists with positive multiplicity.
func (z *ZSet[D]) Contains(d D) bool { return z.counts[d] > 0 }

// IsZero checks if the Z-set is empty.
func (z *ZSet[D]) IsZero() bool { return z.live == 0 }

// Size returns the number of records counting only positive multiplicities.
func (z *ZSet[D]) Size() int64 {
	var total int64
	for _, c := range z.counts {
		if c > 0 {
			total += c
		}
	}
	return total
}

// UniqueCount returns number of distinct records with non-zero multiplicity.
func (z *ZSet[D]) UniqueCount() int { return z.live }

// Equal reports whether two Z-sets hold the same records with the same multiplicities.
func (z *ZSet[D]) Equal(other *ZSet[D]) bool {
	if z.live != other.live {
		return false
	}
	for d, c := range z.counts {
		if c != 0 && other.counts[d] != c {
			return false
		}
	}
	return true
}

// String returns a string representation of the Z-set for debugging.
func (z *ZSet[D]) String() string {
	if z.IsZero() {
		return "∅"
	}

	entries := util.Map(func(e Entry[D]) string { return fmt.Sprintf("%v×%d", e.Data, e.Multiplicity) }, z.List())
	return "{" + util.Join(entries, ", ") + "}"
}
