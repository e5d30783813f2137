package join

import (
	"fmt"

	"github.com/l7mp/deltajoin/pkg/timestamp"
)

// Comparison decides whether an arrangement entry at time entry is visible to a change that
// happened at time origin.
//
// Comparisons order times by their linear extension (Compare), so that for partially ordered
// times a pair of incomparable changes is still attributed to exactly one half-join. For totally
// ordered times this is the natural order.
type Comparison[T timestamp.Timestamp[T]] func(entry, origin T) bool

// StrictlyBefore selects the entries that happened before the change.
func StrictlyBefore[T timestamp.Timestamp[T]](entry, origin T) bool { return entry.Compare(origin) < 0 }

// AtOrBefore selects the entries that happened before the change or together with it.
func AtOrBefore[T timestamp.Timestamp[T]](entry, origin T) bool { return entry.Compare(origin) <= 0 }

// settled reports whether every entry a comparison may select for origin is present: every time
// still to come is beyond origin in the linear extension.
func settled[T timestamp.Timestamp[T]](frontier timestamp.Antichain[T], origin T) bool {
	for _, f := range frontier.Elements() {
		if f.Compare(origin) <= 0 {
			return false
		}
	}
	return true
}

// ComparisonFor returns the comparison the path driven by the changes of relation driver applies
// to the arrangement of relation other, relations being numbered in a fixed order. Relations
// after the driver are restricted to strictly earlier times and relations before it to earlier or
// equal times. Any two paths thus apply complementary comparisons to each other's relation, which
// makes every simultaneous pair of changes counted by exactly one of them.
func ComparisonFor[T timestamp.Timestamp[T]](driver, other int) (Comparison[T], error) {
	switch {
	case driver < 0 || other < 0:
		return nil, fmt.Errorf("invalid relation index: driver %d, other %d", driver, other)
	case other > driver:
		return StrictlyBefore[T], nil
	case other < driver:
		return AtOrBefore[T], nil
	default:
		return nil, fmt.Errorf("relation %d cannot be joined with itself", driver)
	}
}
