package zset

import (
	"fmt"
	"math"
	"slices"

	"github.com/l7mp/deltajoin/pkg/timestamp"
)

// KV is a keyed record.
type KV[K, V any] struct {
	Key   K
	Value V
}

func (kv KV[K, V]) String() string { return fmt.Sprintf("(%v, %v)", kv.Key, kv.Value) }

// Update is the basic unit of change: a record, the logical time it changes at and a signed
// multiplicity.
type Update[D, T any] struct {
	Data D
	Time T
	Diff int64
}

func (u Update[D, T]) String() string { return fmt.Sprintf("(%v, %v, %d)", u.Data, u.Time, u.Diff) }

// AddDiff adds two multiplicities.
func AddDiff(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, NewOverflowError(fmt.Sprintf("%d + %d", a, b))
	}
	return a + b, nil
}

// MulDiff multiplies two multiplicities, as the bilinear join does.
func MulDiff(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, NewOverflowError(fmt.Sprintf("%d * %d", a, b))
	}
	return r, nil
}

type dataTime[D comparable, T comparable] struct {
	data D
	time T
}

// Consolidate sums the multiplicities of updates with identical data and time, drops the ones
// that cancel out and returns the rest sorted by time. Updates at the same time keep the order in
// which their data first appeared.
func Consolidate[D comparable, T timestamp.Timestamp[T]](updates []Update[D, T]) ([]Update[D, T], error) {
	index := make(map[dataTime[D, T]]int, len(updates))
	result := make([]Update[D, T], 0, len(updates))

	for _, u := range updates {
		k := dataTime[D, T]{data: u.Data, time: u.Time}
		if i, ok := index[k]; ok {
			diff, err := AddDiff(result[i].Diff, u.Diff)
			if err != nil {
				return nil, newZSetError(fmt.Sprintf("failed to consolidate %v", u.Data), err)
			}
			result[i].Diff = diff
			continue
		}
		index[k] = len(result)
		result = append(result, u)
	}

	result = slices.DeleteFunc(result, func(u Update[D, T]) bool { return u.Diff == 0 })
	slices.SortStableFunc(result, func(a, b Update[D, T]) int { return a.Time.Compare(b.Time) })

	return result, nil
}

// SplitByTime cuts a time-sorted update slice into runs of identical times.
func SplitByTime[D any, T comparable](updates []Update[D, T]) [][]Update[D, T] {
	var runs [][]Update[D, T]
	start := 0
	for i := 1; i <= len(updates); i++ {
		if i == len(updates) || updates[i].Time != updates[start].Time {
			runs = append(runs, updates[start:i])
			start = i
		}
	}
	return runs
}
