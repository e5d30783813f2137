package testutils

import (
	"github.com/l7mp/deltajoin/pkg/timestamp"
	"github.com/l7mp/deltajoin/pkg/zset"
)

// NaiveJoin joins two update histories pair by pair: every update of a meets every update of b
// with the same key at the join of their times, with the product of their multiplicities. The
// result is consolidated.
func NaiveJoin[K, A, B, R comparable, T timestamp.Timestamp[T]](
	a []zset.Update[zset.KV[K, A], T],
	b []zset.Update[zset.KV[K, B], T],
	combine func(K, A, B) R,
) ([]zset.Update[R, T], error) {
	var out []zset.Update[R, T]
	for _, ua := range a {
		for _, ub := range b {
			if ua.Data.Key != ub.Data.Key {
				continue
			}
			diff, err := zset.MulDiff(ua.Diff, ub.Diff)
			if err != nil {
				return nil, err
			}
			out = append(out, zset.Update[R, T]{
				Data: combine(ua.Data.Key, ua.Data.Value, ub.Data.Value),
				Time: ua.Time.Join(ub.Time),
				Diff: diff,
			})
		}
	}
	return zset.Consolidate(out)
}
