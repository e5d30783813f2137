package join

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/l7mp/deltajoin/pkg/dataflow"
	"github.com/l7mp/deltajoin/pkg/exchange"
	"github.com/l7mp/deltajoin/pkg/metrics"
	"github.com/l7mp/deltajoin/pkg/timestamp"
	"github.com/l7mp/deltajoin/pkg/util"
	"github.com/l7mp/deltajoin/pkg/zset"
)

// HalfJoin joins the broadcast changes of one relation against the local arrangement shard of
// another. Every change looks up the history of its key restricted to the entries the comparison
// admits and emits one row per entry at the join of the two times, with the product of the two
// multiplicities. Keys not owned by the worker find no entries, so every pair is produced exactly
// once, on the worker owning the key.
//
// A change is held back until the frontier of the arrangement has passed its time, so the
// lookup always sees the complete history it selects from, and released once its rows are
// emitted. Left values come from the changes,
// right values from the arrangement.
func HalfJoin[K, V1, V2 comparable, R any, T timestamp.Timestamp[T]](
	name string,
	changes *dataflow.Stream[exchange.Record[K, V1, T], T],
	arranged *dataflow.Arranged[K, V2, T],
	cmp Comparison[T],
	combine func(K, V1, V2) R,
	opts ...Option,
) (*dataflow.Stream[R, T], error) {
	o := newOptions(name, opts)
	cloneChange, err := clonerOf[V1](o, o.cloneLeft, "left")
	if err != nil {
		return nil, err
	}
	cloneArranged, err := clonerOf[V2](o, o.cloneRight, "right")
	if err != nil {
		return nil, err
	}
	return halfJoin(name, changes, arranged, cmp, combine, cloneChange, cloneArranged, o.stats), nil
}

func halfJoin[K, V1, V2 comparable, R any, T timestamp.Timestamp[T]](
	name string,
	changes *dataflow.Stream[exchange.Record[K, V1, T], T],
	arranged *dataflow.Arranged[K, V2, T],
	cmp Comparison[T],
	combine func(K, V1, V2) R,
	cloneChange func(V1) V1,
	cloneArranged func(V2) V2,
	stats *Stats,
) *dataflow.Stream[R, T] {
	worker := changes.Scope().Index()
	hj := &halfJoinOp[K, V1, V2, R, T]{
		arranged:      arranged,
		cmp:           cmp,
		combine:       combine,
		cloneChange:   cloneChange,
		cloneArranged: cloneArranged,
		stats:         stats,
		lookups:       metrics.HalfJoinLookups.WithLabelValues(name),
		results:       metrics.HalfJoinResults.WithLabelValues(name),
		clones:        metrics.ValueClones.WithLabelValues(name),
		pendingGauge:  metrics.HalfJoinPending.WithLabelValues(name, metrics.Worker(worker)),
	}
	return dataflow.UnaryFrontier(changes, name, hj.logic)
}

type halfJoinOp[K, V1, V2 comparable, R any, T timestamp.Timestamp[T]] struct {
	arranged      *dataflow.Arranged[K, V2, T]
	cmp           Comparison[T]
	combine       func(K, V1, V2) R
	cloneChange   func(V1) V1
	cloneArranged func(V2) V2
	stats         *Stats

	pending      []zset.Update[exchange.Record[K, V1, T], T]
	lookups      prometheus.Counter
	results      prometheus.Counter
	clones       prometheus.Counter
	pendingGauge prometheus.Gauge
}

func (hj *halfJoinOp[K, V1, V2, R, T]) logic(h *dataflow.OperatorHandle[R, T], input []zset.Update[exchange.Record[K, V1, T], T]) error {
	for _, u := range input {
		h.Hold(u.Data.Origin)
		hj.pending = append(hj.pending, u)
	}
	if len(hj.pending) == 0 {
		return nil
	}

	frontier := hj.arranged.Frontier()
	trace := hj.arranged.Trace()
	log := h.Logger()

	var out []zset.Update[R, T]
	var done []T
	keep := hj.pending[:0]
	for _, u := range hj.pending {
		record := u.Data
		if !settled(frontier, record.Origin) {
			keep = append(keep, u)
			continue
		}

		entries, err := trace.Select(record.Key, func(t T) bool { return hj.cmp(t, record.Origin) })
		if err != nil {
			return err
		}
		hj.lookups.Inc()
		if hj.stats != nil {
			hj.stats.Lookups.Add(1)
		}
		log.V(5).Info("lookup", "key", util.Stringify(record.Key), "origin", record.Origin.String(),
			"diff", u.Diff, "matches", len(entries))

		for _, e := range entries {
			diff, err := zset.MulDiff(u.Diff, e.Diff)
			if err != nil {
				return fmt.Errorf("joining %s with %v: %w", record, e.Value, err)
			}
			out = append(out, zset.Update[R, T]{
				Data: hj.combine(record.Key, hj.copyChange(record.Value), hj.copyArranged(e.Value)),
				Time: record.Origin.Join(e.Time),
				Diff: diff,
			})
		}
		done = append(done, record.Origin)
	}
	hj.pending = keep
	hj.pendingGauge.Set(float64(len(hj.pending)))

	if len(done) == 0 {
		return nil
	}

	if err := h.Emit(out); err != nil {
		return err
	}
	for _, t := range done {
		h.Release(t)
	}

	hj.results.Add(float64(len(out)))
	if hj.stats != nil {
		hj.stats.Results.Add(int64(len(out)))
	}
	log.V(4).Info("processed changes", "changes", len(done), "results", len(out),
		"pending", len(hj.pending), "frontier", frontier.String())

	return nil
}

func (hj *halfJoinOp[K, V1, V2, R, T]) copyChange(v V1) V1 {
	if hj.cloneChange == nil {
		return v
	}
	hj.countClone()
	return hj.cloneChange(v)
}

func (hj *halfJoinOp[K, V1, V2, R, T]) copyArranged(v V2) V2 {
	if hj.cloneArranged == nil {
		return v
	}
	hj.countClone()
	return hj.cloneArranged(v)
}

func (hj *halfJoinOp[K, V1, V2, R, T]) countClone() {
	hj.clones.Inc()
	if hj.stats != nil {
		hj.stats.Clones.Add(1)
	}
}
