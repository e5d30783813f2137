package dataflow

import (
	"slices"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/l7mp/deltajoin/pkg/arrangement"
	"github.com/l7mp/deltajoin/pkg/exchange"
	"github.com/l7mp/deltajoin/pkg/metrics"
	"github.com/l7mp/deltajoin/pkg/timestamp"
	"github.com/l7mp/deltajoin/pkg/zset"
)

// sender registers a bundle as in flight on a channel and delivers it to a worker. The count goes
// up before the push so the receiver can never retire an uncounted bundle, and the receiver is
// signalled again once the bundle is in its mailbox.
func sender[D any, T timestamp.Timestamp[T]](s *Scope[T], ch *channel[bundle[D, T]], loc location) func(int, bundle[D, T]) {
	return func(worker int, b bundle[D, T]) {
		s.shared.tracker.update(loc, b.time, 1)
		ch.mailboxes[worker].push(b)
		s.worker.fabric.notify(worker)
	}
}

// receiver is the consuming end of a channel on one worker.
type receiver[D any, T timestamp.Timestamp[T]] struct {
	scope   *Scope[T]
	loc     location
	mailbox *mailbox[bundle[D, T]]
}

func (r *receiver[D, T]) drain() []bundle[D, T] { return r.mailbox.drain() }

// retire marks received bundles as processed.
func (r *receiver[D, T]) retire(bundles []bundle[D, T]) {
	for _, b := range bundles {
		r.scope.shared.tracker.update(r.loc, b.time, -1)
	}
}

func connect[D any, T timestamp.Timestamp[T]](s *Scope[T]) (location, *channel[bundle[D, T]], *receiver[D, T]) {
	loc := s.location(locChannel)
	ch, err := channelFor[bundle[D, T]](s.shared, loc.id, s.Peers())
	if err != nil {
		s.fail(err)
		ch = &channel[bundle[D, T]]{mailboxes: make([]*mailbox[bundle[D, T]], s.Peers())}
		for i := range ch.mailboxes {
			ch.mailboxes[i] = &mailbox[bundle[D, T]]{}
		}
	}
	return loc, ch, &receiver[D, T]{scope: s, loc: loc, mailbox: ch.mailboxes[s.Index()]}
}

// forwarder re-emits whatever arrives on a channel.
type forwarder[D any, T timestamp.Timestamp[T]] struct {
	in  *receiver[D, T]
	out *Stream[D, T]
	log logr.Logger
}

func (f *forwarder[D, T]) schedule() (bool, error) {
	bundles := f.in.drain()
	if len(bundles) == 0 {
		return false, nil
	}
	for _, b := range bundles {
		f.log.V(5).Info("received", "time", b.time.String(), "updates", len(b.updates))
		if err := f.out.push(b); err != nil {
			return true, err
		}
	}
	f.in.retire(bundles)
	return true, nil
}

// Broadcast sends a copy of every update of the stream to every worker, in the order the
// producing worker emitted them.
func Broadcast[D any, T timestamp.Timestamp[T]](s *Stream[D, T], name string) *Stream[D, T] {
	scope := s.scope
	loc, ch, in := connect[D, T](scope)
	node := scope.node(name, "broadcast")
	scope.edge(s.node, node, PactBroadcast)

	send := sender(scope, ch, loc)
	routed := metrics.UpdatesRouted.WithLabelValues(node, PactBroadcast)
	s.connect(func(b bundle[D, T]) error {
		for w, updates := range exchange.Replicate(scope.Peers(), b.updates) {
			send(w, bundle[D, T]{time: b.time, updates: updates})
		}
		routed.Add(float64(len(b.updates) * scope.Peers()))
		return nil
	})

	out := newStream[D, T](scope, node, union(s.deps, []location{loc}))
	scope.operators = append(scope.operators, &forwarder[D, T]{in: in, out: out, log: scope.log.WithName(node)})
	return out
}

// Exchange routes every keyed update to the worker owning its key.
func Exchange[K, V any, T timestamp.Timestamp[T]](s *Stream[zset.KV[K, V], T], name string, d *exchange.Distributor[K]) *Stream[zset.KV[K, V], T] {
	scope := s.scope
	loc, ch, in := connect[zset.KV[K, V], T](scope)
	node := scope.node(name, "exchange")
	scope.edge(s.node, node, PactExchange)

	s.connect(exchanger(scope, node, ch, loc, d))

	out := newStream[zset.KV[K, V], T](scope, node, union(s.deps, []location{loc}))
	scope.operators = append(scope.operators, &forwarder[zset.KV[K, V], T]{in: in, out: out, log: scope.log.WithName(node)})
	return out
}

func exchanger[K, V any, T timestamp.Timestamp[T]](s *Scope[T], node string, ch *channel[bundle[zset.KV[K, V], T]], loc location, d *exchange.Distributor[K]) func(bundle[zset.KV[K, V], T]) error {
	send := sender(s, ch, loc)
	routed := metrics.UpdatesRouted.WithLabelValues(node, PactExchange)
	return func(b bundle[zset.KV[K, V], T]) error {
		for w, updates := range exchange.Route(d, b.updates) {
			if len(updates) > 0 {
				send(w, bundle[zset.KV[K, V], T]{time: b.time, updates: updates})
			}
		}
		routed.Add(float64(len(b.updates)))
		return nil
	}
}

// Arranged is a keyed stream collected into per-worker arrangement shards.
type Arranged[K, V comparable, T timestamp.Timestamp[T]] struct {
	scope *Scope[T]
	node  string
	trace *arrangement.Arrangement[K, V, T]
	dist  *exchange.Distributor[K]
	deps  []location
}

// Arrange partitions a keyed stream by key and collects each worker's share into a local
// arrangement shard. A nil hasher selects exchange.DefaultHasher.
func Arrange[K, V comparable, T timestamp.Timestamp[T]](s *Stream[zset.KV[K, V], T], name string, hash exchange.Hasher[K]) *Arranged[K, V, T] {
	scope := s.scope
	dist, err := exchange.NewDistributor(scope.Peers(), scope.Partitions(), hash)
	if err != nil {
		scope.fail(err)
		dist, _ = exchange.NewDistributor(scope.Peers(), scope.Peers(), hash)
	}

	loc, ch, in := connect[zset.KV[K, V], T](scope)
	node := scope.node(name, "arrange")
	scope.edge(s.node, node, PactExchange)
	s.connect(exchanger(scope, node, ch, loc, dist))

	a := &Arranged[K, V, T]{
		scope: scope,
		node:  node,
		trace: arrangement.New[K, V, T](name, scope.Index(), arrangement.WithOwnership(dist.Owns(scope.Index()))),
		dist:  dist,
		deps:  union(s.deps, []location{loc}),
	}
	scope.operators = append(scope.operators, &arranger[K, V, T]{
		arranged: a,
		in:       in,
		entries:  metrics.ArrangementEntries.WithLabelValues(name, metrics.Worker(scope.Index())),
		log:      scope.log.WithName(node),
	})
	return a
}

// Trace returns the local arrangement shard.
func (a *Arranged[K, V, T]) Trace() *arrangement.Arrangement[K, V, T] { return a.trace }

// Distributor returns the distribution scheme of the arrangement.
func (a *Arranged[K, V, T]) Distributor() *exchange.Distributor[K] { return a.dist }

// Scope returns the dataflow the arrangement belongs to.
func (a *Arranged[K, V, T]) Scope() *Scope[T] { return a.scope }

// Node returns the label of the arrange operator.
func (a *Arranged[K, V, T]) Node() string { return a.node }

// Frontier returns the frontier of the arrangement: every entry at a time not beyond the
// frontier is present in the shard of the worker that owns it.
func (a *Arranged[K, V, T]) Frontier() timestamp.Antichain[T] {
	return a.scope.shared.tracker.frontier(a.deps)
}

type arranger[K, V comparable, T timestamp.Timestamp[T]] struct {
	arranged *Arranged[K, V, T]
	in       *receiver[zset.KV[K, V], T]
	entries  prometheus.Gauge
	log      logr.Logger
}

func (op *arranger[K, V, T]) schedule() (bool, error) {
	trace := op.arranged.trace
	bundles := op.in.drain()
	for _, b := range bundles {
		if err := trace.InsertBatch(b.updates); err != nil {
			return true, NewOperatorError(op.arranged.node, err)
		}
		op.log.V(4).Info("arranged", "time", b.time.String(), "updates", len(b.updates))
	}
	op.in.retire(bundles)

	frontier := op.arranged.Frontier()
	advanced := !frontier.Equal(trace.Frontier())
	trace.Advance(frontier)
	if len(bundles) > 0 {
		op.entries.Set(float64(trace.Len()))
	}

	return len(bundles) > 0 || advanced, nil
}

// OperatorHandle is the interface of a custom operator to the dataflow: it can hold back times,
// emit updates at held times and observe the worker it runs on.
type OperatorHandle[E any, T timestamp.Timestamp[T]] struct {
	scope  *Scope[T]
	loc    location
	node   string
	out    *Stream[E, T]
	inDeps []location
	held   map[T]int64
	worked bool
}

// Hold retains a capability at t: the frontier of the output cannot pass t until it is
// released.
func (h *OperatorHandle[E, T]) Hold(t T) {
	h.scope.shared.tracker.update(h.loc, t, 1)
	h.held[t]++
}

// Release gives up a capability acquired with Hold.
func (h *OperatorHandle[E, T]) Release(t T) {
	if h.held[t] <= 0 {
		panic("dataflow: releasing a time that is not held")
	}
	h.held[t]--
	if h.held[t] == 0 {
		delete(h.held, t)
	}
	h.scope.shared.tracker.update(h.loc, t, -1)
	h.worked = true
}

// Emit sends updates downstream. Updates must be at times the operator holds or has received
// input at in the current activation.
func (h *OperatorHandle[E, T]) Emit(updates []zset.Update[E, T]) error {
	if len(updates) == 0 {
		return nil
	}
	h.worked = true
	for _, run := range zset.SplitByTime(sortByTime(updates)) {
		if err := h.out.push(bundle[E, T]{time: run[0].Time, updates: run}); err != nil {
			return err
		}
	}
	return nil
}

// InputFrontier returns the frontier of the operator's input: no further input will arrive at
// times not beyond it.
func (h *OperatorHandle[E, T]) InputFrontier() timestamp.Antichain[T] {
	return h.scope.shared.tracker.frontier(h.inDeps)
}

// Held returns the number of capabilities the operator holds.
func (h *OperatorHandle[E, T]) Held() int {
	n := 0
	for _, c := range h.held {
		n += int(c)
	}
	return n
}

// Worker returns the index of the worker the operator runs on.
func (h *OperatorHandle[E, T]) Worker() int { return h.scope.Index() }

// Name returns the label of the operator.
func (h *OperatorHandle[E, T]) Name() string { return h.node }

// Logger returns the logger of the operator.
func (h *OperatorHandle[E, T]) Logger() logr.Logger { return h.scope.log.WithName(h.node) }

// UnaryFrontier builds a custom operator. The logic is invoked on every step with the updates
// received since the previous invocation, possibly none; it may hold times to emit at them later.
// The input updates are retired after logic returns, so the operator must hold any time it wants
// to emit at in a later activation.
func UnaryFrontier[D, E any, T timestamp.Timestamp[T]](s *Stream[D, T], name string, logic func(h *OperatorHandle[E, T], input []zset.Update[D, T]) error) *Stream[E, T] {
	scope := s.scope
	loc, ch, in := connect[D, T](scope)
	opLoc := scope.location(locOperator)
	node := scope.node(name, "unary")
	scope.edge(s.node, node, PactPipeline)

	send := sender(scope, ch, loc)
	s.connect(func(b bundle[D, T]) error {
		send(scope.Index(), b)
		return nil
	})

	out := newStream[E, T](scope, node, union(s.deps, []location{loc, opLoc}))
	h := &OperatorHandle[E, T]{
		scope:  scope,
		loc:    opLoc,
		node:   node,
		out:    out,
		inDeps: union(s.deps, []location{loc}),
		held:   map[T]int64{},
	}
	scope.operators = append(scope.operators, &unary[D, E, T]{handle: h, in: in, logic: logic})
	return out
}

type unary[D, E any, T timestamp.Timestamp[T]] struct {
	handle *OperatorHandle[E, T]
	in     *receiver[D, T]
	logic  func(h *OperatorHandle[E, T], input []zset.Update[D, T]) error
}

func (op *unary[D, E, T]) schedule() (bool, error) {
	bundles := op.in.drain()
	var input []zset.Update[D, T]
	for _, b := range bundles {
		input = append(input, b.updates...)
	}

	op.handle.worked = false
	if err := op.logic(op.handle, input); err != nil {
		return true, NewOperatorError(op.handle.node, err)
	}
	op.in.retire(bundles)

	return len(bundles) > 0 || op.handle.worked, nil
}

func sortByTime[D any, T timestamp.Timestamp[T]](updates []zset.Update[D, T]) []zset.Update[D, T] {
	sorted := make([]zset.Update[D, T], len(updates))
	copy(sorted, updates)
	slices.SortStableFunc(sorted, func(a, b zset.Update[D, T]) int { return a.Time.Compare(b.Time) })
	return sorted
}
