package dataflow

import (
	"github.com/l7mp/deltajoin/pkg/timestamp"
	"github.com/l7mp/deltajoin/pkg/zset"
)

// bundle is a batch of updates that share the same time.
type bundle[D any, T timestamp.Timestamp[T]] struct {
	time    T
	updates []zset.Update[D, T]
}

// Stream is a stream of updates produced by an operator of a dataflow.
type Stream[D any, T timestamp.Timestamp[T]] struct {
	scope   *Scope[T]
	node    string
	deps    []location
	targets []func(bundle[D, T]) error
}

func newStream[D any, T timestamp.Timestamp[T]](s *Scope[T], node string, deps []location) *Stream[D, T] {
	return &Stream[D, T]{scope: s, node: node, deps: deps}
}

// Scope returns the dataflow the stream belongs to.
func (s *Stream[D, T]) Scope() *Scope[T] { return s.scope }

// Node returns the label of the operator producing the stream.
func (s *Stream[D, T]) Node() string { return s.node }

func (s *Stream[D, T]) connect(target func(bundle[D, T]) error) {
	s.targets = append(s.targets, target)
}

func (s *Stream[D, T]) push(b bundle[D, T]) error {
	if len(b.updates) == 0 {
		return nil
	}
	for _, target := range s.targets {
		if err := target(b); err != nil {
			return err
		}
	}
	return nil
}

// Inspect calls f on every update that passes through the stream.
func (s *Stream[D, T]) Inspect(f func(zset.Update[D, T])) *Stream[D, T] {
	node := s.scope.node("inspect", "inspect")
	s.scope.edge(s.node, node, PactPipeline)

	out := newStream[D, T](s.scope, node, s.deps)
	s.connect(func(b bundle[D, T]) error {
		for _, u := range b.updates {
			f(u)
		}
		return out.push(b)
	})
	return out
}

// Probe returns a probe that tracks the progress of the stream.
func (s *Stream[D, T]) Probe() *Probe[T] {
	node := s.scope.node("probe", "probe")
	s.scope.edge(s.node, node, PactPipeline)
	return &Probe[T]{tracker: s.scope.shared.tracker, deps: s.deps}
}

// Map transforms the data of every update, keeping its time and multiplicity.
func Map[D, E any, T timestamp.Timestamp[T]](s *Stream[D, T], name string, f func(D, T) E) *Stream[E, T] {
	node := s.scope.node(name, "map")
	s.scope.edge(s.node, node, PactPipeline)

	out := newStream[E, T](s.scope, node, s.deps)
	s.connect(func(b bundle[D, T]) error {
		updates := make([]zset.Update[E, T], len(b.updates))
		for i, u := range b.updates {
			updates[i] = zset.Update[E, T]{Data: f(u.Data, u.Time), Time: u.Time, Diff: u.Diff}
		}
		return out.push(bundle[E, T]{time: b.time, updates: updates})
	})
	return out
}

// Concat merges streams of the same dataflow into one.
func Concat[D any, T timestamp.Timestamp[T]](name string, streams ...*Stream[D, T]) *Stream[D, T] {
	if len(streams) == 0 {
		panic("dataflow: concat of no streams")
	}
	s := streams[0].scope

	node := s.node(name, "concat")
	deps := make([][]location, len(streams))
	for i, in := range streams {
		if in.scope != s {
			s.fail(ErrDataflowMismatch)
		}
		s.edge(in.node, node, PactPipeline)
		deps[i] = in.deps
	}

	out := newStream[D, T](s, node, union(deps...))
	for _, in := range streams {
		in.connect(out.push)
	}
	return out
}
