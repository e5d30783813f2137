package dataflow

import (
	"context"

	"github.com/l7mp/deltajoin/pkg/timestamp"
)

// Probe reports the progress of a stream: the frontier below which the stream will produce no
// further updates. The frontier only ever moves forward.
type Probe[T timestamp.Timestamp[T]] struct {
	tracker *tracker[T]
	deps    []location
}

// Frontier returns the current frontier of the stream.
func (p *Probe[T]) Frontier() timestamp.Antichain[T] { return p.tracker.frontier(p.deps) }

// LessThan reports whether updates at times before t may still appear.
func (p *Probe[T]) LessThan(t T) bool { return p.Frontier().LessThan(t) }

// LessEqual reports whether updates at times up to and including t may still appear.
func (p *Probe[T]) LessEqual(t T) bool { return p.Frontier().LessEqual(t) }

// Done reports whether the stream is complete.
func (p *Probe[T]) Done() bool { return p.Frontier().IsEmpty() }

// Wait blocks until no update before t may appear anymore. It only waits for other workers to
// make progress: a worker waiting on a probe must not be the one holding the frontier back, use
// Worker.StepWhile for that.
func (p *Probe[T]) Wait(ctx context.Context, t T) error {
	for {
		changed := p.tracker.watch()
		if !p.LessThan(t) {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
