package dataflow

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/l7mp/deltajoin/pkg/timestamp"
	"github.com/l7mp/deltajoin/pkg/zset"
)

// InputHandle introduces updates into a dataflow. Each worker owns its own handle; updates are
// buffered until the handle is flushed or advanced. The handle holds a capability at its current
// time, which keeps the frontier of everything downstream from passing that time.
type InputHandle[D comparable, T timestamp.Timestamp[T]] struct {
	name   string
	scope  *Scope[T]
	loc    location
	time   T
	buffer []zset.Update[D, T]
	closed bool
	stream *Stream[D, T]
	log    logr.Logger
}

// NewInput creates an input to a dataflow. The capability of the handle starts at the minimal
// time.
func NewInput[D comparable, T timestamp.Timestamp[T]](s *Scope[T], name string) (*InputHandle[D, T], *Stream[D, T]) {
	loc := s.location(locInput)
	node := s.node(name, "input")

	h := &InputHandle[D, T]{
		name:   name,
		scope:  s,
		loc:    loc,
		stream: newStream[D, T](s, node, []location{loc}),
		log:    s.log.WithName(name),
	}
	s.shared.tracker.update(loc, h.time, 1)
	s.inputs = append(s.inputs, h)

	return h, h.stream
}

// Time returns the current time of the handle.
func (h *InputHandle[D, T]) Time() T { return h.time }

// Insert adds one copy of d at the current time.
func (h *InputHandle[D, T]) Insert(d D) error { return h.UpdateAt(d, h.time, 1) }

// Remove retracts one copy of d at the current time.
func (h *InputHandle[D, T]) Remove(d D) error { return h.UpdateAt(d, h.time, -1) }

// UpdateAt changes the multiplicity of d at time t, which must not be before the current time.
func (h *InputHandle[D, T]) UpdateAt(d D, t T, diff int64) error {
	if h.closed {
		return ErrInputClosed
	}
	if !h.time.LessEqual(t) {
		return timestamp.NewOutOfOrderError("input "+h.name, t, timestamp.NewAntichain(h.time))
	}
	h.buffer = append(h.buffer, zset.Update[D, T]{Data: d, Time: t, Diff: diff})
	return nil
}

// Flush sends the buffered updates downstream, consolidated and in time order.
func (h *InputHandle[D, T]) Flush() error {
	if len(h.buffer) == 0 {
		return nil
	}

	updates, err := zset.Consolidate(h.buffer)
	h.buffer = nil
	if err != nil {
		return fmt.Errorf("input %s: %w", h.name, err)
	}

	h.log.V(4).Info("flush", "time", h.time.String(), "updates", len(updates))
	for _, run := range zset.SplitByTime(updates) {
		if err := h.stream.push(bundle[D, T]{time: run[0].Time, updates: run}); err != nil {
			return err
		}
	}
	return nil
}

// AdvanceTo flushes the handle and moves its capability to t. Times never go backwards.
func (h *InputHandle[D, T]) AdvanceTo(t T) error {
	if h.closed {
		return ErrInputClosed
	}
	if !h.time.LessEqual(t) {
		return timestamp.NewOutOfOrderError("input "+h.name, t, timestamp.NewAntichain(h.time))
	}
	if err := h.Flush(); err != nil {
		return err
	}
	if t == h.time {
		return nil
	}

	tracker := h.scope.shared.tracker
	tracker.update(h.loc, t, 1)
	tracker.update(h.loc, h.time, -1)
	h.time = t
	return nil
}

// Close flushes the handle and gives up its capability. Closing twice is a no-op.
func (h *InputHandle[D, T]) Close() error {
	if h.closed {
		return nil
	}
	if err := h.Flush(); err != nil {
		return err
	}
	h.closed = true
	h.scope.shared.tracker.update(h.loc, h.time, -1)
	h.log.V(2).Info("input closed", "time", h.time.String())
	return nil
}
