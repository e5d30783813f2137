package dataflow

import (
	"fmt"
	"sync"

	"github.com/l7mp/deltajoin/pkg/timestamp"
)

type locationKind int

const (
	locInput    locationKind = iota // capabilities of input handles
	locChannel                      // messages in flight on a channel
	locOperator                     // times held by an operator
)

func (k locationKind) String() string {
	switch k {
	case locInput:
		return "input"
	case locChannel:
		return "channel"
	case locOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// location is a place in the dataflow where pointstamps can be held. Identifiers are allocated in
// build order, so they agree across workers.
type location struct {
	kind locationKind
	id   int
}

func (l location) String() string { return fmt.Sprintf("%s#%d", l.kind, l.id) }

// union merges location sets, dropping duplicates.
func union(sets ...[]location) []location {
	seen := map[location]bool{}
	result := []location{}
	for _, set := range sets {
		for _, l := range set {
			if !seen[l] {
				seen[l] = true
				result = append(result, l)
			}
		}
	}
	return result
}

// tracker counts the pointstamps of a dataflow across all workers.
type tracker[T timestamp.Timestamp[T]] struct {
	mu      sync.Mutex
	counts  map[location]map[T]int64
	changed chan struct{}
	wake    func()
}

func newTracker[T timestamp.Timestamp[T]](wake func()) *tracker[T] {
	return &tracker[T]{
		counts:  map[location]map[T]int64{},
		changed: make(chan struct{}),
		wake:    wake,
	}
}

// update changes the number of pointstamps at a location and time. A negative count means the
// substrate lost track of a message, which is a bug.
func (t *tracker[T]) update(loc location, time T, delta int64) {
	if delta == 0 {
		return
	}

	t.mu.Lock()
	times, ok := t.counts[loc]
	if !ok {
		times = map[T]int64{}
		t.counts[loc] = times
	}
	count := times[time] + delta
	if count < 0 {
		t.mu.Unlock()
		panic(fmt.Sprintf("progress tracker: negative pointstamp count %d at %s, time %s", count, loc, time))
	}
	if count == 0 {
		delete(times, time)
		if len(times) == 0 {
			delete(t.counts, loc)
		}
	} else {
		times[time] = count
	}
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()

	if t.wake != nil {
		t.wake()
	}
}

// frontier returns the minimal times held at the given locations.
func (t *tracker[T]) frontier(locs []location) timestamp.Antichain[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := timestamp.NewAntichain[T]()
	for _, loc := range locs {
		for time := range t.counts[loc] {
			f.Insert(time)
		}
	}
	return f
}

// empty reports whether no pointstamps are held anywhere.
func (t *tracker[T]) empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts) == 0
}

// watch returns a channel that is closed on the next update.
func (t *tracker[T]) watch() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changed
}
