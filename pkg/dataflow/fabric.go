package dataflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/l7mp/deltajoin/pkg/timestamp"
)

// fabric connects the workers of one Execute call.
type fabric struct {
	peers      int
	partitions int
	activity   []chan struct{}

	mu        sync.Mutex
	dataflows map[int]any // index -> *shared[T]
}

func newFabric(peers, partitions int) *fabric {
	f := &fabric{
		peers:      peers,
		partitions: partitions,
		activity:   make([]chan struct{}, peers),
		dataflows:  map[int]any{},
	}
	for i := range f.activity {
		f.activity[i] = make(chan struct{}, 1)
	}
	return f
}

// wake signals every worker that there may be work to do.
func (f *fabric) wake() {
	for i := range f.activity {
		f.notify(i)
	}
}

// notify signals one worker. A pending signal is not duplicated.
func (f *fabric) notify(worker int) {
	select {
	case f.activity[worker] <- struct{}{}:
	default:
	}
}

// shared is the state of a dataflow that all workers see: the progress tracker, the channels and
// the build barrier.
type shared[T timestamp.Timestamp[T]] struct {
	name    string
	tracker *tracker[T]

	mu       sync.Mutex
	channels map[int]any // location id -> *channel[M]
	built    int
	ready    chan struct{}
}

func sharedFor[T timestamp.Timestamp[T]](f *fabric, index int, name string) (*shared[T], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.dataflows[index]; ok {
		sh, ok := existing.(*shared[T])
		if !ok || sh.name != name {
			return nil, fmt.Errorf("%w: dataflow %d is %q", ErrDataflowMismatch, index, name)
		}
		return sh, nil
	}

	sh := &shared[T]{
		name:     name,
		tracker:  newTracker[T](f.wake),
		channels: map[int]any{},
		ready:    make(chan struct{}),
	}
	f.dataflows[index] = sh
	return sh, nil
}

// arrive registers a worker at the build barrier and waits for the rest.
func (sh *shared[T]) arrive(ctx context.Context, peers int) error {
	sh.mu.Lock()
	sh.built++
	if sh.built == peers {
		close(sh.ready)
	}
	sh.mu.Unlock()

	select {
	case <-sh.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mailbox is the receiving end of a channel on one worker.
type mailbox[M any] struct {
	mu    sync.Mutex
	queue []M
}

func (m *mailbox[M]) push(msg M) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, msg)
}

func (m *mailbox[M]) drain() []M {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.queue
	m.queue = nil
	return msgs
}

// channel connects the instances of a producer on every worker with the instances of a consumer
// on every worker.
type channel[M any] struct {
	mailboxes []*mailbox[M]
}

func channelFor[M any, T timestamp.Timestamp[T]](sh *shared[T], id, peers int) (*channel[M], error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.channels[id]; ok {
		ch, ok := existing.(*channel[M])
		if !ok {
			return nil, fmt.Errorf("%w: channel %d carries a different type", ErrDataflowMismatch, id)
		}
		return ch, nil
	}

	ch := &channel[M]{mailboxes: make([]*mailbox[M], peers)}
	for i := range ch.mailboxes {
		ch.mailboxes[i] = &mailbox[M]{}
	}
	sh.channels[id] = ch
	return ch, nil
}
