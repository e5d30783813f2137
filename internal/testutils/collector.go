package testutils

import (
	"slices"
	"sync"

	"github.com/l7mp/deltajoin/pkg/timestamp"
	"github.com/l7mp/deltajoin/pkg/zset"
)

// Collector gathers the updates observed by several workers.
type Collector[D comparable, T timestamp.Timestamp[T]] struct {
	mu      sync.Mutex
	updates []zset.Update[D, T]
	workers map[int]int
}

func NewCollector[D comparable, T timestamp.Timestamp[T]]() *Collector[D, T] {
	return &Collector[D, T]{workers: map[int]int{}}
}

// Observe returns a callback that records updates seen on a worker.
func (c *Collector[D, T]) Observe(worker int) func(zset.Update[D, T]) {
	return func(u zset.Update[D, T]) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.updates = append(c.updates, u)
		c.workers[worker]++
	}
}

// Updates returns the raw updates in arrival order.
func (c *Collector[D, T]) Updates() []zset.Update[D, T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.updates)
}

// Consolidated returns the updates summed per (data, time).
func (c *Collector[D, T]) Consolidated() ([]zset.Update[D, T], error) {
	return zset.Consolidate(c.Updates())
}

// At returns the accumulated collection as of time t.
func (c *Collector[D, T]) At(t T) (*zset.ZSet[D], error) {
	return CollectionAt(c.Updates(), t)
}

// Worker returns the number of updates observed on a worker.
func (c *Collector[D, T]) Worker(worker int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workers[worker]
}

// Len returns the number of raw updates.
func (c *Collector[D, T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

// CollectionAt sums the updates at times less or equal to t.
func CollectionAt[D comparable, T timestamp.Timestamp[T]](updates []zset.Update[D, T], t T) (*zset.ZSet[D], error) {
	z := zset.New[D]()
	for _, u := range updates {
		if u.Time.LessEqual(t) {
			if err := z.AddMutate(u.Data, u.Diff); err != nil {
				return nil, err
			}
		}
	}
	return z, nil
}
