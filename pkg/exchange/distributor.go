// Package exchange implements the two ways a relation's change stream reaches the workers: the
// Distributor partitions updates by a hash of their key so that each worker holds a consistent
// shard of the relation, and the broadcast path replicates every update, stashing its own
// logical time as payload, to all workers.
package exchange

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/l7mp/deltajoin/pkg/util"
	"github.com/l7mp/deltajoin/pkg/zset"
)

// Hasher maps a key to a 64 bit hash. Equal keys must hash to the same value.
type Hasher[K any] func(K) uint64

// DefaultHasher hashes the canonical encoding of a key with xxhash.
func DefaultHasher[K any]() Hasher[K] {
	return func(k K) uint64 { return xxhash.Sum64(util.Canonical(k)) }
}

// Distributor routes keys to workers. The hash space is cut into a fixed number of partitions
// and each partition is owned by exactly one worker; the assignment never changes during a run so
// the same key always lands on the same worker.
type Distributor[K any] struct {
	hash   Hasher[K]
	owners []int // partition -> worker
	peers  int
}

// NewDistributor creates a distributor for the given number of workers. If partitions is zero
// there is one partition per worker. Partitions are assigned to workers round-robin.
func NewDistributor[K any](peers, partitions int, hash Hasher[K]) (*Distributor[K], error) {
	if peers <= 0 {
		return nil, fmt.Errorf("need at least one worker, got %d", peers)
	}
	if partitions == 0 {
		partitions = peers
	}
	if partitions < peers {
		return nil, fmt.Errorf("number of partitions (%d) must not be smaller than the number of workers (%d)",
			partitions, peers)
	}
	if hash == nil {
		hash = DefaultHasher[K]()
	}

	owners := make([]int, partitions)
	for i := range owners {
		owners[i] = i % peers
	}

	return &Distributor[K]{hash: hash, owners: owners, peers: peers}, nil
}

// Partitions returns the number of partitions.
func (d *Distributor[K]) Partitions() int { return len(d.owners) }

// Peers returns the number of workers.
func (d *Distributor[K]) Peers() int { return d.peers }

// Partition returns the partition a key falls into: hash(key) mod Q.
func (d *Distributor[K]) Partition(key K) int {
	return int(d.hash(key) % uint64(len(d.owners)))
}

// Worker returns the worker that owns the key.
func (d *Distributor[K]) Worker(key K) int { return d.owners[d.Partition(key)] }

// Owns returns the ownership predicate of a worker, used by the shard to detect misrouted keys.
func (d *Distributor[K]) Owns(worker int) func(K) bool {
	return func(key K) bool { return d.Worker(key) == worker }
}

// Route splits a batch of keyed updates by owning worker, preserving the order of updates per
// worker.
func Route[K, V any, T any](d *Distributor[K], updates []zset.Update[zset.KV[K, V], T]) [][]zset.Update[zset.KV[K, V], T] {
	parts := make([][]zset.Update[zset.KV[K, V], T], d.peers)
	for _, u := range updates {
		w := d.Worker(u.Data.Key)
		parts[w] = append(parts[w], u)
	}
	return parts
}
