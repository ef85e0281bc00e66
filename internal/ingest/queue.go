// Package ingest implements the bounded, sharded ingest queue and worker
// pool of spec §4.5: a service-agnostic FIFO between the HTTP edge and the
// workers, with backpressure on a full queue and per-service ordering
// preserved through sharded dispatch.
package ingest

import (
	"errors"

	"github.com/Suvan8806/driftwatch/internal/store"
	"github.com/Suvan8806/driftwatch/internal/svccontext"
)

// ErrQueueFull is returned by Enqueue when the target shard's buffer is at
// capacity. The caller (HTTP edge) surfaces this as a retriable 503.
var ErrQueueFull = errors.New("ingest: queue full")

// Queue is a bounded, sharded FIFO of pending samples. Sharding by
// hash(service_id) (the same shard function svccontext.Registry uses)
// guarantees that all samples for one service land on the same channel and
// are therefore drained by the same worker in enqueue order, without a
// single queue-wide lock serializing unrelated services.
type Queue struct {
	shards [shardCount]chan store.Sample
}

const shardCount = 64

// NewQueue creates a Queue with capacity split evenly across shards: each
// shard channel holds capacity/shardCount samples, but at least 1. Total
// capacity is therefore capacity rounded down to a multiple of shardCount,
// and shardCount for any capacity below 2*shardCount.
func NewQueue(capacity int) *Queue {
	perShard := capacity / shardCount
	if perShard < 1 {
		perShard = 1
	}
	q := &Queue{}
	for i := range q.shards {
		q.shards[i] = make(chan store.Sample, perShard)
	}
	return q
}

// Enqueue attempts a non-blocking send of sample onto its shard. Returns
// ErrQueueFull if that shard's buffer is saturated.
func (q *Queue) Enqueue(sample store.Sample) error {
	idx := svccontext.ShardIndex(sample.ServiceID)
	select {
	case q.shards[idx] <- sample:
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth reports the total number of samples currently buffered across all
// shards, used by internal/telemetry for the queue-depth gauge.
func (q *Queue) Depth() int {
	n := 0
	for _, ch := range q.shards {
		n += len(ch)
	}
	return n
}

// Capacity reports the total buffer capacity across all shards.
func (q *Queue) Capacity() int {
	n := 0
	for _, ch := range q.shards {
		n += cap(ch)
	}
	return n
}
