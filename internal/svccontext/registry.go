package svccontext

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/Suvan8806/driftwatch/internal/detect"
	"github.com/Suvan8806/driftwatch/internal/store"
)

const shardCount = 64

// Registry maps service_id to its Context, sharded by hash(service_id) so
// unrelated services don't contend on one global lock (spec §9: "a sharded
// lock keyed on service_id").
type Registry struct {
	store      *store.Store
	thresholds detect.Thresholds

	shards [shardCount]shard
}

type shard struct {
	mu       sync.Mutex
	contexts map[string]*Context
}

// NewRegistry creates an empty Registry backed by store for lazy rehydration.
func NewRegistry(st *store.Store, thresholds detect.Thresholds) *Registry {
	r := &Registry{store: st, thresholds: thresholds}
	for i := range r.shards {
		r.shards[i].contexts = make(map[string]*Context)
	}
	return r
}

// ShardIndex returns which shard a service_id hashes to. Exposed so
// internal/ingest can route samples to a worker that owns the same shard,
// guaranteeing per-service ordering without a global lock.
func ShardIndex(serviceID string) int {
	h := fnv.New32a()
	h.Write([]byte(serviceID))
	return int(h.Sum32()) % shardCount
}

// Get returns the Context for serviceID, creating and rehydrating it from
// the store on first touch. The returned Context is not locked; callers
// must call Lock/Unlock around their critical section.
func (r *Registry) Get(ctx context.Context, serviceID string) (*Context, error) {
	idx := ShardIndex(serviceID)
	sh := &r.shards[idx]

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if c, ok := sh.contexts[serviceID]; ok {
		return c, nil
	}

	c, err := r.rehydrate(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("rehydrate service context %q: %w", serviceID, err)
	}
	sh.contexts[serviceID] = c
	return c, nil
}

func (r *Registry) rehydrate(ctx context.Context, serviceID string) (*Context, error) {
	var baselinePtr *store.Baseline
	b, err := r.store.GetBaseline(ctx, serviceID)
	switch {
	case err == nil:
		baselinePtr = b
	case err == store.ErrNotFound:
		// No baseline yet, expected for new or low-volume services.
	default:
		return nil, err
	}

	var healthPtr *store.HealthState
	h, err := r.store.GetHealth(ctx, serviceID)
	switch {
	case err == nil:
		healthPtr = h
	case err == store.ErrNotFound:
		// First sample ever seen for this service.
	default:
		return nil, err
	}

	return New(serviceID, r.thresholds, baselinePtr, healthPtr), nil
}

// Len returns the number of services currently held in memory, across all
// shards. Used for diagnostics, not the durable service count (that comes
// from Store.SystemStats).
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		r.shards[i].mu.Lock()
		n += len(r.shards[i].contexts)
		r.shards[i].mu.Unlock()
	}
	return n
}
