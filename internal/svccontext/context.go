// Package svccontext owns the in-memory per-service state described by
// spec §3/§9: each live service has a single Context bundling its
// cached baseline, health state, trailing z-score window (via the state
// machine), and samples-since-last-refresh counter.
package svccontext

import (
	"sync"

	"github.com/Suvan8806/driftwatch/internal/detect"
	"github.com/Suvan8806/driftwatch/internal/store"
)

// Context is the in-memory state for one service. Callers must hold the
// context's lock for the duration of a read-modify-write cycle; the
// Registry only guarantees one Context per service_id, not internal
// synchronization across fields.
type Context struct {
	mu sync.Mutex

	ServiceID string

	Baseline       *store.Baseline // nil until the baseline engine produces one
	SamplesSince   int             // samples observed since the last baseline refresh
	TotalSamples   int             // samples observed since this Context was created; starts at 0, not rehydrated from the store

	Machine *detect.Machine
	Health  store.HealthState
}

// Lock acquires the per-service critical section. Paired with Unlock;
// callers are expected to do all three steps (maybe-refresh-baseline,
// detect, transition) while holding it, per spec §4.5's "acquire per-service
// context ... release context" step.
func (c *Context) Lock()   { c.mu.Lock() }
func (c *Context) Unlock() { c.mu.Unlock() }

// Snapshot is a copy of a Context's fields taken under lock, used so
// workers can compute new state off to the side and only write it back into
// the shared Context after Store.PersistSample succeeds, so a StoreTransient
// failure never advances in-memory state. The worker keeps holding the lock
// across the Store round-trip.
type Snapshot struct {
	Baseline     *store.Baseline
	SamplesSince int
	TotalSamples int
	Health       store.HealthState
}

// Snapshot copies the fields a worker needs to compute the next state.
// Must be called while holding the lock.
func (c *Context) Snapshot() Snapshot {
	return Snapshot{
		Baseline:     c.Baseline,
		SamplesSince: c.SamplesSince,
		TotalSamples: c.TotalSamples,
		Health:       c.Health,
	}
}

// Commit writes back a computed Snapshot plus the state-machine mutation
// that already happened in place on c.Machine. Must be called while
// holding the lock, and only after the corresponding Store write succeeded.
func (c *Context) Commit(snap Snapshot) {
	c.Baseline = snap.Baseline
	c.SamplesSince = snap.SamplesSince
	c.TotalSamples = snap.TotalSamples
	c.Health = snap.Health
}

// New creates a fresh Context in INSUFFICIENT_DATA, optionally rehydrated
// from durable state (baseline/health may be nil/zero-value if the service
// hasn't been seen before).
func New(serviceID string, thresholds detect.Thresholds, existingBaseline *store.Baseline, existingHealth *store.HealthState) *Context {
	health := store.HealthState{
		ServiceID: serviceID,
		State:     store.StateInsufficientData,
	}
	if existingHealth != nil {
		health = *existingHealth
	}

	// Rehydrating a machine straight into STABLE/DRIFT_DETECTED rather than
	// replaying transitions: the trailing z-score window those transitions
	// depended on isn't durable (see DESIGN.md's zscore_history decision),
	// so there is nothing to replay against.
	m := detect.NewMachineAtState(thresholds, health.State)

	return &Context{
		ServiceID: serviceID,
		Baseline:  existingBaseline,
		Machine:   m,
		Health:    health,
	}
}
