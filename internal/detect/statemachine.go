package detect

import (
	"math"
	"time"

	"github.com/Suvan8806/driftwatch/internal/store"
)

// Thresholds holds the constants named in spec §4.4. Field names match the
// spec's symbols so config wiring stays legible.
type Thresholds struct {
	Zsev   float64 // severe anomaly threshold on max(|z_lat|, |z_pay|)
	Ksev   int     // consecutive severe anomalies to trip
	Zmod   float64 // moderate anomaly threshold
	Wmod   int     // trailing window size (samples)
	Kmod   int     // anomalies in Wmod to trip
	Znorm  float64 // normal-sample ceiling for recovery
	Krec   int     // consecutive normals to recover
}

// DefaultThresholds returns spec §4.4's default constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Zsev:  3.0,
		Ksev:  5,
		Zmod:  2.5,
		Wmod:  20,
		Kmod:  10,
		Znorm: 2.0,
		Krec:  50,
	}
}

type ringEntry struct {
	pair    store.ZScorePair
	anomaly bool
}

// Machine is the per-service state machine of spec §4.4. Not safe for
// concurrent use; callers (internal/svccontext) serialize access per service.
type Machine struct {
	cfg Thresholds
	now func() time.Time

	state             store.State
	consecutiveSevere int
	consecutiveNormal int
	ring              []ringEntry
}

// NewMachine creates a Machine starting in INSUFFICIENT_DATA.
func NewMachine(cfg Thresholds) *Machine {
	return &Machine{cfg: cfg, now: time.Now, state: store.StateInsufficientData}
}

// NewMachineAtState creates a Machine already in the given state, used to
// rehydrate a service's state machine from its durable HealthState without
// replaying transitions it has no trailing z-scores for.
func NewMachineAtState(cfg Thresholds, state store.State) *Machine {
	return &Machine{cfg: cfg, now: time.Now, state: state}
}

// State returns the current health state.
func (m *Machine) State() store.State {
	return m.state
}

// MachineSnapshot captures a Machine's mutable fields so a caller can roll
// an Observe call back if the durable write that must accompany it fails
// (spec §4.4/§7: a transient Store failure must not advance in-memory state).
type MachineSnapshot struct {
	state             store.State
	consecutiveSevere int
	consecutiveNormal int
	ring              []ringEntry
}

// Snapshot copies the fields Observe mutates, for later Restore.
func (m *Machine) Snapshot() MachineSnapshot {
	ring := make([]ringEntry, len(m.ring))
	copy(ring, m.ring)
	return MachineSnapshot{
		state:             m.state,
		consecutiveSevere: m.consecutiveSevere,
		consecutiveNormal: m.consecutiveNormal,
		ring:              ring,
	}
}

// Restore undoes the effect of an Observe call that turned out not to be
// durable, putting the Machine back exactly where Snapshot found it.
func (m *Machine) Restore(snap MachineSnapshot) {
	m.state = snap.state
	m.consecutiveSevere = snap.consecutiveSevere
	m.consecutiveNormal = snap.consecutiveNormal
	m.ring = snap.ring
}

// Result describes the outcome of observing one sample.
type Result struct {
	Transitioned bool
	Previous     store.State
	New          store.State
	Reason       store.Reason
	TriggerZs    []store.ZScorePair
}

// Observe feeds one sample's z-score pair through the state machine. Call
// only once a baseline exists for the service (the worker computes
// latencyZ/payloadZ only after the baseline engine reports one).
func (m *Machine) Observe(pair store.ZScorePair) Result {
	previous := m.state

	maxZ := math.Max(math.Abs(pair.LatencyZ), math.Abs(pair.PayloadZ))

	if m.state == store.StateInsufficientData {
		// First sample with a baseline available: fires unconditionally,
		// no counters consulted (spec §4.4 rule 1).
		m.resetCounters()
		m.state = store.StateStable
		return Result{Transitioned: true, Previous: previous, New: m.state, Reason: store.Reason{Kind: store.ReasonBaselineReady}}
	}

	// Counter semantics, evaluated per sample in spec order.
	if maxZ > m.cfg.Zsev {
		m.consecutiveSevere++
	} else {
		m.consecutiveSevere = 0
	}

	m.pushRing(ringEntry{pair: pair, anomaly: maxZ > m.cfg.Zmod})

	if maxZ <= m.cfg.Znorm {
		m.consecutiveNormal++
	} else {
		m.consecutiveNormal = 0
	}

	switch m.state {
	case store.StateStable:
		if m.consecutiveSevere >= m.cfg.Ksev {
			triggers := m.ringPairs()
			reason := store.Reason{
				Kind:             store.ReasonConsecutiveSevere,
				ConsecutiveCount: m.consecutiveSevere,
				MaxZScore:        m.maxZInRun(),
			}
			m.resetCounters()
			m.state = store.StateDriftDetected
			return Result{Transitioned: true, Previous: previous, New: m.state, Reason: reason, TriggerZs: triggers}
		}
		if count := m.anomalyCount(); count >= m.cfg.Kmod {
			triggers := m.ringPairs()
			reason := store.Reason{
				Kind:        store.ReasonModerateDensity,
				WindowCount: count,
				WindowSize:  m.cfg.Wmod,
			}
			m.resetCounters()
			m.state = store.StateDriftDetected
			return Result{Transitioned: true, Previous: previous, New: m.state, Reason: reason, TriggerZs: triggers}
		}

	case store.StateDriftDetected:
		if m.consecutiveNormal >= m.cfg.Krec {
			triggers := m.ringPairs()
			reason := store.Reason{Kind: store.ReasonRecovery}
			m.resetCounters()
			m.state = store.StateStable
			return Result{Transitioned: true, Previous: previous, New: m.state, Reason: reason, TriggerZs: triggers}
		}
	}

	return Result{Transitioned: false, Previous: previous, New: m.state}
}

func (m *Machine) resetCounters() {
	m.consecutiveSevere = 0
	m.consecutiveNormal = 0
	m.ring = nil
}

func (m *Machine) pushRing(e ringEntry) {
	m.ring = append(m.ring, e)
	if len(m.ring) > m.cfg.Wmod {
		m.ring = m.ring[len(m.ring)-m.cfg.Wmod:]
	}
}

func (m *Machine) anomalyCount() int {
	n := 0
	for _, e := range m.ring {
		if e.anomaly {
			n++
		}
	}
	return n
}

func (m *Machine) ringPairs() []store.ZScorePair {
	out := make([]store.ZScorePair, len(m.ring))
	for i, e := range m.ring {
		out[i] = e.pair
	}
	return out
}

// maxZInRun returns the largest max(|z_lat|,|z_pay|) among the trailing
// ring entries that are part of the current consecutive-severe run. Since
// the ring only holds the last Wmod entries, this scans what's available.
func (m *Machine) maxZInRun() float64 {
	var max float64
	n := m.consecutiveSevere
	if n > len(m.ring) {
		n = len(m.ring)
	}
	for _, e := range m.ring[len(m.ring)-n:] {
		z := math.Max(math.Abs(e.pair.LatencyZ), math.Abs(e.pair.PayloadZ))
		if z > max {
			max = z
		}
	}
	return max
}
