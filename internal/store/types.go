package store

import "time"

// State is one of the three health states a service can be in.
type State string

const (
	StateInsufficientData State = "INSUFFICIENT_DATA"
	StateStable           State = "STABLE"
	StateDriftDetected    State = "DRIFT_DETECTED"
)

// Sample is one ingested telemetry point for a service. Immutable after append.
type Sample struct {
	ServiceID  string
	Timestamp  time.Time
	LatencyMS  float64
	PayloadKB  float64
	IngestedAt time.Time
}

// Baseline holds the cached rolling statistics for a service.
type Baseline struct {
	ServiceID     string
	SampleCount   int
	MeanLatency   float64
	StddevLatency float64
	MeanPayload   float64
	StddevPayload float64

	// Percentiles are optional (see internal/baseline); zero values mean
	// "not computed", distinguished by PercentilesComputed.
	PercentilesComputed bool
	P50Latency          float64
	P95Latency          float64
	P99Latency          float64

	LastUpdated time.Time
}

// ReasonKind names the fixed set of drift-event / health-transition reasons.
type ReasonKind string

const (
	ReasonBaselineReady      ReasonKind = "baseline_ready"
	ReasonConsecutiveSevere  ReasonKind = "consecutive_severe_anomalies"
	ReasonModerateDensity    ReasonKind = "moderate_anomaly_density"
	ReasonRecovery           ReasonKind = "recovery"
)

// Reason is the typed sum described in spec design notes: a fixed variant
// tag plus whichever numeric fields that variant carries. It doubles as the
// JSON wire/storage form.
type Reason struct {
	Kind ReasonKind `json:"kind"`

	// Rule A (consecutive_severe_anomalies).
	ConsecutiveCount int     `json:"consecutive_count,omitempty"`
	MaxZScore        float64 `json:"max_zscore,omitempty"`

	// Rule B (moderate_anomaly_density).
	WindowCount int `json:"window_count,omitempty"`
	WindowSize  int `json:"window_size,omitempty"`
}

// HealthState is the single current state row for a service.
type HealthState struct {
	ServiceID           string
	State               State
	TransitionTimestamp time.Time
	SampleCount         int
	Metadata            Reason
}

// ZScorePair is one (latency, payload) z-score observation, used as the
// trailing window carried on a DriftEvent for audit purposes.
type ZScorePair struct {
	Timestamp time.Time
	LatencyZ  float64
	PayloadZ  float64
}

// DriftEvent is an append-only audit record created on every state transition.
type DriftEvent struct {
	ID             string
	ServiceID      string
	DetectedAt     time.Time
	PreviousState  State
	NewState       State
	TriggerSamples []ZScorePair
	Metadata       Reason
}

// SystemStats summarizes process-wide store state for the status endpoint.
type SystemStats struct {
	ServiceCount    int
	TotalSamples    int64
	BytesOnDisk     int64
}
