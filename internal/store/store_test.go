package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driftwatch.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPersistSampleAndRecentSamples(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	sample := Sample{
		ServiceID:  "checkout",
		Timestamp:  now,
		LatencyMS:  120,
		PayloadKB:  2.5,
		IngestedAt: now,
	}

	if err := s.PersistSample(ctx, sample, nil, nil, nil); err != nil {
		t.Fatalf("persist sample: %v", err)
	}

	got, err := s.RecentSamples(ctx, "checkout", 1)
	if err != nil {
		t.Fatalf("recent samples: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 sample, got %d", len(got))
	}
	if got[0].LatencyMS != 120 || got[0].PayloadKB != 2.5 {
		t.Errorf("sample = %+v, want latency 120 payload 2.5", got[0])
	}
	if !got[0].Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, now)
	}
}

func TestRecentSamplesOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		sample := Sample{ServiceID: "svc", Timestamp: ts, LatencyMS: float64(i), PayloadKB: 1, IngestedAt: ts}
		if err := s.PersistSample(ctx, sample, nil, nil, nil); err != nil {
			t.Fatalf("persist sample %d: %v", i, err)
		}
	}

	got, err := s.RecentSamples(ctx, "svc", 3)
	if err != nil {
		t.Fatalf("recent samples: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 samples, got %d", len(got))
	}
	// Newest-first: latency 4, 3, 2.
	want := []float64{4, 3, 2}
	for i, w := range want {
		if got[i].LatencyMS != w {
			t.Errorf("sample[%d].LatencyMS = %v, want %v", i, got[i].LatencyMS, w)
		}
	}
}

func TestGetBaselineNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.GetBaseline(ctx, "missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertBaselineRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := Baseline{
		ServiceID:     "checkout",
		SampleCount:   100,
		MeanLatency:   150,
		StddevLatency: 25,
		MeanPayload:   2.5,
		StddevPayload: 0.75,
		LastUpdated:   time.Now().Truncate(time.Millisecond),
	}
	if err := s.UpsertBaseline(ctx, b); err != nil {
		t.Fatalf("upsert baseline: %v", err)
	}

	got, err := s.GetBaseline(ctx, "checkout")
	if err != nil {
		t.Fatalf("get baseline: %v", err)
	}
	if got.SampleCount != 100 || got.MeanLatency != 150 {
		t.Errorf("baseline = %+v", got)
	}

	// Upsert replaces atomically.
	b.SampleCount = 150
	if err := s.UpsertBaseline(ctx, b); err != nil {
		t.Fatalf("re-upsert baseline: %v", err)
	}
	got, err = s.GetBaseline(ctx, "checkout")
	if err != nil {
		t.Fatalf("get baseline after update: %v", err)
	}
	if got.SampleCount != 150 {
		t.Errorf("sample_count = %d, want 150", got.SampleCount)
	}
}

func TestUpsertHealthRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	h := HealthState{
		ServiceID:           "checkout",
		State:               StateStable,
		TransitionTimestamp: time.Now().Truncate(time.Millisecond),
		SampleCount:         100,
		Metadata:            Reason{Kind: ReasonBaselineReady},
	}
	if err := s.UpsertHealth(ctx, h); err != nil {
		t.Fatalf("upsert health: %v", err)
	}

	got, err := s.GetHealth(ctx, "checkout")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	if got.State != StateStable {
		t.Errorf("state = %v, want STABLE", got.State)
	}
	if got.Metadata.Kind != ReasonBaselineReady {
		t.Errorf("metadata.Kind = %v, want %v", got.Metadata.Kind, ReasonBaselineReady)
	}
}

func TestAppendAndRecentDriftEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := DriftEvent{
		ID:            "ev-1",
		ServiceID:     "checkout",
		DetectedAt:    time.Now().Truncate(time.Millisecond),
		PreviousState: StateStable,
		NewState:      StateDriftDetected,
		TriggerSamples: []ZScorePair{
			{Timestamp: time.Now(), LatencyZ: 16, PayloadZ: 0.1},
		},
		Metadata: Reason{Kind: ReasonConsecutiveSevere, ConsecutiveCount: 5, MaxZScore: 16},
	}
	if err := s.AppendDriftEvent(ctx, ev); err != nil {
		t.Fatalf("append drift event: %v", err)
	}

	got, err := s.RecentDriftEvents(ctx, "checkout", 10)
	if err != nil {
		t.Fatalf("recent drift events: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 event, got %d", len(got))
	}
	if got[0].Metadata.Kind != ReasonConsecutiveSevere || got[0].Metadata.MaxZScore != 16 {
		t.Errorf("metadata = %+v", got[0].Metadata)
	}
	if len(got[0].TriggerSamples) != 1 {
		t.Errorf("trigger samples = %d, want 1", len(got[0].TriggerSamples))
	}
}

func TestPersistSampleAtomicGroup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	sample := Sample{ServiceID: "checkout", Timestamp: now, LatencyMS: 550, PayloadKB: 2.5, IngestedAt: now}
	baseline := &Baseline{ServiceID: "checkout", SampleCount: 105, MeanLatency: 150, StddevLatency: 25,
		MeanPayload: 2.5, StddevPayload: 0.75, LastUpdated: now}
	health := &HealthState{ServiceID: "checkout", State: StateDriftDetected, TransitionTimestamp: now, SampleCount: 105,
		Metadata: Reason{Kind: ReasonConsecutiveSevere, ConsecutiveCount: 5, MaxZScore: 16}}
	event := &DriftEvent{ID: "ev-2", ServiceID: "checkout", DetectedAt: now, PreviousState: StateStable,
		NewState: StateDriftDetected, Metadata: health.Metadata}

	if err := s.PersistSample(ctx, sample, baseline, health, event); err != nil {
		t.Fatalf("persist sample group: %v", err)
	}

	if gotHealth, err := s.GetHealth(ctx, "checkout"); err != nil || gotHealth.State != StateDriftDetected {
		t.Errorf("health = %+v, err = %v", gotHealth, err)
	}
	if gotBaseline, err := s.GetBaseline(ctx, "checkout"); err != nil || gotBaseline.SampleCount != 105 {
		t.Errorf("baseline = %+v, err = %v", gotBaseline, err)
	}
	events, err := s.RecentDriftEvents(ctx, "checkout", 10)
	if err != nil || len(events) != 1 {
		t.Errorf("events = %+v, err = %v", events, err)
	}
}

func TestPurgeKeepsBaselinesAndHealth(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	sample := Sample{ServiceID: "checkout", Timestamp: old, LatencyMS: 100, PayloadKB: 1, IngestedAt: old}
	if err := s.PersistSample(ctx, sample, nil, nil, nil); err != nil {
		t.Fatalf("persist old sample: %v", err)
	}
	if err := s.UpsertBaseline(ctx, Baseline{ServiceID: "checkout", SampleCount: 100, LastUpdated: old}); err != nil {
		t.Fatalf("upsert baseline: %v", err)
	}
	if err := s.UpsertHealth(ctx, HealthState{ServiceID: "checkout", State: StateStable, TransitionTimestamp: old}); err != nil {
		t.Fatalf("upsert health: %v", err)
	}

	n, err := s.Purge(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}

	samples, err := s.RecentSamples(ctx, "checkout", 10)
	if err != nil {
		t.Fatalf("recent samples after purge: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples after purge = %d, want 0", len(samples))
	}

	if _, err := s.GetBaseline(ctx, "checkout"); err != nil {
		t.Errorf("baseline should survive purge, got err %v", err)
	}
	if _, err := s.GetHealth(ctx, "checkout"); err != nil {
		t.Errorf("health state should survive purge, got err %v", err)
	}
}

func TestSystemStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for _, svc := range []string{"a", "b"} {
		sample := Sample{ServiceID: svc, Timestamp: now, LatencyMS: 1, PayloadKB: 1, IngestedAt: now}
		if err := s.PersistSample(ctx, sample, nil, nil, nil); err != nil {
			t.Fatalf("persist sample: %v", err)
		}
		if err := s.UpsertHealth(ctx, HealthState{ServiceID: svc, State: StateStable, TransitionTimestamp: now}); err != nil {
			t.Fatalf("upsert health: %v", err)
		}
	}

	stats, err := s.SystemStats(ctx)
	if err != nil {
		t.Fatalf("system stats: %v", err)
	}
	if stats.ServiceCount != 2 {
		t.Errorf("service_count = %d, want 2", stats.ServiceCount)
	}
	if stats.TotalSamples != 2 {
		t.Errorf("total_samples = %d, want 2", stats.TotalSamples)
	}
	if stats.BytesOnDisk <= 0 {
		t.Errorf("bytes_on_disk = %d, want > 0", stats.BytesOnDisk)
	}
}
