package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Suvan8806/driftwatch/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "dw.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSweepPurgesAgedSamplesOnly(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	mustPersist := func(ts time.Time) {
		if err := st.PersistSample(ctx, store.Sample{ServiceID: "checkout", Timestamp: ts, LatencyMS: 100, IngestedAt: ts}, nil, nil, nil); err != nil {
			t.Fatalf("persist sample: %v", err)
		}
	}
	mustPersist(old)
	mustPersist(recent)

	cfg := Config{TelemetryRetention: 24 * time.Hour, DriftEventRetention: 90 * 24 * time.Hour, SweepInterval: time.Hour}
	sw := NewSweeper(cfg, st, nil)
	sw.now = func() time.Time { return time.Now() }
	sw.sweep(ctx)

	samples, err := st.RecentSamples(ctx, "checkout", 10)
	if err != nil {
		t.Fatalf("recent samples: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("samples after sweep = %d, want 1 (only the recent one survives)", len(samples))
	}
}

func TestSweepPurgesAgedDriftEventsOnly(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-100 * 24 * time.Hour)
	recent := time.Now()

	mustAppend := func(id string, ts time.Time) {
		if err := st.AppendDriftEvent(ctx, store.DriftEvent{ID: id, ServiceID: "checkout", DetectedAt: ts, PreviousState: store.StateStable, NewState: store.StateDriftDetected}); err != nil {
			t.Fatalf("append drift event: %v", err)
		}
	}
	mustAppend("old-1", old)
	mustAppend("recent-1", recent)

	cfg := Config{TelemetryRetention: 7 * 24 * time.Hour, DriftEventRetention: 90 * 24 * time.Hour, SweepInterval: time.Hour}
	sw := NewSweeper(cfg, st, nil)
	sw.sweep(ctx)

	events, err := st.RecentDriftEvents(ctx, "checkout", 10)
	if err != nil {
		t.Fatalf("recent drift events: %v", err)
	}
	if len(events) != 1 || events[0].ID != "recent-1" {
		t.Fatalf("events after sweep = %+v, want only recent-1", events)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st := openTestStore(t)
	cfg := Config{TelemetryRetention: time.Hour, DriftEventRetention: time.Hour, SweepInterval: time.Millisecond}
	sw := NewSweeper(cfg, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}
