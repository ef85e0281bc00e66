package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNotFound is returned by Get* lookups when no row exists for the key.
var ErrNotFound = errors.New("store: not found")

// PersistSample writes a sample and, when present, an updated baseline,
// health state, and drift event inside a single transaction so the whole
// group is observable as a unit — satisfying spec §4.1's atomicity
// guarantee for per-sample writes.
func (s *Store) PersistSample(ctx context.Context, sample Sample, baseline *Baseline, health *HealthState, event *DriftEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO samples (service_id, timestamp, latency_ms, payload_kb, ingested_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sample.ServiceID, sample.Timestamp.UnixMilli(), sample.LatencyMS, sample.PayloadKB, sample.IngestedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	if baseline != nil {
		if err := upsertBaselineTx(ctx, tx, *baseline); err != nil {
			return err
		}
	}
	if health != nil {
		if err := upsertHealthTx(ctx, tx, *health); err != nil {
			return err
		}
	}
	if event != nil {
		if err := appendDriftEventTx(ctx, tx, *event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RecentSamples returns up to limit samples for a service, newest-first.
func (s *Store) RecentSamples(ctx context.Context, serviceID string, limit int) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT service_id, timestamp, latency_ms, payload_kb, ingested_at
		 FROM samples WHERE service_id = ? ORDER BY timestamp DESC LIMIT ?`,
		serviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var sm Sample
		var ts, ingestedAt int64
		if err := rows.Scan(&sm.ServiceID, &ts, &sm.LatencyMS, &sm.PayloadKB, &ingestedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sm.Timestamp = time.UnixMilli(ts)
		sm.IngestedAt = time.UnixMilli(ingestedAt)
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

// GetBaseline returns the current baseline for a service, or ErrNotFound.
func (s *Store) GetBaseline(ctx context.Context, serviceID string) (*Baseline, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT service_id, sample_count, mean_latency, stddev_latency, mean_payload, stddev_payload,
		        percentiles_computed, p50_latency, p95_latency, p99_latency, last_updated
		 FROM baselines WHERE service_id = ?`, serviceID)

	var b Baseline
	var lastUpdated int64
	var percentilesComputed int
	if err := row.Scan(&b.ServiceID, &b.SampleCount, &b.MeanLatency, &b.StddevLatency, &b.MeanPayload,
		&b.StddevPayload, &percentilesComputed, &b.P50Latency, &b.P95Latency, &b.P99Latency, &lastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan baseline: %w", err)
	}
	b.PercentilesComputed = percentilesComputed != 0
	b.LastUpdated = time.UnixMilli(lastUpdated)
	return &b, nil
}

// UpsertBaseline atomically replaces the baseline row for a service.
func (s *Store) UpsertBaseline(ctx context.Context, b Baseline) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := upsertBaselineTx(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertBaselineTx(ctx context.Context, tx *sql.Tx, b Baseline) error {
	percentilesComputed := 0
	if b.PercentilesComputed {
		percentilesComputed = 1
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO baselines (service_id, sample_count, mean_latency, stddev_latency, mean_payload,
		        stddev_payload, percentiles_computed, p50_latency, p95_latency, p99_latency, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(service_id) DO UPDATE SET
		   sample_count = excluded.sample_count,
		   mean_latency = excluded.mean_latency,
		   stddev_latency = excluded.stddev_latency,
		   mean_payload = excluded.mean_payload,
		   stddev_payload = excluded.stddev_payload,
		   percentiles_computed = excluded.percentiles_computed,
		   p50_latency = excluded.p50_latency,
		   p95_latency = excluded.p95_latency,
		   p99_latency = excluded.p99_latency,
		   last_updated = excluded.last_updated`,
		b.ServiceID, b.SampleCount, b.MeanLatency, b.StddevLatency, b.MeanPayload, b.StddevPayload,
		percentilesComputed, b.P50Latency, b.P95Latency, b.P99Latency, b.LastUpdated.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

// GetHealth returns the current health state for a service, or ErrNotFound.
func (s *Store) GetHealth(ctx context.Context, serviceID string) (*HealthState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT service_id, state, transition_timestamp, sample_count, metadata
		 FROM health_states WHERE service_id = ?`, serviceID)

	var h HealthState
	var transitionTS int64
	var metaJSON string
	if err := row.Scan(&h.ServiceID, &h.State, &transitionTS, &h.SampleCount, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan health state: %w", err)
	}
	h.TransitionTimestamp = time.UnixMilli(transitionTS)
	if err := json.Unmarshal([]byte(metaJSON), &h.Metadata); err != nil {
		return nil, fmt.Errorf("decode health metadata: %w", err)
	}
	return &h, nil
}

// UpsertHealth atomically replaces the health state row for a service.
func (s *Store) UpsertHealth(ctx context.Context, h HealthState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := upsertHealthTx(ctx, tx, h); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertHealthTx(ctx context.Context, tx *sql.Tx, h HealthState) error {
	metaJSON, err := json.Marshal(h.Metadata)
	if err != nil {
		return fmt.Errorf("encode health metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO health_states (service_id, state, transition_timestamp, sample_count, metadata)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(service_id) DO UPDATE SET
		   state = excluded.state,
		   transition_timestamp = excluded.transition_timestamp,
		   sample_count = excluded.sample_count,
		   metadata = excluded.metadata`,
		h.ServiceID, string(h.State), h.TransitionTimestamp.UnixMilli(), h.SampleCount, string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert health state: %w", err)
	}
	return nil
}

// AppendDriftEvent writes a new append-only drift event row.
func (s *Store) AppendDriftEvent(ctx context.Context, e DriftEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := appendDriftEventTx(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func appendDriftEventTx(ctx context.Context, tx *sql.Tx, e DriftEvent) error {
	triggerJSON, err := json.Marshal(e.TriggerSamples)
	if err != nil {
		return fmt.Errorf("encode trigger samples: %w", err)
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode drift event metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO drift_events (id, service_id, detected_at, previous_state, new_state, trigger_samples, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ServiceID, e.DetectedAt.UnixMilli(), string(e.PreviousState), string(e.NewState),
		string(triggerJSON), string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("insert drift event: %w", err)
	}
	return nil
}

// RecentDriftEvents returns up to limit drift events for a service, newest-first.
func (s *Store) RecentDriftEvents(ctx context.Context, serviceID string, limit int) ([]DriftEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, service_id, detected_at, previous_state, new_state, trigger_samples, metadata
		 FROM drift_events WHERE service_id = ? ORDER BY detected_at DESC LIMIT ?`,
		serviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query drift events: %w", err)
	}
	defer rows.Close()

	var out []DriftEvent
	for rows.Next() {
		var e DriftEvent
		var detectedAt int64
		var triggerJSON, metaJSON string
		if err := rows.Scan(&e.ID, &e.ServiceID, &detectedAt, &e.PreviousState, &e.NewState, &triggerJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan drift event: %w", err)
		}
		e.DetectedAt = time.UnixMilli(detectedAt)
		if err := json.Unmarshal([]byte(triggerJSON), &e.TriggerSamples); err != nil {
			return nil, fmt.Errorf("decode trigger samples: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode drift event metadata: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drift events: %w", err)
	}
	return out, nil
}

// Purge removes samples ingested before cutoff. Baselines, health states,
// and drift events are preserved per their own retention policies.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE ingested_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge samples: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeDriftEvents removes drift events detected before cutoff, on the
// separate (longer) DRIFT_EVENTS_RETENTION window.
func (s *Store) PurgeDriftEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drift_events WHERE detected_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge drift events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SystemStats reports process-wide totals for the status endpoint.
func (s *Store) SystemStats(ctx context.Context) (SystemStats, error) {
	var stats SystemStats

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT service_id) FROM health_states`).Scan(&stats.ServiceCount); err != nil {
		return SystemStats{}, fmt.Errorf("count services: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples`).Scan(&stats.TotalSamples); err != nil {
		return SystemStats{}, fmt.Errorf("count samples: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.BytesOnDisk = info.Size()
	}

	return stats, nil
}
