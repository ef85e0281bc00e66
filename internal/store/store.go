// Package store persists samples, baselines, health states, and drift
// events in an embedded SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// currentSchemaVersion is incremented when the schema changes in a way that
// requires data migration (not just adding columns/indices).
const currentSchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	service_id  TEXT    NOT NULL,
	timestamp   INTEGER NOT NULL,
	latency_ms  REAL    NOT NULL CHECK(latency_ms >= 0),
	payload_kb  REAL    NOT NULL CHECK(payload_kb >= 0),
	ingested_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_svc_ts ON samples(service_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_samples_ingested ON samples(ingested_at);

CREATE TABLE IF NOT EXISTS baselines (
	service_id     TEXT    PRIMARY KEY,
	sample_count   INTEGER NOT NULL CHECK(sample_count > 0),
	mean_latency   REAL    NOT NULL,
	stddev_latency REAL    NOT NULL,
	mean_payload   REAL    NOT NULL,
	stddev_payload REAL    NOT NULL,
	percentiles_computed INTEGER NOT NULL DEFAULT 0,
	p50_latency    REAL    NOT NULL DEFAULT 0,
	p95_latency    REAL    NOT NULL DEFAULT 0,
	p99_latency    REAL    NOT NULL DEFAULT 0,
	last_updated   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS health_states (
	service_id           TEXT    PRIMARY KEY,
	state                TEXT    NOT NULL CHECK(state IN ('INSUFFICIENT_DATA','STABLE','DRIFT_DETECTED')),
	transition_timestamp INTEGER NOT NULL,
	sample_count         INTEGER NOT NULL DEFAULT 0,
	metadata             TEXT    NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS drift_events (
	id              TEXT    PRIMARY KEY,
	service_id      TEXT    NOT NULL,
	detected_at     INTEGER NOT NULL,
	previous_state  TEXT    NOT NULL,
	new_state       TEXT    NOT NULL,
	trigger_samples TEXT    NOT NULL DEFAULT '[]',
	metadata        TEXT    NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_drift_events_svc_time ON drift_events(service_id, detected_at DESC);
`

// Store manages SQLite persistence for DriftWatch's domain state.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a SQLite database at path with WAL mode and a
// single writer connection, following the teacher's single-writer model.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA cache_size = -2000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set cache_size: %w", err)
	}
	if _, err := db.Exec("PRAGMA auto_vacuum = 2"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set auto_vacuum: %w", err)
	}

	s := &Store{db: db, path: path}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		slog.Warn("failed to set database file permissions", "error", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate handles schema migrations using PRAGMA user_version for tracking.
// DriftWatch ships at schema version 1, so this is currently a no-op ladder
// kept for the same reason the teacher keeps one: the next incompatible
// change has somewhere to attach its migration step.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Path returns the database file path, used for on-disk size reporting.
func (s *Store) Path() string {
	return s.path
}
