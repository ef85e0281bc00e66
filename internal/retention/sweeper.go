// Package retention runs the background purge sweeps of spec §4.6:
// telemetry samples and drift events age out on independent windows, on
// their own ticker so purges run independently of the worker loop (they
// still share the store's single connection with the workers).
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/Suvan8806/driftwatch/internal/store"
)

// Config names spec §4.6's two retention windows.
type Config struct {
	TelemetryRetention  time.Duration
	DriftEventRetention time.Duration
	SweepInterval       time.Duration
}

// DefaultConfig returns spec §4.6's defaults.
func DefaultConfig() Config {
	return Config{
		TelemetryRetention:  7 * 24 * time.Hour,
		DriftEventRetention: 90 * 24 * time.Hour,
		SweepInterval:       1 * time.Hour,
	}
}

// Sweeper periodically purges aged-out samples and drift events.
type Sweeper struct {
	cfg   Config
	store *store.Store
	now   func() time.Time
	log   *slog.Logger
}

// NewSweeper creates a Sweeper. log may be nil.
func NewSweeper(cfg Config, st *store.Store, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{cfg: cfg, store: st, now: time.Now, log: log}
}

// Run sweeps immediately, then on cfg.SweepInterval, until ctx is canceled.
// Grounded on agent.go's Run ticker/select loop.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := s.now()

	if n, err := s.store.Purge(ctx, now.Add(-s.cfg.TelemetryRetention)); err != nil {
		s.log.Error("purge samples failed", "error", err)
	} else if n > 0 {
		s.log.Info("purged aged-out samples", "count", n, "retention", s.cfg.TelemetryRetention)
	}

	if n, err := s.store.PurgeDriftEvents(ctx, now.Add(-s.cfg.DriftEventRetention)); err != nil {
		s.log.Error("purge drift events failed", "error", err)
	} else if n > 0 {
		s.log.Info("purged aged-out drift events", "count", n, "retention", s.cfg.DriftEventRetention)
	}
}
