package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Suvan8806/driftwatch/internal/api"
	"github.com/Suvan8806/driftwatch/internal/baseline"
	"github.com/Suvan8806/driftwatch/internal/config"
	"github.com/Suvan8806/driftwatch/internal/detect"
	"github.com/Suvan8806/driftwatch/internal/hub"
	"github.com/Suvan8806/driftwatch/internal/ingest"
	"github.com/Suvan8806/driftwatch/internal/retention"
	"github.com/Suvan8806/driftwatch/internal/store"
	"github.com/Suvan8806/driftwatch/internal/svccontext"
	"github.com/Suvan8806/driftwatch/internal/telemetry"
)

// Application composes every process-wide component into one value, per
// spec §9's "do not reach for ambient globals": a single place that owns
// the Store, worker pool, sweeper, and HTTP servers, with an explicit
// init -> running -> draining -> stopped lifecycle (spec §5).
type Application struct {
	cfg *config.Config

	store    *store.Store
	registry *svccontext.Registry
	queue    *ingest.Queue
	pool     *ingest.WorkerPool
	sweeper  *retention.Sweeper
	hub      *hub.Hub
	metrics  *telemetry.Metrics
	server   *api.Server
}

// NewApplication wires an Application from cfg. Grounded on agent.New's
// construct-every-component-then-wire-callbacks shape.
func NewApplication(cfg *config.Config) (*Application, error) {
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	thresholds := detect.Thresholds{
		Zsev: cfg.Detect.Zsev, Ksev: cfg.Detect.Ksev,
		Zmod: cfg.Detect.Zmod, Wmod: cfg.Detect.Wmod, Kmod: cfg.Detect.Kmod,
		Znorm: cfg.Detect.Znorm, Krec: cfg.Detect.Krec,
	}
	registry := svccontext.NewRegistry(st, thresholds)

	baseCfg := baseline.Config{
		MinSamplesForBaseline: cfg.Baseline.MinSamplesForBaseline,
		WindowSize:            cfg.Baseline.WindowSize,
		RefreshEvery:          cfg.Baseline.RefreshEvery,
		ComputePercentiles:    cfg.Baseline.ComputePercentiles,
	}

	h := hub.New()
	metrics := telemetry.New()
	queue := ingest.NewQueue(cfg.Ingest.QueueCapacity)
	pool := ingest.NewWorkerPool(queue, registry, st, baseCfg,
		cfg.Ingest.MaxRetries, cfg.Ingest.RetryBaseDelay.Duration, h, metrics, slog.Default())

	sweeper := retention.NewSweeper(retention.Config{
		TelemetryRetention:  cfg.Retention.TelemetryRetention.Duration,
		DriftEventRetention: cfg.Retention.DriftEventRetention.Duration,
		SweepInterval:       cfg.Retention.SweepInterval.Duration,
	}, st, slog.Default())

	srv := api.NewServer(api.Config{
		ListenAddr:      cfg.HTTP.ListenAddr,
		RateLimitPerSec: cfg.HTTP.RateLimitPerSec,
		RateLimitBurst:  cfg.HTTP.RateLimitBurst,
	}, queue, registry, st, h, metrics)

	return &Application{
		cfg:      cfg,
		store:    st,
		registry: registry,
		queue:    queue,
		pool:     pool,
		sweeper:  sweeper,
		hub:      h,
		metrics:  metrics,
		server:   srv,
	}, nil
}

// Run starts every component and blocks until ctx is canceled, then drains
// within cfg.HTTP.DrainTimeout before returning. Grounded on agent.go's
// Run/shutdown pair, generalized to errgroup since DriftWatch has more than
// one long-running goroutine (worker pool, sweeper, HTTP server).
func (a *Application) Run(ctx context.Context) error {
	slog.Info("driftwatchd starting",
		"db", a.cfg.Storage.Path,
		"listen_addr", a.cfg.HTTP.ListenAddr,
		"nworkers", a.cfg.Ingest.Nworkers,
		"queue_capacity", a.cfg.Ingest.QueueCapacity,
	)

	poolCtx, cancelPool := context.WithCancel(context.Background())
	a.pool.Start(poolCtx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.sweeper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !isServerClosed(err) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown(cancelPool)
	})

	return g.Wait()
}

// shutdown stops accepting new work, drains the worker pool up to
// DrainTimeout, then closes the store. Ordering follows agent.go's
// shutdown(): edge first, workers drained, store last.
func (a *Application) shutdown(cancelPool context.CancelFunc) error {
	slog.Info("driftwatchd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.DrainTimeout.Duration)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown", "error", err)
	}

	drained := make(chan struct{})
	go func() {
		a.pool.Wait()
		close(drained)
	}()

	cancelPool()
	select {
	case <-drained:
	case <-time.After(a.cfg.HTTP.DrainTimeout.Duration):
		slog.Warn("worker pool did not drain before deadline")
	}

	if err := a.store.Close(); err != nil {
		slog.Error("close store", "error", err)
	}

	slog.Info("driftwatchd stopped")
	return nil
}

// Reload re-reads the config file at path and replaces the Detect and
// Retention sections of a.cfg. The registry's thresholds and the sweeper's
// retention windows were copied when NewApplication built them, so a reload
// does not change the thresholds used for detection or the windows the
// sweeper purges with. Queue capacity is fixed at construction as well.
func (a *Application) Reload(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	a.cfg.Detect = cfg.Detect
	a.cfg.Retention = cfg.Retention
	slog.Info("config reloaded", "path", path)
	return nil
}

func isServerClosed(err error) bool {
	return err.Error() == "http: Server closed"
}
