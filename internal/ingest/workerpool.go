package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Suvan8806/driftwatch/internal/baseline"
	"github.com/Suvan8806/driftwatch/internal/detect"
	"github.com/Suvan8806/driftwatch/internal/store"
	"github.com/Suvan8806/driftwatch/internal/svccontext"
)

// EventSink receives drift events and health transitions as they happen, so
// internal/hub can fan them out to subscribers without ingest importing hub
// directly.
type EventSink interface {
	PublishDriftEvent(store.DriftEvent)
	PublishHealthState(store.HealthState)
}

// Metrics receives per-sample and per-transition counters, so
// internal/telemetry can expose them as Prometheus series without ingest
// importing telemetry directly.
type Metrics interface {
	ObserveSample(serviceID string, accepted bool)
	ObserveQueueDepth(depth int)
	ObserveTransition(previous, next store.State)
	ObserveDropped(serviceID string)
}

// sampleStore is the subset of *store.Store the worker pool needs: loading
// the recent-samples window for a baseline refresh, and persisting one
// sample's durable unit of work. Narrowed to an interface so tests can
// exercise the StoreTransient retry/rollback path with a fake that fails on
// demand, without touching the real SQLite store's internals.
type sampleStore interface {
	RecentSamples(ctx context.Context, serviceID string, limit int) ([]store.Sample, error)
	PersistSample(ctx context.Context, sample store.Sample, baseline *store.Baseline, health *store.HealthState, event *store.DriftEvent) error
}

// WorkerPool runs one goroutine per shard, each owning both a Queue shard
// and the matching svccontext.Registry shard, so samples for one service
// are processed in enqueue order by a single worker without a global lock
// (spec §4.5).
type WorkerPool struct {
	queue    *Queue
	registry *svccontext.Registry
	st       sampleStore
	baseCfg  baseline.Config
	now      func() time.Time
	newID    func() string

	// maxRetries and retryBaseDelay implement spec §7's StoreTransient
	// handling: PersistSample is retried locally up to maxRetries times with
	// exponential backoff before the sample is dropped.
	maxRetries     int
	retryBaseDelay time.Duration

	sink    EventSink
	metrics Metrics
	log     *slog.Logger

	wg sync.WaitGroup
}

// NewWorkerPool wires a WorkerPool. sink and metrics may be nil. maxRetries
// <= 0 and retryBaseDelay <= 0 fall back to spec §7's defaults (3 retries,
// 100ms base delay) the same way baseline/detect config zero-values do.
func NewWorkerPool(q *Queue, r *svccontext.Registry, st sampleStore, baseCfg baseline.Config, maxRetries int, retryBaseDelay time.Duration, sink EventSink, metrics Metrics, log *slog.Logger) *WorkerPool {
	if log == nil {
		log = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryBaseDelay <= 0 {
		retryBaseDelay = 100 * time.Millisecond
	}
	return &WorkerPool{
		queue:          q,
		registry:       r,
		st:             st,
		baseCfg:        baseCfg,
		now:            time.Now,
		newID:          uuid.NewString,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		sink:           sink,
		metrics:        metrics,
		log:            log,
	}
}

// Start launches one worker goroutine per shard. Workers exit once ctx is
// canceled and their shard channel has been drained, so a graceful shutdown
// never drops a sample that was already accepted onto the queue.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := range p.queue.shards {
		p.wg.Add(1)
		go p.runShard(ctx, p.queue.shards[i])
	}
}

// Wait blocks until every worker has drained its shard and returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) runShard(ctx context.Context, ch chan store.Sample) {
	defer p.wg.Done()
	// Samples are processed with a context that shutdown does not cancel, so
	// the store writes of drained samples still complete.
	procCtx := context.WithoutCancel(ctx)
	for {
		select {
		case sample, ok := <-ch:
			if !ok {
				return
			}
			p.process(procCtx, sample)
		case <-ctx.Done():
			// Drain whatever is already buffered before exiting, rather than
			// dropping samples the HTTP edge already accepted.
			for {
				select {
				case sample := <-ch:
					p.process(procCtx, sample)
				default:
					return
				}
			}
		}
	}
}

// process implements spec §4.5's per-sample worker step: acquire the
// service's context, append the sample, maybe refresh the baseline, score
// and feed the state machine, persist everything as one durable unit, and
// only then commit the in-memory snapshot.
func (p *WorkerPool) process(ctx context.Context, sample store.Sample) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic while processing sample, dropping", "service_id", sample.ServiceID, "panic", r)
		}
	}()

	if p.metrics != nil {
		p.metrics.ObserveQueueDepth(p.queue.Depth())
	}

	svcCtx, err := p.registry.Get(ctx, sample.ServiceID)
	if err != nil {
		p.log.Error("acquire service context", "service_id", sample.ServiceID, "error", err)
		return
	}

	svcCtx.Lock()
	defer svcCtx.Unlock()

	snap := svcCtx.Snapshot()
	snap.TotalSamples++
	snap.SamplesSince++

	var newBaseline *store.Baseline
	if p.baseCfg.ShouldRefresh(snap.TotalSamples, snap.SamplesSince, snap.Baseline != nil) {
		recent, err := p.st.RecentSamples(ctx, sample.ServiceID, p.baseCfg.WindowSize)
		if err != nil {
			p.log.Error("load recent samples for baseline refresh", "service_id", sample.ServiceID, "error", err)
		} else {
			// RecentSamples doesn't yet include this sample (it isn't
			// persisted until below), so prepend it for the refresh window.
			recent = append([]store.Sample{sample}, recent...)
			if b, ok := baseline.Compute(p.baseCfg, sample.ServiceID, recent, p.now()); ok {
				newBaseline = &b
				snap.Baseline = &b
				snap.SamplesSince = 0
			}
		}
	}

	// The state machine mutates in place (counters, ring, state) as soon as
	// Observe runs, ahead of the durable write below. Snapshot it first so a
	// StoreTransient failure can roll the machine back to exactly where it
	// was, keeping it in lockstep with Context's own snapshot/commit (spec
	// §4.4 Failure semantics, §5, §7).
	var machineSnap detect.MachineSnapshot
	var observed bool

	var event *store.DriftEvent
	if snap.Baseline != nil {
		lz, pz := detect.Score(sample, *snap.Baseline)
		pair := store.ZScorePair{Timestamp: sample.Timestamp, LatencyZ: lz, PayloadZ: pz}

		machineSnap = svcCtx.Machine.Snapshot()
		observed = true

		result := svcCtx.Machine.Observe(pair)
		if result.Transitioned {
			snap.Health = store.HealthState{
				ServiceID:           sample.ServiceID,
				State:               result.New,
				TransitionTimestamp: p.now(),
				SampleCount:         snap.TotalSamples,
				Metadata:            result.Reason,
			}
			event = &store.DriftEvent{
				ID:             p.newID(),
				ServiceID:      sample.ServiceID,
				DetectedAt:     p.now(),
				PreviousState:  result.Previous,
				NewState:       result.New,
				TriggerSamples: result.TriggerZs,
				Metadata:       result.Reason,
			}
		}
	}

	var healthArg *store.HealthState
	if event != nil {
		healthArg = &snap.Health
	}

	if err := p.persistWithRetry(ctx, sample, newBaseline, healthArg, event); err != nil {
		p.log.Error("persist sample exhausted retries, dropping", "service_id", sample.ServiceID, "error", err)
		if observed {
			svcCtx.Machine.Restore(machineSnap)
		}
		if p.metrics != nil {
			p.metrics.ObserveDropped(sample.ServiceID)
		}
		return
	}

	svcCtx.Commit(snap)

	if p.metrics != nil {
		p.metrics.ObserveSample(sample.ServiceID, true)
	}
	if event != nil {
		if p.metrics != nil {
			p.metrics.ObserveTransition(event.PreviousState, event.NewState)
		}
		if p.sink != nil {
			p.sink.PublishHealthState(snap.Health)
			p.sink.PublishDriftEvent(*event)
		}
	}
}

// persistWithRetry attempts PersistSample up to p.maxRetries additional
// times with exponential backoff, following the teacher's notify.go
// sendWithRetry shape (attempt loop, select on ctx.Done() to abort early).
// Returns the last error once retries are exhausted, which process treats as
// a dropped sample.
func (p *WorkerPool) persistWithRetry(ctx context.Context, sample store.Sample, newBaseline *store.Baseline, health *store.HealthState, event *store.DriftEvent) error {
	delay := p.retryBaseDelay
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		err = p.st.PersistSample(ctx, sample, newBaseline, health, event)
		if err == nil {
			return nil
		}
		if attempt == p.maxRetries {
			break
		}
		p.log.Warn("persist sample failed, retrying", "service_id", sample.ServiceID, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
