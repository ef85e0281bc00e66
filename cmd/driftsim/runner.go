package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// ingestRequest mirrors internal/api's request body. Duplicated rather than
// imported since driftsim is a standalone CLI that should only depend on the
// HTTP contract, not the server's internal package.
type ingestRequest struct {
	ServiceID string  `json:"service_id"`
	LatencyMS float64 `json:"latency_ms"`
	PayloadKB float64 `json:"payload_kb"`
}

// Runner posts a Scenario's synthetic samples to a live driftwatchd instance.
type Runner struct {
	client *http.Client
	target string
	log    *slog.Logger
}

// NewRunner builds a Runner posting to target, the full ingest URL
// ("http://host:port/v1/ingest").
func NewRunner(target string, log *slog.Logger) *Runner {
	return &Runner{
		client: &http.Client{Timeout: 5 * time.Second},
		target: target,
		log:    log,
	}
}

// Result summarizes one service's run.
type Result struct {
	ServiceID string
	Sent      int
	Accepted  int
	Rejected  int
	Failed    int
}

// Run drives every service in the scenario concurrently, one goroutine per
// service so each keeps its own rate and ordering, and returns per-service
// results once all have completed or ctx is canceled.
func (r *Runner) Run(ctx context.Context, sc *Scenario) []Result {
	results := make([]Result, len(sc.Services))
	var wg sync.WaitGroup
	for i, svc := range sc.Services {
		i, svc := i, svc
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.runService(ctx, svc)
		}()
	}
	wg.Wait()
	return results
}

func (r *Runner) runService(ctx context.Context, svc ServiceTraffic) Result {
	res := Result{ServiceID: svc.ServiceID}
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(len(svc.ServiceID))))
	interval := svc.interval()

	for n := 0; n < svc.SampleCount; n++ {
		select {
		case <-ctx.Done():
			return res
		default:
		}

		latencyMS, payloadKB := svc.sample(rng, n)
		status, err := r.post(ctx, svc.ServiceID, latencyMS, payloadKB)
		res.Sent++
		switch {
		case err != nil:
			res.Failed++
			r.log.Warn("post failed", "service_id", svc.ServiceID, "error", err)
		case status == http.StatusAccepted:
			res.Accepted++
		case status == http.StatusServiceUnavailable:
			res.Rejected++
		default:
			res.Failed++
			r.log.Warn("unexpected status", "service_id", svc.ServiceID, "status", status)
		}

		if interval > 0 && n < svc.SampleCount-1 {
			select {
			case <-ctx.Done():
				return res
			case <-time.After(interval):
			}
		}
	}
	return res
}

func (r *Runner) post(ctx context.Context, serviceID string, latencyMS, payloadKB float64) (int, error) {
	body, err := json.Marshal(ingestRequest{ServiceID: serviceID, LatencyMS: latencyMS, PayloadKB: payloadKB})
	if err != nil {
		return 0, fmt.Errorf("marshal sample: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.target, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
