// Package baseline computes rolling per-service statistics from a window of
// recent samples.
package baseline

import (
	"math"
	"sort"
	"time"

	"github.com/Suvan8806/driftwatch/internal/store"
)

// Config controls window sizing and refresh cadence. Mirrors spec §4.2's
// named constants so they can be wired from internal/config.
type Config struct {
	MinSamplesForBaseline int
	WindowSize            int
	RefreshEvery          int
	ComputePercentiles    bool
}

// DefaultConfig returns spec §4.2's defaults.
func DefaultConfig() Config {
	return Config{
		MinSamplesForBaseline: 100,
		WindowSize:            1000,
		RefreshEvery:          50,
		ComputePercentiles:    true,
	}
}

// ShouldRefresh reports whether a baseline recompute is due: either the
// service just crossed MinSamplesForBaseline for the first time, or
// RefreshEvery additional samples have landed since the last refresh.
func (c Config) ShouldRefresh(totalSamples, samplesSinceRefresh int, hasBaseline bool) bool {
	if !hasBaseline {
		return totalSamples >= c.MinSamplesForBaseline
	}
	return samplesSinceRefresh >= c.RefreshEvery
}

// Compute derives a Baseline from a window of samples, newest-first (the
// order store.RecentSamples returns). Samples beyond WindowSize are ignored.
// Returns false if fewer than MinSamplesForBaseline samples are available.
func Compute(cfg Config, serviceID string, samples []store.Sample, now time.Time) (store.Baseline, bool) {
	if len(samples) > cfg.WindowSize {
		samples = samples[:cfg.WindowSize]
	}
	if len(samples) < cfg.MinSamplesForBaseline {
		return store.Baseline{}, false
	}

	latencies := make([]float64, len(samples))
	payloads := make([]float64, len(samples))
	for i, s := range samples {
		latencies[i] = s.LatencyMS
		payloads[i] = s.PayloadKB
	}

	meanLat, stddevLat := meanStddev(latencies)
	meanPay, stddevPay := meanStddev(payloads)

	b := store.Baseline{
		ServiceID:     serviceID,
		SampleCount:   len(samples),
		MeanLatency:   meanLat,
		StddevLatency: stddevLat,
		MeanPayload:   meanPay,
		StddevPayload: stddevPay,
		LastUpdated:   now,
	}

	if cfg.ComputePercentiles {
		b.PercentilesComputed = true
		b.P50Latency = percentile(latencies, 0.50)
		b.P95Latency = percentile(latencies, 0.95)
		b.P99Latency = percentile(latencies, 0.99)
	}

	return b, true
}

// meanStddev computes the arithmetic mean and sample standard deviation
// (N-1 divisor) of vals. stddev is 0 for N < 2, matching spec §4.2's
// degenerate-series allowance.
func meanStddev(vals []float64) (mean, stddev float64) {
	n := len(vals)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(n)

	if n < 2 {
		return mean, 0
	}
	var sqDiffSum float64
	for _, v := range vals {
		d := v - mean
		sqDiffSum += d * d
	}
	stddev = math.Sqrt(sqDiffSum / float64(n-1))
	return mean, stddev
}

// percentile computes the p-th percentile (0..1) over a copy of vals, using
// linear interpolation between closest ranks. Follows the teacher's
// downsample.go bucket/sort idiom: sort a scratch copy, never the input.
func percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	scratch := make([]float64, len(vals))
	copy(scratch, vals)
	sort.Float64s(scratch)

	if len(scratch) == 1 {
		return scratch[0]
	}

	rank := p * float64(len(scratch)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return scratch[lo]
	}
	frac := rank - float64(lo)
	return scratch[lo] + frac*(scratch[hi]-scratch[lo])
}
