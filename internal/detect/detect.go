// Package detect scores samples against a baseline and drives the
// per-service health state machine.
package detect

import (
	"math"

	"github.com/Suvan8806/driftwatch/internal/store"
)

// Score computes the (latency, payload) z-score pair for a sample against a
// baseline. Pure and total: z = (x - mean) / stddev, with the degenerate-σ
// policy from spec §4.2/§4.3 — when stddev is 0, z is 0 if x equals the
// mean, and +Inf (treated as a severe anomaly) otherwise.
func Score(sample store.Sample, baseline store.Baseline) (latencyZ, payloadZ float64) {
	latencyZ = zscore(sample.LatencyMS, baseline.MeanLatency, baseline.StddevLatency)
	payloadZ = zscore(sample.PayloadKB, baseline.MeanPayload, baseline.StddevPayload)
	return latencyZ, payloadZ
}

func zscore(x, mean, stddev float64) float64 {
	if stddev == 0 {
		if x == mean {
			return 0
		}
		return math.Inf(1)
	}
	return (x - mean) / stddev
}
