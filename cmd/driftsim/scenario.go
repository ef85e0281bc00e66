package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario describes a synthetic traffic run: one or more services, each
// generating samples from a normal distribution at a fixed rate for a fixed
// sample count. Grounded on the Outblock-flowindex/99souls-ariadne
// precedent of a YAML config decoded with gopkg.in/yaml.v3.
type Scenario struct {
	Target   string          `yaml:"target"`
	Services []ServiceTraffic `yaml:"services"`
}

// ServiceTraffic is one service's synthetic load profile.
type ServiceTraffic struct {
	ServiceID     string  `yaml:"service_id"`
	LatencyMeanMS float64 `yaml:"latency_mean_ms"`
	LatencyStddev float64 `yaml:"latency_stddev_ms"`
	PayloadMeanKB float64 `yaml:"payload_mean_kb"`
	PayloadStddev float64 `yaml:"payload_stddev_kb"`
	SampleCount   int     `yaml:"sample_count"`
	RatePerSec    float64 `yaml:"rate_per_sec"`

	// Spike overrides the distribution for the first SpikeCount samples,
	// letting a scenario reproduce spec §8's S2/S6-style fixed-value bursts
	// without a second distribution parameter set.
	SpikeLatencyMS float64 `yaml:"spike_latency_ms"`
	SpikeCount     int     `yaml:"spike_count"`
}

// LoadScenario reads and decodes a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if sc.Target == "" {
		return nil, fmt.Errorf("scenario: target is required")
	}
	if len(sc.Services) == 0 {
		return nil, fmt.Errorf("scenario: at least one service is required")
	}
	return &sc, nil
}

// sample draws one (latency_ms, payload_kb) pair for the nth sample (0-based)
// of this service's run, following the spike override when n < SpikeCount.
func (s ServiceTraffic) sample(rng *rand.Rand, n int) (latencyMS, payloadKB float64) {
	if n < s.SpikeCount && s.SpikeLatencyMS > 0 {
		latencyMS = s.SpikeLatencyMS
	} else {
		latencyMS = rng.NormFloat64()*s.LatencyStddev + s.LatencyMeanMS
	}
	payloadKB = rng.NormFloat64()*s.PayloadStddev + s.PayloadMeanKB
	if latencyMS < 0 {
		latencyMS = 0
	}
	if payloadKB < 0 {
		payloadKB = 0
	}
	return latencyMS, payloadKB
}

// interval returns the delay between samples for the configured rate.
func (s ServiceTraffic) interval() time.Duration {
	if s.RatePerSec <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / s.RatePerSec)
}
