package main

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeScenario(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestLoadScenarioParsesFields(t *testing.T) {
	path := writeScenario(t, `
target: "http://127.0.0.1:8080/v1/ingest"
services:
  - service_id: checkout
    latency_mean_ms: 150
    latency_stddev_ms: 25
    payload_mean_kb: 2.5
    payload_stddev_kb: 0.75
    sample_count: 100
    rate_per_sec: 50
`)
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.Target != "http://127.0.0.1:8080/v1/ingest" {
		t.Errorf("target = %q", sc.Target)
	}
	if len(sc.Services) != 1 {
		t.Fatalf("services = %d, want 1", len(sc.Services))
	}
	svc := sc.Services[0]
	if svc.ServiceID != "checkout" || svc.SampleCount != 100 || svc.RatePerSec != 50 {
		t.Errorf("unexpected service: %+v", svc)
	}
}

func TestLoadScenarioRejectsMissingTarget(t *testing.T) {
	path := writeScenario(t, `
services:
  - service_id: checkout
    sample_count: 10
`)
	if _, err := LoadScenario(path); err == nil {
		t.Fatal("expected error for missing target")
	}
}

func TestLoadScenarioRejectsNoServices(t *testing.T) {
	path := writeScenario(t, `target: "http://x/v1/ingest"`)
	if _, err := LoadScenario(path); err == nil {
		t.Fatal("expected error for empty services")
	}
}

func TestServiceTrafficSampleUsesSpikeOverride(t *testing.T) {
	svc := ServiceTraffic{
		LatencyMeanMS: 150, LatencyStddev: 25,
		PayloadMeanKB: 2.5, PayloadStddev: 0.75,
		SpikeLatencyMS: 550, SpikeCount: 5,
	}
	rng := rand.New(rand.NewSource(1))

	latency, _ := svc.sample(rng, 0)
	if latency != 550 {
		t.Errorf("spike sample latency = %v, want 550", latency)
	}

	// Past the spike window, latency should vary with the base distribution
	// rather than staying pinned at the spike value.
	var sawNonSpike bool
	for n := svc.SpikeCount; n < svc.SpikeCount+20; n++ {
		latency, _ := svc.sample(rng, n)
		if latency != 550 {
			sawNonSpike = true
			break
		}
	}
	if !sawNonSpike {
		t.Error("expected samples past spike window to diverge from spike value")
	}
}

func TestServiceTrafficSampleClampsNonNegative(t *testing.T) {
	svc := ServiceTraffic{LatencyMeanMS: 0, LatencyStddev: 1000, PayloadMeanKB: 0, PayloadStddev: 1000}
	rng := rand.New(rand.NewSource(2))
	for n := 0; n < 100; n++ {
		latency, payload := svc.sample(rng, n)
		if latency < 0 || payload < 0 {
			t.Fatalf("sample() produced negative value: latency=%v payload=%v", latency, payload)
		}
	}
}

func TestServiceTrafficIntervalZeroRateIsUnthrottled(t *testing.T) {
	svc := ServiceTraffic{RatePerSec: 0}
	if got := svc.interval(); got != 0 {
		t.Errorf("interval() = %v, want 0", got)
	}
}

func TestServiceTrafficIntervalMatchesRate(t *testing.T) {
	svc := ServiceTraffic{RatePerSec: 100}
	if got := svc.interval(); got != 10*time.Millisecond {
		t.Errorf("interval() = %v, want 10ms", got)
	}
}
