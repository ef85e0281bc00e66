package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Suvan8806/driftwatch/internal/store"
)

func TestObserveSampleIncrementsByOutcome(t *testing.T) {
	m := New()
	m.ObserveSample("checkout", true)
	m.ObserveSample("checkout", false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	body := rec.Body.String()

	if !strings.Contains(body, `driftwatch_samples_total{outcome="accepted",service_id="checkout"} 1`) {
		t.Errorf("missing accepted counter in:\n%s", body)
	}
	if !strings.Contains(body, `driftwatch_samples_total{outcome="rejected",service_id="checkout"} 1`) {
		t.Errorf("missing rejected counter in:\n%s", body)
	}
}

func TestObserveQueueDepthSetsGauge(t *testing.T) {
	m := New()
	m.ObserveQueueDepth(42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "driftwatch_ingest_queue_depth 42") {
		t.Errorf("missing queue depth gauge in:\n%s", rec.Body.String())
	}
}

func TestObserveTransitionLabelsByStatePair(t *testing.T) {
	m := New()
	m.ObserveTransition(store.StateStable, store.StateDriftDetected)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `driftwatch_health_transitions_total{new="DRIFT_DETECTED",previous="STABLE"} 1`) {
		t.Errorf("missing transition counter in:\n%s", rec.Body.String())
	}
}

func TestObserveDroppedIncrementsCounterAndTotal(t *testing.T) {
	m := New()
	m.ObserveDropped("checkout")
	m.ObserveDropped("checkout")
	m.ObserveDropped("search")

	if got := m.DroppedSamples(); got != 3 {
		t.Errorf("DroppedSamples() = %d, want 3", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `driftwatch_samples_dropped_total{service_id="checkout"} 2`) {
		t.Errorf("missing dropped counter for checkout in:\n%s", body)
	}
	if !strings.Contains(body, `driftwatch_samples_dropped_total{service_id="search"} 1`) {
		t.Errorf("missing dropped counter for search in:\n%s", body)
	}
}
