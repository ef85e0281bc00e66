// Package telemetry exposes DriftWatch's internal counters as Prometheus
// series. Grounded on the ariadne engine's PrometheusProvider: a registry
// plus a handful of CounterVec/GaugeVec/HistogramVec collectors, served
// through promhttp.HandlerFor. DriftWatch's metric surface is fixed and
// small, so the vectors are named fields rather than routed through a
// generic Provider abstraction.
package telemetry

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Suvan8806/driftwatch/internal/store"
)

// Metrics holds every Prometheus collector DriftWatch exports.
type Metrics struct {
	reg *prometheus.Registry

	samplesTotal    *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	transitionTotal *prometheus.CounterVec
	baselineRefresh *prometheus.CounterVec
	ingestLatency   prometheus.Histogram
	droppedTotal    *prometheus.CounterVec

	// droppedCount mirrors droppedTotal's sum across labels as a plain
	// integer, so /v1/system/status can report it without walking the
	// registry's metric families.
	droppedCount atomic.Int64
}

// New creates a Metrics with a fresh registry and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		samplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftwatch",
			Name:      "samples_total",
			Help:      "Samples processed by the ingest worker pool, by service and outcome.",
		}, []string{"service_id", "outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "driftwatch",
			Name:      "ingest_queue_depth",
			Help:      "Current number of samples buffered in the ingest queue.",
		}),
		transitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftwatch",
			Name:      "health_transitions_total",
			Help:      "Health state transitions, by previous and new state.",
		}, []string{"previous", "new"}),
		baselineRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftwatch",
			Name:      "baseline_refresh_total",
			Help:      "Baseline recomputations, by service.",
		}, []string{"service_id"}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "driftwatch",
			Name:      "ingest_request_duration_seconds",
			Help:      "Latency of the ingest HTTP handler, end to end.",
			Buckets:   prometheus.DefBuckets,
		}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftwatch",
			Name:      "samples_dropped_total",
			Help:      "Samples dropped after exhausting StoreTransient retries, by service.",
		}, []string{"service_id"}),
	}

	reg.MustRegister(m.samplesTotal, m.queueDepth, m.transitionTotal, m.baselineRefresh, m.ingestLatency, m.droppedTotal)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveSample satisfies internal/ingest.Metrics.
func (m *Metrics) ObserveSample(serviceID string, accepted bool) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	m.samplesTotal.WithLabelValues(serviceID, outcome).Inc()
}

// ObserveQueueDepth satisfies internal/ingest.Metrics.
func (m *Metrics) ObserveQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// ObserveTransition satisfies internal/ingest.Metrics.
func (m *Metrics) ObserveTransition(previous, next store.State) {
	m.transitionTotal.WithLabelValues(string(previous), string(next)).Inc()
}

// ObserveBaselineRefresh records a baseline recompute for serviceID.
func (m *Metrics) ObserveBaselineRefresh(serviceID string) {
	m.baselineRefresh.WithLabelValues(serviceID).Inc()
}

// ObserveIngestDuration records one HTTP ingest handler's end-to-end latency.
func (m *Metrics) ObserveIngestDuration(seconds float64) {
	m.ingestLatency.Observe(seconds)
}

// ObserveDropped records a sample dropped after exhausting StoreTransient
// retries. Satisfies internal/ingest.Metrics.
func (m *Metrics) ObserveDropped(serviceID string) {
	m.droppedTotal.WithLabelValues(serviceID).Inc()
	m.droppedCount.Add(1)
}

// DroppedSamples returns the total number of samples dropped since process
// start, across all services. Satisfies internal/api.Metrics.
func (m *Metrics) DroppedSamples() int64 {
	return m.droppedCount.Load()
}
