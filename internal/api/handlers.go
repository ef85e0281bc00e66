package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Suvan8806/driftwatch/internal/ingest"
	"github.com/Suvan8806/driftwatch/internal/store"
)

type ingestRequest struct {
	ServiceID string   `json:"service_id"`
	LatencyMS *float64 `json:"latency_ms"`
	PayloadKB *float64 `json:"payload_kb"`
	Timestamp *string  `json:"timestamp"`
}

type ingestResponse struct {
	Status    string `json:"status"`
	ServiceID string `json:"service_id"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}

// handleIngest implements spec §6's ingest endpoint: validate, enqueue,
// respond 202/4xx/503.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := s.now()

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if len(req.ServiceID) < 1 || len(req.ServiceID) > 128 {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be 1..128 characters")
		return
	}
	if req.LatencyMS == nil || *req.LatencyMS < 0 {
		writeError(w, http.StatusBadRequest, "invalid_latency_ms", "latency_ms must be a number >= 0")
		return
	}
	if req.PayloadKB == nil || *req.PayloadKB < 0 {
		writeError(w, http.StatusBadRequest, "invalid_payload_kb", "payload_kb must be a number >= 0")
		return
	}

	ts := start
	if req.Timestamp != nil {
		parsed, err := time.Parse(time.RFC3339, *req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_timestamp", "timestamp must be ISO-8601")
			return
		}
		ts = parsed
	}

	sample := store.Sample{
		ServiceID:  req.ServiceID,
		Timestamp:  ts,
		LatencyMS:  *req.LatencyMS,
		PayloadKB:  *req.PayloadKB,
		IngestedAt: start,
	}

	if err := s.queue.Enqueue(sample); err != nil {
		if errors.Is(err, ingest.ErrQueueFull) {
			if s.metrics != nil {
				s.metrics.ObserveSample(req.ServiceID, false)
			}
			writeError(w, http.StatusServiceUnavailable, "queue_full", "ingest queue is at capacity, retry later")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{
		Status:    "accepted",
		ServiceID: req.ServiceID,
		Timestamp: ts.Format(time.RFC3339),
	})

	if s.metrics != nil {
		s.metrics.ObserveIngestDuration(s.now().Sub(start).Seconds())
	}
}

type baselineView struct {
	SampleCount   int      `json:"sample_count"`
	MeanLatency   float64  `json:"mean_latency"`
	StddevLatency float64  `json:"stddev_latency"`
	MeanPayload   float64  `json:"mean_payload"`
	StddevPayload float64  `json:"stddev_payload"`
	P50Latency    *float64 `json:"p50_latency,omitempty"`
	P95Latency    *float64 `json:"p95_latency,omitempty"`
	P99Latency    *float64 `json:"p99_latency,omitempty"`
	LastUpdated   string   `json:"last_updated"`
}

func toBaselineView(b store.Baseline) baselineView {
	v := baselineView{
		SampleCount:   b.SampleCount,
		MeanLatency:   b.MeanLatency,
		StddevLatency: b.StddevLatency,
		MeanPayload:   b.MeanPayload,
		StddevPayload: b.StddevPayload,
		LastUpdated:   b.LastUpdated.Format(time.RFC3339),
	}
	if b.PercentilesComputed {
		v.P50Latency = &b.P50Latency
		v.P95Latency = &b.P95Latency
		v.P99Latency = &b.P99Latency
	}
	return v
}

type healthView struct {
	ServiceID           string         `json:"service_id"`
	State               store.State    `json:"state"`
	TransitionTimestamp string         `json:"transition_timestamp"`
	SampleCount         int            `json:"sample_count"`
	Baseline            *baselineView  `json:"baseline,omitempty"`
	Metadata            store.Reason   `json:"metadata"`
}

// handleHealth implements spec §6's health query endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	serviceID := mux.Vars(r)["service_id"]

	h, err := s.store.GetHealth(r.Context(), serviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown_service", "no health state for this service")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	view := healthView{
		ServiceID:           h.ServiceID,
		State:               h.State,
		TransitionTimestamp: h.TransitionTimestamp.Format(time.RFC3339),
		SampleCount:         h.SampleCount,
		Metadata:            h.Metadata,
	}
	if b, err := s.store.GetBaseline(r.Context(), serviceID); err == nil {
		bv := toBaselineView(*b)
		view.Baseline = &bv
	}

	writeJSON(w, http.StatusOK, view)
}

// handleBaseline implements spec §6's baseline query endpoint.
func (s *Server) handleBaseline(w http.ResponseWriter, r *http.Request) {
	serviceID := mux.Vars(r)["service_id"]

	b, err := s.store.GetBaseline(r.Context(), serviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no_baseline", "baseline not yet computed for this service")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toBaselineView(*b))
}

type systemStatusView struct {
	Status                string  `json:"status"`
	UptimeSeconds          float64 `json:"uptime_seconds"`
	ServicesMonitored      int     `json:"services_monitored"`
	TotalTelemetryRecords  int64   `json:"total_telemetry_records"`
	DatabaseSizeMB         float64 `json:"database_size_mb"`
	DroppedSamples         int64   `json:"dropped_samples"`
}

// handleSystemStatus implements spec §6's system status endpoint.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.SystemStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	var dropped int64
	if s.metrics != nil {
		dropped = s.metrics.DroppedSamples()
	}

	writeJSON(w, http.StatusOK, systemStatusView{
		Status:                "ok",
		UptimeSeconds:         s.now().Sub(s.started).Seconds(),
		ServicesMonitored:     stats.ServiceCount,
		TotalTelemetryRecords: stats.TotalSamples,
		DatabaseSizeMB:        float64(stats.BytesOnDisk) / (1024 * 1024),
		DroppedSamples:        dropped,
	})
}

// handleLiveness implements spec §6's liveness endpoint: 200 while the queue
// accepts and the Store responds.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.queue.Depth() >= s.queue.Capacity() {
		writeError(w, http.StatusServiceUnavailable, "queue_full", "ingest queue is at capacity")
		return
	}
	if _, err := s.store.SystemStats(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}
