// Package api is the HTTP/JSON edge of spec §6: ingest, health/baseline
// queries, system status, and liveness. Routed with gorilla/mux following
// the Outblock-flowindex server, with the teacher's socket.go decode ->
// validate -> dispatch -> respond handler shape adapted from line-protocol
// framing to JSON request/response bodies.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Suvan8806/driftwatch/internal/hub"
	"github.com/Suvan8806/driftwatch/internal/ingest"
	"github.com/Suvan8806/driftwatch/internal/store"
	"github.com/Suvan8806/driftwatch/internal/svccontext"
)

// Metrics is the subset of internal/telemetry.Metrics the HTTP edge touches
// directly (ingest.Metrics covers the worker-pool side).
type Metrics interface {
	ObserveSample(serviceID string, accepted bool)
	ObserveIngestDuration(seconds float64)
	DroppedSamples() int64
}

// Server is the DriftWatch HTTP/JSON edge.
type Server struct {
	queue    *ingest.Queue
	registry *svccontext.Registry
	store    *store.Store
	hub      *hub.Hub
	metrics  Metrics
	now      func() time.Time
	started  time.Time

	router *mux.Router
	http   *http.Server
}

// Config controls listener address and rate limiting (spec §2 domain stack).
type Config struct {
	ListenAddr      string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// NewServer builds a Server with its routes wired. metrics and h may be nil.
func NewServer(cfg Config, q *ingest.Queue, reg *svccontext.Registry, st *store.Store, h *hub.Hub, metrics Metrics) *Server {
	s := &Server{
		queue:    q,
		registry: reg,
		store:    st,
		hub:      h,
		metrics:  metrics,
		now:      time.Now,
		started:  time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/ingest", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/v1/health/{service_id}", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/baseline/{service_id}", s.handleBaseline).Methods(http.MethodGet)
	r.HandleFunc("/v1/system/status", s.handleSystemStatus).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleLiveness).Methods(http.MethodGet)

	// metrics may additionally expose a Prometheus handler; mounted here
	// rather than on a second listener so driftwatchd stays single-port.
	if mh, ok := metrics.(interface{ Handler() http.Handler }); ok {
		r.Handle("/metrics", mh.Handler()).Methods(http.MethodGet)
	}

	handler := rateLimitMiddleware(r, cfg.RateLimitPerSec, cfg.RateLimitBurst)

	s.router = r
	s.http = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}
	return s
}

// ListenAndServe starts the HTTP listener. Blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops accepting new connections, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
