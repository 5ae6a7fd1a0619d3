// Package httpapi exposes the management REST API: agent CRUD and
// session provisioning, behind bearer-token auth.
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voicedeck/voicedeck/internal/config"
	"github.com/voicedeck/voicedeck/internal/observability"
	"github.com/voicedeck/voicedeck/internal/provision"
	"github.com/voicedeck/voicedeck/internal/store"
)

type Server struct {
	cfg         config.Config
	store       store.Store
	provisioner *provision.Provisioner
	verifier    TokenVerifier
	metrics     *observability.Metrics
	log         *slog.Logger
}

func New(cfg config.Config, st store.Store, p *provision.Provisioner, verifier TokenVerifier, metrics *observability.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:         cfg,
		store:       st,
		provisioner: p,
		verifier:    verifier,
		metrics:     metrics,
		log:         log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(s.instrument)

		r.Post("/v1/agents", s.handleCreateAgent)
		r.Get("/v1/agents", s.handleListAgents)
		r.Get("/v1/agents/{id}", s.handleGetAgent)
		r.Put("/v1/agents/{id}", s.handleUpdateAgent)
		r.Delete("/v1/agents/{id}", s.handleDeleteAgent)
		r.Post("/v1/agents/{id}/test", s.handleTestAgent)

		r.Post("/v1/livekit/create-session", s.handleCreateSession)
		r.Post("/v1/livekit/sessions/{id}/end", s.handleEndSession)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Readiness rides on the store: a page-1 list with limit 1 proves
	// the database answers.
	_, _, err := s.store.ListAgents(r.Context(), store.ListAgentsParams{
		UserID: "readiness-probe", Page: 1, Limit: 1,
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// instrument records per-route request counts and latency.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).
			Observe(float64(time.Since(start).Milliseconds()))
	})
}
