// Package http exposes the refill workflow over a small JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/rxflow/internal/logging"
	"github.com/aretw0/rxflow/pkg/controller"
	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/escalation"
	"github.com/aretw0/rxflow/pkg/ports"
)

// Pinger reports backend reachability for the health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the controller and coordinator into HTTP handlers.
type Server struct {
	controller  *controller.Controller
	coordinator *escalation.Coordinator
	sessions    ports.SessionStore
	health      Pinger
	registry    *prometheus.Registry
	logger      *slog.Logger
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithHealthPinger wires the backend probe used by GET /health.
func WithHealthPinger(p Pinger) ServerOption {
	return func(s *Server) { s.health = p }
}

// WithMetricsRegistry exposes the registry on GET /metrics.
func WithMetricsRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) { s.registry = reg }
}

// NewServer creates the API server.
func NewServer(
	ctrl *controller.Controller,
	coord *escalation.Coordinator,
	sessions ports.SessionStore,
	opts ...ServerOption,
) *Server {
	s := &Server{
		controller:  ctrl,
		coordinator: coord,
		sessions:    sessions,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/refill", s.handleTurn)
		r.Get("/sessions/{id}", s.handleSessionGet)
		r.Route("/escalations/{id}", func(r chi.Router) {
			r.Get("/", s.handleEscalationGet)
			r.Post("/ack", s.handleAcknowledge)
			r.Post("/resolve", s.handleResolve)
		})
	})

	r.Get("/health", s.handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

// handleTurn processes one conversational turn.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var in domain.TurnInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	out, err := s.controller.ProcessTurn(r.Context(), in)
	if err != nil {
		s.writeTurnError(w, out, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrSessionNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("session lookup failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEscalationGet(w http.ResponseWriter, r *http.Request) {
	esc, err := s.coordinator.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrEscalationNotFound) {
		s.writeError(w, http.StatusNotFound, "escalation not found")
		return
	}
	if err != nil {
		s.logger.Error("escalation lookup failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, esc)
}

// handleAcknowledge marks the case acknowledged and advances the owning
// session to ESCALATION_COMPLETE.
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	out, err := s.controller.Acknowledge(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrEscalationNotFound) {
		s.writeError(w, http.StatusNotFound, "escalation not found")
		return
	}
	if err != nil {
		s.writeTurnError(w, out, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	esc, err := s.coordinator.Resolve(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrEscalationNotFound) {
		s.writeError(w, http.StatusNotFound, "escalation not found")
		return
	}
	if err != nil {
		s.logger.Error("escalation resolve failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, esc)
}

// handleHealth reports ok, or degraded when the pharmacy backend probe
// fails. Degraded is still 200: the API itself is serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) writeTurnError(w http.ResponseWriter, out domain.TurnOutput, err error) {
	code := http.StatusInternalServerError
	switch out.Error {
	case domain.ErrorKindNotFound:
		code = http.StatusNotFound
	case domain.ErrorKindStaleSession:
		code = http.StatusConflict
	case domain.ErrorKindInvalidTransition:
		code = http.StatusUnprocessableEntity
	}
	s.logger.Warn("turn failed", "session_id", out.SessionID, "kind", out.Error, "err", err)
	s.writeJSON(w, code, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
