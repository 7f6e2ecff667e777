// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/okian/barkwatch/internal/domain/model"
)

// DefaultMaxLimit caps GET /jobs when no limit is configured.
const DefaultMaxLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Submit queues a detection job. duplicate is true when the idempotency
	// key was already seen and job is the existing one.
	Submit(ctx context.Context, req model.Job) (job model.Job, duplicate bool, err error)

	// Read operations expose stored jobs.
	Job(ctx context.Context, id string) (model.Job, error)
	Jobs(ctx context.Context, limit int) ([]model.Job, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	jobsHandler   *JobsHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// page size of GET /jobs; values below 1 use DefaultMaxLimit.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		jobsHandler:   NewJobsHandler(deps, maxLimit),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Mount("/jobs", s.jobsHandler.Router())
}

// Router returns a chi router with every API route registered.
func (s *Server) Router(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status of its kind.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify translates service errors into API kinds.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidJob):
		return WrapKind(op, ErrBadRequest, err)
	case errors.Is(err, model.ErrJobNotFound):
		return WrapKind(op, ErrNotFound, err)
	case errors.Is(err, model.ErrQueueFull):
		return WrapKind(op, ErrBackpressure, err)
	default:
		return WrapKind(op, ErrInternal, err)
	}
}
