package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/okian/barkwatch/internal/domain/model"
	"github.com/okian/barkwatch/internal/domain/types"
)

const maxRequestBytes = 1 << 20

// jobRequest mirrors the OpenAPI schema for POST /jobs.
type jobRequest struct {
	Source              string   `json:"source"`
	IdempotencyKey      string   `json:"idempotency_key"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	MergeGap            *float64 `json:"merge_gap"`
	NoMerge             bool     `json:"no_merge"`
}

func (j jobRequest) validate() error {
	src := strings.TrimSpace(j.Source)
	switch {
	case src == "":
		return errors.New("missing source")
	case strings.HasPrefix(src, "-"):
		return errors.New("source must be a file path, not an option")
	case strings.Contains(src, "://"):
		return errors.New("source must be a local file path, not a URL")
	}
	return nil
}

func (j jobRequest) job() model.Job {
	return model.Job{
		Source:         j.Source,
		IdempotencyKey: j.IdempotencyKey,
		Params: model.JobParams{
			ConfidenceThreshold: j.ConfidenceThreshold,
			MergeGap:            j.MergeGap,
			NoMerge:             j.NoMerge,
		},
	}
}

type submitResponse struct {
	Job       types.JobRecord `json:"job"`
	Duplicate bool            `json:"duplicate"`
}

type listResponse struct {
	Jobs []types.JobRecord `json:"jobs"`
}

// JobsHandler handles job submission and lookup.
type JobsHandler struct {
	deps     Dependencies
	maxLimit int
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps Dependencies, maxLimit int) *JobsHandler {
	if maxLimit < 1 {
		maxLimit = DefaultMaxLimit
	}
	return &JobsHandler{deps: deps, maxLimit: maxLimit}
}

// Router returns the routes mounted under /jobs.
func (h *JobsHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/", MetricsMiddleware(h.HandleSubmit, "jobs_submit"))
	r.Get("/", MetricsMiddleware(h.HandleList, "jobs_list"))
	r.Get("/{id}", MetricsMiddleware(h.HandleGet, "jobs_get"))
	return r
}

// HandleSubmit handles POST /jobs requests.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_job"
	var req jobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	job, duplicate, err := h.deps.Submit(r.Context(), req.job())
	if err != nil {
		writeError(w, classify(op, err))
		return
	}
	status := http.StatusAccepted
	if duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, submitResponse{Job: types.NewJobRecord(job), Duplicate: duplicate})
}

// HandleGet handles GET /jobs/{id} requests.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	job, err := h.deps.Job(r.Context(), id)
	if err != nil {
		writeError(w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.NewJobRecord(job))
}

// HandleList handles GET /jobs?limit=n requests.
func (h *JobsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_jobs"
	limit := h.maxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, WrapKind(op, ErrBadRequest, errors.New("limit must be a positive integer")))
			return
		}
		limit = min(n, h.maxLimit)
	}

	jobs, err := h.deps.Jobs(r.Context(), limit)
	if err != nil {
		writeError(w, classify(op, err))
		return
	}
	out := listResponse{Jobs: make([]types.JobRecord, 0, len(jobs))}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, types.NewJobRecord(j))
	}
	writeJSON(w, http.StatusOK, out)
}
