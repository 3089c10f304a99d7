package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"screentrace/internal/contextutil"
	"screentrace/internal/scheduler"
	"screentrace/internal/storage"
)

// JobsHandler serves the job status API and manual reprocessing.
type JobsHandler struct {
	jobs  *storage.JobRepo
	sched *scheduler.Scheduler
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(jobs *storage.JobRepo, sched *scheduler.Scheduler) *JobsHandler {
	return &JobsHandler{jobs: jobs, sched: sched}
}

// jobView is the API shape of a job row.
type jobView struct {
	ID            string `json:"id"`
	JobType       string `json:"job_type"`
	WindowStartTS int64  `json:"window_start_ts"`
	WindowEndTS   int64  `json:"window_end_ts"`
	Status        string `json:"status"`
	Attempts      int    `json:"attempts"`
	LastError     string `json:"last_error,omitempty"`
	UpdatedTS     int64  `json:"updated_ts"`
}

func toJobView(j *storage.Job) jobView {
	return jobView{
		ID:            j.ID,
		JobType:       j.JobType,
		WindowStartTS: j.WindowStartTS,
		WindowEndTS:   j.WindowEndTS,
		Status:        j.Status,
		Attempts:      j.Attempts,
		LastError:     j.LastError,
		UpdatedTS:     j.UpdatedTS,
	}
}

// List handles GET /api/jobs with optional type, status, from and to filters.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	q := r.URL.Query()
	from := parseTSParam(q.Get("from"), 0)
	to := parseTSParam(q.Get("to"), time.Now().Unix()+86400)

	jobs, err := h.jobs.ListFilter(ctx, q.Get("type"), q.Get("status"), from, to)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list jobs", "error", err)
		http.Error(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}

	views := make([]jobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, toJobView(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

// Get handles GET /api/jobs/{id}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	job, err := h.jobs.GetByID(ctx, chi.URLParam(r, "id"))
	if err == storage.ErrNotFound {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to load job", "error", err)
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

// triggerRequest is the body of POST /api/jobs/trigger.
type triggerRequest struct {
	JobType       string `json:"job_type"`
	WindowStartTS int64  `json:"window_start_ts"`
	WindowEndTS   int64  `json:"window_end_ts"`
	Force         bool   `json:"force"`
}

// Trigger handles POST /api/jobs/trigger. A window that already succeeded is
// rejected with 409 unless force is set.
func (h *JobsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.JobType == "" || req.WindowEndTS <= req.WindowStartTS {
		http.Error(w, "job_type and a valid window are required", http.StatusBadRequest)
		return
	}

	job, err := h.sched.Trigger(ctx, req.JobType, req.WindowStartTS, req.WindowEndTS, req.Force)
	if errors.Is(err, scheduler.ErrAlreadySucceeded) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to trigger job", "job_type", req.JobType, "error", err)
		http.Error(w, "failed to trigger job", http.StatusInternalServerError)
		return
	}

	logger.InfoContext(ctx, "job triggered", "job_id", job.ID, "job_type", job.JobType, "force", req.Force)
	writeJSON(w, http.StatusAccepted, toJobView(job))
}

func parseTSParam(raw string, def int64) int64 {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
