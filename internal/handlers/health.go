package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"screentrace/internal/contextutil"
	"screentrace/internal/storage"
	"screentrace/internal/vectorstore"
)

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	vectorStore        vectorstore.VectorStore
	jobs               *storage.JobRepo
	collectionName     string
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(vectorStore vectorstore.VectorStore, jobs *storage.JobRepo, collectionName string) *HealthHandler {
	return &HealthHandler{
		vectorStore:        vectorStore,
		jobs:               jobs,
		collectionName:     collectionName,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Issues    []string          `json:"issues,omitempty"`
}

// ServeHTTP reports the daemon's dependency health. Returns 200 when
// healthy, 503 otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string

	exists, err := h.vectorStore.CollectionExists(checkCtx, h.collectionName)
	if err != nil || !exists {
		checks["vector_store"] = "error"
		issues = append(issues, "vector_store_unavailable")
		logger.WarnContext(ctx, "vector store health check failed", "error", err, "exists", exists)
	} else {
		checks["vector_store"] = "ok"
	}

	// The jobs table doubles as the database liveness probe.
	if _, err := h.jobs.CountNonTerminal(checkCtx, storage.JobTypeHourly, 0, time.Now().Unix(), 1); err != nil {
		checks["database"] = "error"
		issues = append(issues, "database_unavailable")
		logger.WarnContext(ctx, "database health check failed", "error", err)
	} else {
		checks["database"] = "ok"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if len(issues) > 0 {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.ErrorContext(ctx, "failed to encode health response", "error", err)
	}
}
