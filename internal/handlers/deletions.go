package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"screentrace/internal/contextutil"
	"screentrace/internal/storage"
)

// DeletionsHandler serves the post-checkpoint deletion audit log.
type DeletionsHandler struct {
	deletions *storage.DeletionLogRepo
}

// NewDeletionsHandler creates a new DeletionsHandler.
func NewDeletionsHandler(deletions *storage.DeletionLogRepo) *DeletionsHandler {
	return &DeletionsHandler{deletions: deletions}
}

// deletionView is the API shape of a deletion record.
type deletionView struct {
	Day              string `json:"day"`
	Screenshots      int    `json:"screenshots"`
	TextBuffers      int    `json:"text_buffers"`
	OCRIntermediates int    `json:"ocr_intermediates"`
	DeletedTS        int64  `json:"deleted_ts"`
}

func toDeletionView(rec *storage.DeletionRecord) deletionView {
	return deletionView{
		Day:              rec.Day,
		Screenshots:      rec.Screenshots,
		TextBuffers:      rec.TextBuffers,
		OCRIntermediates: rec.OCRIntermediates,
		DeletedTS:        rec.DeletedTS,
	}
}

// List handles GET /api/deletions.
func (h *DeletionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	recs, err := h.deletions.List(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list deletions", "error", err)
		http.Error(w, "failed to list deletions", http.StatusInternalServerError)
		return
	}

	views := make([]deletionView, 0, len(recs))
	for i := range recs {
		views = append(views, toDeletionView(&recs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"deletions": views})
}

// Get handles GET /api/deletions/{day}.
func (h *DeletionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	rec, err := h.deletions.Get(ctx, chi.URLParam(r, "day"))
	if err == storage.ErrNotFound {
		http.Error(w, "day has not been purged", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to load deletion record", "error", err)
		http.Error(w, "failed to load deletion record", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toDeletionView(rec))
}
