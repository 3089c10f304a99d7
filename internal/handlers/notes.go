package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"screentrace/internal/contextutil"
	"screentrace/internal/notes"
	"screentrace/internal/storage"
)

// NotesHandler serves durable notes, raw or rendered.
type NotesHandler struct {
	notes    storage.NoteStore
	renderer *notes.Renderer
	timezone *time.Location
}

// NewNotesHandler creates a new NotesHandler.
func NewNotesHandler(noteStore storage.NoteStore, tz *time.Location) *NotesHandler {
	if tz == nil {
		tz = time.Local
	}
	return &NotesHandler{
		notes:    noteStore,
		renderer: notes.NewRenderer(),
		timezone: tz,
	}
}

// noteView is the API shape of a note row.
type noteView struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	StartTS     int64           `json:"start_ts"`
	EndTS       int64           `json:"end_ts"`
	FilePath    string          `json:"file_path"`
	Payload     json.RawMessage `json:"payload"`
	EmbeddingID string          `json:"embedding_id,omitempty"`
}

func toNoteView(n *storage.NoteRecord) noteView {
	return noteView{
		ID:          n.ID,
		Type:        n.Type,
		StartTS:     n.StartTS,
		EndTS:       n.EndTS,
		FilePath:    n.FilePath,
		Payload:     json.RawMessage(n.JSONPayload),
		EmbeddingID: n.EmbeddingID,
	}
}

// Get handles GET /api/notes/{id}. With ?format=html the note's markdown
// file is rendered to an HTML page; the default is the JSON payload.
func (h *NotesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	note, err := h.notes.GetByID(ctx, chi.URLParam(r, "id"))
	if err == storage.ErrNotFound {
		http.Error(w, "note not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to load note", "error", err)
		http.Error(w, "failed to load note", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") != "html" {
		writeJSON(w, http.StatusOK, toNoteView(note))
		return
	}

	markdown, err := os.ReadFile(note.FilePath)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read note file", "path", note.FilePath, "error", err)
		http.Error(w, "note file unavailable", http.StatusInternalServerError)
		return
	}
	html, err := h.renderer.ToHTML(markdown)
	if err != nil {
		logger.ErrorContext(ctx, "failed to render note", "note_id", note.ID, "error", err)
		http.Error(w, "failed to render note", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

// List handles GET /api/notes?day=YYYYMMDD&type=hour|day. Day defaults to
// today; type defaults to both.
func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	day := r.URL.Query().Get("day")
	if day == "" {
		day = time.Now().In(h.timezone).Format("20060102")
	}
	dayStart, err := time.ParseInLocation("20060102", day, h.timezone)
	if err != nil {
		http.Error(w, "day must be YYYYMMDD", http.StatusBadRequest)
		return
	}
	startTS := dayStart.Unix()
	endTS := dayStart.AddDate(0, 0, 1).Unix()

	types := []string{storage.NoteTypeHour, storage.NoteTypeDay}
	if t := r.URL.Query().Get("type"); t != "" {
		if t != storage.NoteTypeHour && t != storage.NoteTypeDay {
			http.Error(w, "type must be hour or day", http.StatusBadRequest)
			return
		}
		types = []string{t}
	}

	views := make([]noteView, 0)
	for _, t := range types {
		list, err := h.notes.ListRange(ctx, t, startTS, endTS)
		if err != nil {
			logger.ErrorContext(ctx, "failed to list notes", "type", t, "error", err)
			http.Error(w, "failed to list notes", http.StatusInternalServerError)
			return
		}
		for i := range list {
			views = append(views, toNoteView(&list[i]))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day, "notes": views})
}
