package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"screentrace/internal/handlers"
	"screentrace/internal/scheduler"
	"screentrace/internal/storage"
	"screentrace/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Notes       storage.NoteStore
	Jobs        *storage.JobRepo
	Deletions   *storage.DeletionLogRepo
	Scheduler   *scheduler.Scheduler
	VectorStore vectorstore.VectorStore
	Collection  string
	Timezone    *time.Location
}

// NewRouter creates the daemon's read/control API.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(CORS)

	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.Jobs, deps.Collection)
	jobsHandler := handlers.NewJobsHandler(deps.Jobs, deps.Scheduler)
	notesHandler := handlers.NewNotesHandler(deps.Notes, deps.Timezone)
	deletionsHandler := handlers.NewDeletionsHandler(deps.Deletions)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Get("/jobs", jobsHandler.List)
		r.Get("/jobs/{id}", jobsHandler.Get)
		r.Post("/jobs/trigger", jobsHandler.Trigger)

		r.Get("/notes", notesHandler.List)
		r.Get("/notes/{id}", notesHandler.Get)

		r.Get("/deletions", deletionsHandler.List)
		r.Get("/deletions/{day}", deletionsHandler.Get)
	})

	return r
}
