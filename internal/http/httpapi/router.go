package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"fetchd/internal/http/handlers"
	"fetchd/internal/middleware"
)

func NewRouter(app *handlers.App, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(logger),
		chimw.Recoverer,
		middleware.CORS,
	)

	r.Get("/health", app.Health)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", app.SubmitJob)
		r.Get("/{id}/progress", app.JobProgress)
		r.Get("/{id}/artifact", app.JobArtifact)
	})
	r.Post("/retrieve", app.Retrieve)
	r.Post("/metadata", app.Metadata)

	// paths used by existing clients
	r.Route("/api", func(r chi.Router) {
		r.Post("/start-download", app.StartDownload)
		r.Get("/progress/{id}", app.JobProgress)
		r.Get("/file/{id}", app.JobArtifact)
		r.Post("/download", app.Retrieve)
		r.Post("/info", app.Metadata)
	})

	return r
}
