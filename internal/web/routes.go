package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/photo-archive/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	photosHandler := handlers.NewPhotosHandler(s.deps.Store, s.deps.Pipeline, s.log)
	facesHandler := handlers.NewFacesHandler(s.deps.Reconciler, s.deps.Engine, s.config.Tagging, s.log)
	searchHandler := handlers.NewSearchHandler(s.deps.Engine, s.log)
	ingestHandler := handlers.NewIngestHandler(s.deps.Pipeline, s.config.Ingest, s.jobManager, s.log)
	configHandler := handlers.NewConfigHandler(s.config)

	s.router.Get("/api/v1/health", handlers.HealthCheck(s.deps.Store))

	s.router.Route("/api/v1", func(r chi.Router) {
		// Request-scoped work; SSE streams and job starts are registered outside.
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(5 * time.Minute))

			// Photos
			r.Get("/photos", photosHandler.List)
			r.Post("/photos", photosHandler.Upload)
			r.Get("/photos/{filename}", photosHandler.Get)
			r.Delete("/photos/{filename}", photosHandler.Delete)

			// Faces
			r.Get("/faces/untagged", facesHandler.Untagged)
			r.Post("/faces/{faceId}/tag", facesHandler.Tag)
			r.Post("/faces/{faceId}/tag-similar", facesHandler.TagSimilar)
			r.Get("/people", facesHandler.People)
			r.Get("/people/suggest", facesHandler.SuggestPeople)

			// Search
			r.Post("/search", searchHandler.Combined)
			r.Get("/search/labels", searchHandler.Labels)
			r.Get("/search/people", searchHandler.People)
			r.Get("/search/text", searchHandler.Text)
			r.Get("/search/location", searchHandler.Location)
			r.Post("/search/face", searchHandler.ByFace)

			// Config
			r.Get("/config", configHandler.Get)
		})

		// Ingest (long-running operations)
		r.Get("/ingest", ingestHandler.List)
		r.Post("/ingest", ingestHandler.Start)
		r.Get("/ingest/{jobId}", ingestHandler.Status)
		r.Get("/ingest/{jobId}/events", ingestHandler.Events)
		r.Delete("/ingest/{jobId}", ingestHandler.Cancel)
	})
}
