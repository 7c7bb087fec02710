package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps)
	statsHandler := handlers.NewStatsHandler(s.deps, s.jobManager)
	eventsHandler := handlers.NewEventsHandler(s.deps)
	watchlistHandler := handlers.NewWatchlistHandler(s.deps)
	videosHandler := handlers.NewVideosHandler(s.baseCtx, s.deps, s.jobManager)

	s.router.Get("/health", healthHandler.Get)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		// Short requests
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(30 * time.Second))

			r.Get("/stats", statsHandler.Get)

			r.Get("/events", eventsHandler.List)
			r.Delete("/events", eventsHandler.Clear)

			r.Get("/watchlist/count", watchlistHandler.Count)
			r.Get("/watchlist/{personId}", watchlistHandler.Person)

			r.Get("/jobs", videosHandler.List)
			r.Get("/jobs/{jobId}", videosHandler.Status)
			r.Delete("/jobs/{jobId}", videosHandler.Cancel)
			r.Get("/jobs/{jobId}/results", videosHandler.Results)
		})

		// Uploads and streams
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(10 * time.Minute))

			r.Post("/watchlist", watchlistHandler.Upload)
			r.Post("/videos", videosHandler.Start)
		})
		r.Get("/jobs/{jobId}/events", videosHandler.Events)
	})
}
