package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/web/handlers"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	deps       handlers.Deps
	router     *chi.Mux
	httpServer *http.Server
	jobManager *handlers.JobManager
	baseCtx    context.Context
	logger     *slog.Logger
}

// NewServer creates a new web server. Video jobs started through it are
// cancelled when ctx is done or the server shuts down.
func NewServer(ctx context.Context, deps handlers.Deps, host string, port int, allowedOrigins []string) *Server {
	r := chi.NewRouter()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:       deps,
		router:     r,
		jobManager: handlers.NewJobManager(),
		baseCtx:    ctx,
		logger:     logger,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      otelhttp.NewHandler(r, "facewatch"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // uploads and SSE streams
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown cancels running video jobs and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	s.jobManager.CancelAll()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Jobs returns the video job manager.
func (s *Server) Jobs() *handlers.JobManager {
	return s.jobManager
}
