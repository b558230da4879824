// Package server exposes the job-control HTTP surface of §6: list/run/
// pause/resume jobs and start/stop/query the scheduler itself. No
// dashboards, no auth, no other API surface (spec Non-goals) — grounded on
// the teacher's chi+cors server shape, trimmed to this one concern.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/scheduler"
)

// Config holds server configuration.
type Config struct {
	Port      int
	Log       zerolog.Logger
	Scheduler *scheduler.Scheduler
	DevMode   bool
}

// Server is the HTTP server wrapping chi.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	scheduler *scheduler.Scheduler
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		scheduler: cfg.Scheduler,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Post("/{jobName}/run", s.handleRunJobNow)
		r.Post("/{jobName}/pause", s.handlePauseJob)
		r.Post("/{jobName}/resume", s.handleResumeJob)
	})

	s.router.Route("/api/scheduler", func(r chi.Router) {
		r.Get("/status", s.handleSchedulerStatus)
		r.Post("/start", s.handleStartScheduler)
		r.Post("/shutdown", s.handleShutdownScheduler)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", portFromAddr(s.server.Addr)).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func portFromAddr(addr string) int {
	var port int
	_, _ = fmt.Sscanf(addr, ":%d", &port)
	return port
}
