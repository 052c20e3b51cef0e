// Package server provides the HTTP server and routing for the VQE pipeline.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/config"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/database"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	workflowhandlers "github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/workflow/handlers"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	RunsDB       *database.DB
	Config       *config.Config
	Port         int
	DevMode      bool
	Workflow     *workflowhandlers.Handler
	Runs         ActiveRunsProvider
	EventBus     *events.Bus
	EventManager *events.Manager
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	runsDB         *database.DB
	cfg            *config.Config
	port           int
	workflow       *workflowhandlers.Handler
	eventBus       *events.Bus
	systemHandlers *SystemHandlers
	statusMonitor  *StatusMonitor
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	dataDir := ""
	if cfg.Config != nil {
		dataDir = cfg.Config.DataDir
	}

	systemHandlers := NewSystemHandlers(cfg.Log, dataDir, cfg.RunsDB, cfg.Runs)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		runsDB:         cfg.RunsDB,
		cfg:            cfg.Config,
		port:           cfg.Port,
		workflow:       cfg.Workflow,
		eventBus:       cfg.EventBus,
		systemHandlers: systemHandlers,
	}

	if cfg.EventManager != nil {
		s.statusMonitor = NewStatusMonitor(cfg.EventManager, systemHandlers, cfg.Log)
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Streams hold the connection open; per-request deadlines come from
		// the timeout middleware instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetJobs registers job instances for manual triggering via API
func (s *Server) SetJobs(jobs ...scheduler.Job) {
	s.systemHandlers.SetJobs(jobs...)
}

// SetSchedules lets the job listing report cron schedules and run times
func (s *Server) SetSchedules(p ScheduleProvider) {
	s.systemHandlers.SetSchedules(p)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(timeoutExceptStreams(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Unified events stream (SSE)
		if s.eventBus != nil {
			eventsStreamHandler := NewEventsStreamHandler(s.eventBus, s.log)
			r.Get("/events/stream", eventsStreamHandler.ServeHTTP)
		}

		systemHandlers := s.systemHandlers
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", systemHandlers.HandleDatabaseStats)
			r.Get("/disk", systemHandlers.HandleDiskUsage)
			r.Get("/jobs", systemHandlers.HandleListJobs)
			r.Post("/jobs/{name}", systemHandlers.HandleTriggerJob)
		})

		// Runs, Hamiltonians and noise models
		if s.workflow != nil {
			s.workflow.RegisterRoutes(r)
		}
	})
}

// Start starts the HTTP server and the status monitor. The monitor stops
// with ctx.
func (s *Server) Start(ctx context.Context) error {
	if s.statusMonitor != nil {
		s.statusMonitor.Start(ctx, 60*time.Second)
		s.log.Info().Msg("Status monitor started")
	}

	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// timeoutExceptStreams applies middleware.Timeout to every request except
// long-lived event streams.
func timeoutExceptStreams(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := middleware.Timeout(timeout)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/stream") {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
