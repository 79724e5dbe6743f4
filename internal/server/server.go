package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/kthreads/internal/config"
	"github.com/me/kthreads/internal/store"
	"github.com/me/kthreads/internal/ui"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server is the read-only trace API over recorded kernel sessions.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.SimConfig
	startTime time.Time
	store     store.Store
}

// New creates a new Server with all routes registered.
func New(cfg config.SimConfig, st store.Store, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Get("/events", s.handleListEvents)
				r.Get("/threads", s.handleListThreads)
			})
		})
	})

	if s.store != nil {
		r.Route(ui.Prefix, ui.New(s.store, s.logger).RegisterRoutes)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, ui.Prefix+"/", http.StatusFound)
		})
	}
}
