// Package api exposes the HTTP control surface: starting scrapes and
// campaigns, and polling task state.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leadflowhq/leadflow/internal/metrics"
	"github.com/leadflowhq/leadflow/internal/scrape"
	"github.com/leadflowhq/leadflow/internal/senders"
	"github.com/leadflowhq/leadflow/internal/tasks"
)

// Service starts background work and reports task state
type Service interface {
	StartScrape(combos []scrape.Combination, maxResults int, proxyGroup string) (string, error)
	StartCampaign(channel senders.Channel) (string, error)
	Task(id string) (tasks.Task, bool)
	ActiveTasks() int
}

// Config holds the HTTP server settings
type Config struct {
	ListenAddr   string
	APIKey       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP API server
type Server struct {
	cfg       Config
	service   Service
	metrics   *metrics.Metrics
	logger    *slog.Logger
	srv       *http.Server
	startTime time.Time
}

// NewServer creates the API server and mounts all routes
func NewServer(cfg Config, service Service, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		service:   service,
		metrics:   m,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/scrape", s.handleStartScrape)
		r.Post("/campaigns/email", s.handleStartCampaign(senders.ChannelEmail))
		r.Post("/campaigns/whatsapp", s.handleStartCampaign(senders.ChannelWhatsApp))
		r.Get("/tasks/{id}", s.handleGetTask)
	})

	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the mounted router
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start runs the listener until Stop is called
func (s *Server) Start() error {
	s.logger.Info("api server starting", "addr", s.cfg.ListenAddr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("api server stopping")
	return s.srv.Shutdown(ctx)
}
