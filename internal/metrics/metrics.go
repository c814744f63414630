// Package metrics exposes Prometheus instrumentation for the service.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors behind a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	MessagesSent    *prometheus.CounterVec
	MessagesFailed  *prometheus.CounterVec
	MessagesSkipped *prometheus.CounterVec
	TargetsTotal    *prometheus.CounterVec
	LeadsScraped    prometheus.Counter
	CampaignsActive *prometheus.GaugeVec
	APIRequests     *prometheus.CounterVec
}

// New creates all collectors and registers them
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_messages_sent_total",
			Help: "Messages delivered, by channel and sender",
		}, []string{"channel", "sender"}),
		MessagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_messages_failed_total",
			Help: "Delivery failures, by channel and sender",
		}, []string{"channel", "sender"}),
		MessagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_messages_skipped_total",
			Help: "Sends skipped because a sender hit its daily limit",
		}, []string{"channel", "sender"}),
		TargetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_targets_processed_total",
			Help: "Campaign targets processed, by channel",
		}, []string{"channel"}),
		LeadsScraped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadflow_leads_scraped_total",
			Help: "New lead rows appended by the scraping pipeline",
		}),
		CampaignsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leadflow_campaigns_active",
			Help: "Campaigns currently running, by channel",
		}, []string{"channel"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_api_requests_total",
			Help: "API requests, by method, path and status code",
		}, []string{"method", "path", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesSent,
		m.MessagesFailed,
		m.MessagesSkipped,
		m.TargetsTotal,
		m.LeadsScraped,
		m.CampaignsActive,
		m.APIRequests,
	)
	return m
}

// Handler serves the scrape endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server is a standalone listener for the scrape endpoint
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a metrics server on its own address
func NewServer(addr, path string, m *Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start runs the listener until Stop is called
func (s *Server) Start() error {
	s.logger.Info("metrics server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
