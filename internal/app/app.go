// Package app wires the service together and supervises its workers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/leadflowhq/leadflow/internal/api"
	"github.com/leadflowhq/leadflow/internal/apify"
	"github.com/leadflowhq/leadflow/internal/campaign"
	"github.com/leadflowhq/leadflow/internal/config"
	"github.com/leadflowhq/leadflow/internal/ledger"
	"github.com/leadflowhq/leadflow/internal/metrics"
	"github.com/leadflowhq/leadflow/internal/ratelimit"
	"github.com/leadflowhq/leadflow/internal/scrape"
	"github.com/leadflowhq/leadflow/internal/senders"
	"github.com/leadflowhq/leadflow/internal/sheets"
	"github.com/leadflowhq/leadflow/internal/tasks"
	"github.com/leadflowhq/leadflow/internal/transport"
)

// shutdownTimeout bounds how long Stop waits for running workers
const shutdownTimeout = 30 * time.Second

// App is the assembled service
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	targets  *sheets.Worksheet
	pool     *sheets.Worksheet
	usageLog *sheets.Worksheet

	wal       *ledger.WAL
	registry  *tasks.Registry
	metrics   *metrics.Metrics
	directory *senders.Directory
	email     *transport.EmailSender
	whatsapp  *transport.WhatsAppSender
	pipeline  *scrape.Pipeline

	apiServer     *api.Server
	metricsServer *metrics.Server

	workerCtx    context.Context
	workerCancel context.CancelFunc
	wg           sync.WaitGroup
}

// New assembles the application from configuration
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: tasks.NewRegistry(),
		metrics:  metrics.New(),
	}
	a.workerCtx, a.workerCancel = context.WithCancel(context.Background())

	client := sheets.NewClient(cfg.Sheets.BaseURL, cfg.Sheets.Token, cfg.Sheets.SpreadsheetID)
	a.targets = client.Worksheet(cfg.Sheets.TargetsSheet)
	a.pool = client.Worksheet(cfg.Sheets.PoolSheet)
	a.usageLog = client.Worksheet(cfg.Sheets.LogSheet)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	wal, err := ledger.OpenWAL(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a.wal = wal

	a.directory = senders.NewDirectory(a.pool, logger.With("component", "senders"))
	a.email = transport.NewEmailSender(cfg.Email.FromName, cfg.Email.UseTLS, cfg.Email.UseSSL, logger.With("component", "email"))
	a.whatsapp = transport.NewWhatsAppSender(cfg.WhatsApp.SendURL, cfg.WhatsApp.UploadURL, cfg.WhatsApp.Timeout, logger.With("component", "whatsapp"))

	actors := apify.NewClient(cfg.Apify.BaseURL, cfg.Apify.Token, cfg.Apify.RunTimeout, cfg.Apify.MaxRetries, logger.With("component", "apify"))
	a.pipeline = scrape.NewPipeline(a.targets, actors, scrape.Config{
		JobActorID:           cfg.Apify.JobActorID,
		ContactActorID:       cfg.Apify.ContactActorID,
		LinkColumn:           cfg.Sheets.LinkColumn,
		EmailStatusColumn:    cfg.Sheets.EmailStatusColumn,
		WhatsAppStatusColumn: cfg.Sheets.WhatsAppStatusColumn,
	}, a.registry, a.metrics, logger.With("component", "scrape"))

	a.apiServer = api.NewServer(api.Config{
		ListenAddr:   cfg.Server.ListenAddr,
		APIKey:       cfg.Server.APIKey,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, a, a.metrics, logger)

	if cfg.Metrics.Enabled {
		a.metricsServer = metrics.NewServer(cfg.Metrics.ListenAddr, cfg.Metrics.Path, a.metrics, logger.With("component", "metrics"))
	}

	return a, nil
}

// StartScrape launches a scraping task in the background
func (a *App) StartScrape(combos []scrape.Combination, maxResults int, proxyGroup string) (string, error) {
	taskID, err := a.registry.Start("scrape", "")
	if err != nil {
		return "", err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pipeline.Run(a.workerCtx, taskID, combos, maxResults, proxyGroup)
	}()
	return taskID, nil
}

// StartCampaign launches a campaign task in the background. At most
// one campaign runs per channel; a second request is rejected with
// tasks.ErrBusy while the first is still running.
func (a *App) StartCampaign(channel senders.Channel) (string, error) {
	taskID, err := a.registry.Start("campaign", "campaign:"+string(channel))
	if err != nil {
		return "", err
	}

	engine := a.newEngine()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		engine.Run(a.workerCtx, taskID, channel)
	}()
	return taskID, nil
}

// newEngine builds a fresh engine per run; the usage ledger snapshot is
// owned by exactly one run
func (a *App) newEngine() *campaign.Engine {
	usage := ledger.New(a.usageLog, a.wal, a.logger.With("component", "ledger"))
	limiter := ratelimit.New(usage, a.cfg.Campaign.EmailDailyLimit, a.cfg.Campaign.WhatsAppDailyLimit)

	return campaign.NewEngine(a.targets, a.directory, usage, limiter, a.email, a.whatsapp, a.registry, a.metrics, campaign.Config{
		EmailColumn:          a.cfg.Sheets.EmailColumn,
		PhoneColumn:          a.cfg.Sheets.PhoneColumn,
		EmailStatusColumn:    a.cfg.Sheets.EmailStatusColumn,
		WhatsAppStatusColumn: a.cfg.Sheets.WhatsAppStatusColumn,
		ResumeDir:            a.cfg.Campaign.ResumeDir,
		DefaultSubject:       a.cfg.Email.Subject,
		HTMLBody:             a.cfg.Email.HTMLBody,
		TextBody:             a.cfg.Email.TextBody,
		WhatsAppText:         a.cfg.WhatsApp.Message,
	}, a.logger.With("component", "campaign"))
}

// Task reports the state of a background task
func (a *App) Task(id string) (tasks.Task, bool) {
	return a.registry.Get(id)
}

// ActiveTasks reports how many tasks are queued or running
func (a *App) ActiveTasks() int {
	return a.registry.Active()
}

// Run starts all listeners and blocks until the context is cancelled
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- a.apiServer.Start()
	}()
	if a.metricsServer != nil {
		go func() {
			errCh <- a.metricsServer.Start()
		}()
	}

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errCh:
		if err != nil {
			a.shutdown()
			return err
		}
		return a.shutdown()
	}
}

func (a *App) shutdown() error {
	a.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.apiServer.Stop(ctx); err != nil {
		a.logger.Error("api server shutdown failed", "error", err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(ctx); err != nil {
			a.logger.Error("metrics server shutdown failed", "error", err)
		}
	}

	// give running workers a chance to finish their current target
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.logger.Info("all workers finished")
	case <-ctx.Done():
		a.logger.Warn("workers still running at shutdown deadline, cancelling")
		a.workerCancel()
		<-done
	}

	if err := a.wal.Close(); err != nil {
		a.logger.Error("could not close write-ahead buffer", "error", err)
	}
	return nil
}
