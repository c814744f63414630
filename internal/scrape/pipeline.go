package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leadflowhq/leadflow/internal/apify"
	"github.com/leadflowhq/leadflow/internal/metrics"
	"github.com/leadflowhq/leadflow/internal/tasks"
)

// StatusPending marks a freshly scraped row as awaiting outreach
const StatusPending = "Pending"

// delays between upstream calls; the actor platform rate-limits
// aggressive callers
const (
	contactScrapeDelay = 2 * time.Second
	combinationDelay   = 5 * time.Second
)

// Combination is one job keyword and country pair to search
type Combination struct {
	Job     string `json:"job"`
	Country string `json:"country"`
}

// TargetSheet is the worksheet new leads are appended to
type TargetSheet interface {
	HeaderMap(ctx context.Context) (map[string]int, error)
	ColumnValues(ctx context.Context, col int) (map[string]struct{}, error)
	AppendRow(ctx context.Context, values []string) error
}

// ActorClient runs the scraping actors
type ActorClient interface {
	ScrapeJobs(ctx context.Context, actorID, searchURL string, maxResults int, proxyGroup string) ([]apify.JobPosting, error)
	ScrapeContacts(ctx context.Context, actorID, websiteURL string) ([]apify.Item, error)
}

// Config carries the pipeline's actor and column bindings
type Config struct {
	JobActorID           string
	ContactActorID       string
	LinkColumn           string
	EmailStatusColumn    string
	WhatsAppStatusColumn string
}

// Pipeline runs lead discovery as a background task
type Pipeline struct {
	sheet    TargetSheet
	actors   ActorClient
	cfg      Config
	registry *tasks.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// sleep is swapped in tests
	sleep func(ctx context.Context, d time.Duration)
}

// NewPipeline creates a scraping pipeline
func NewPipeline(sheet TargetSheet, actors ActorClient, cfg Config, registry *tasks.Registry, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		sheet:    sheet,
		actors:   actors,
		cfg:      cfg,
		registry: registry,
		metrics:  m,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Run executes the pipeline for all combinations and records progress
// in the task registry. Rows whose link already exists in the sheet
// are skipped; a failure on one job or combination is logged and the
// run continues.
func (p *Pipeline) Run(ctx context.Context, taskID string, combos []Combination, maxResults int, proxyGroup string) {
	p.registry.Run(taskID)
	logger := p.logger.With("task_id", taskID)

	headers, err := p.sheet.HeaderMap(ctx)
	if err != nil {
		p.registry.Fail(taskID, fmt.Sprintf("initialization failed: %v", err))
		logger.Error("could not read target sheet headers", "error", err)
		return
	}
	linkCol, ok := headers[p.cfg.LinkColumn]
	if !ok {
		p.registry.Fail(taskID, fmt.Sprintf("initialization failed: column %q not found", p.cfg.LinkColumn))
		return
	}
	existing, err := p.sheet.ColumnValues(ctx, linkCol)
	if err != nil {
		p.registry.Fail(taskID, fmt.Sprintf("initialization failed: %v", err))
		logger.Error("could not read existing links", "error", err)
		return
	}

	added := 0
	for i, combo := range combos {
		if ctx.Err() != nil {
			p.registry.Fail(taskID, "cancelled")
			return
		}

		p.registry.Progress(taskID, fmt.Sprintf("Processing combination %d/%d: '%s' in '%s'", i+1, len(combos), combo.Job, combo.Country))
		logger.Info("searching jobs", "keyword", combo.Job, "country", combo.Country)

		searchURL := BuildSearchURL(combo.Job, combo.Country)
		jobs, err := p.actors.ScrapeJobs(ctx, p.cfg.JobActorID, searchURL, maxResults, proxyGroup)
		if err != nil {
			logger.Warn("job search failed, moving on", "keyword", combo.Job, "country", combo.Country, "error", err)
			continue
		}

		for _, job := range jobs {
			if job.JobURL == "" {
				continue
			}
			if _, dup := existing[job.JobURL]; dup {
				continue
			}

			var contacts ContactInfo
			if job.CompanyWebsite != "" {
				items, err := p.actors.ScrapeContacts(ctx, p.cfg.ContactActorID, job.CompanyWebsite)
				if err != nil {
					logger.Warn("contact scrape failed", "company", job.CompanyName, "website", job.CompanyWebsite, "error", err)
				} else {
					contacts = AggregateContacts(items)
				}
				p.sleep(ctx, contactScrapeDelay)
			}

			row := p.buildRow(headers, job, combo.Country, contacts)
			if err := p.sheet.AppendRow(ctx, row); err != nil {
				logger.Error("could not append lead row", "title", job.Title, "error", err)
				continue
			}
			existing[job.JobURL] = struct{}{}
			added++
			p.metrics.LeadsScraped.Inc()
			logger.Info("lead saved", "title", job.Title, "company", job.CompanyName)
		}

		if i < len(combos)-1 {
			p.sleep(ctx, combinationDelay)
		}
	}

	p.registry.Complete(taskID, fmt.Sprintf("Scraped %d new leads across %d combinations", added, len(combos)))
	logger.Info("scraping completed", "leads", added)
}

// buildRow lays out one lead by the sheet's own header order; columns
// the pipeline does not know stay empty
func (p *Pipeline) buildRow(headers map[string]int, job apify.JobPosting, country string, contacts ContactInfo) []string {
	width := 0
	for _, col := range headers {
		if col > width {
			width = col
		}
	}
	row := make([]string, width)

	values := map[string]string{
		"employmentType":           job.EmploymentType,
		"companyName":              job.CompanyName,
		"companyCountry":           country,
		"companyWebsite":           job.CompanyWebsite,
		"postedAt":                 job.PostedAt,
		"phones":                   strings.Join(contacts.Phones, ", "),
		"emails":                   strings.Join(contacts.Emails, ", "),
		"title":                    job.Title,
		"linkedin":                 contacts.LinkedIn,
		"fullCompanyAddress":       joinAddress(job.CompanyStreet, job.CompanyLocality),
		"twitter":                  contacts.Twitter,
		"instagram":                contacts.Instagram,
		"facebook":                 contacts.Facebook,
		"youtube":                  contacts.YouTube,
		"tiktok":                   contacts.TikTok,
		"pinterest":                contacts.Pinterest,
		"discord":                  contacts.Discord,
		p.cfg.LinkColumn:           job.JobURL,
		p.cfg.EmailStatusColumn:    StatusPending,
		p.cfg.WhatsAppStatusColumn: StatusPending,
	}

	for header, col := range headers {
		if v, ok := values[header]; ok {
			row[col-1] = v
		}
	}
	return row
}

func joinAddress(street, locality string) string {
	switch {
	case street == "":
		return locality
	case locality == "":
		return street
	default:
		return street + ", " + locality
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
