package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leadflowhq/leadflow/internal/ledger"
	"github.com/leadflowhq/leadflow/internal/metrics"
	"github.com/leadflowhq/leadflow/internal/ratelimit"
	"github.com/leadflowhq/leadflow/internal/senders"
	"github.com/leadflowhq/leadflow/internal/tasks"
	"github.com/leadflowhq/leadflow/internal/transport"
)

// statusPending marks a target row that has not been attempted yet
const statusPending = "Pending"

// TargetSheet is the worksheet holding outreach targets
type TargetSheet interface {
	AllValues(ctx context.Context) ([][]string, error)
	UpdateCell(ctx context.Context, row, col int, value string) error
}

// SenderSource provides the active sender sequence for a channel
type SenderSource interface {
	ListActive(ctx context.Context, channel senders.Channel) ([]senders.Sender, error)
}

// EmailTransport delivers email through a sender identity
type EmailTransport interface {
	Send(ctx context.Context, sender senders.Sender, msg transport.EmailMessage) error
}

// WhatsAppTransport delivers WhatsApp messages through a sender identity
type WhatsAppTransport interface {
	Send(ctx context.Context, sender senders.Sender, msg transport.WhatsAppMessage) error
}

// Config carries the engine's column bindings and message content
type Config struct {
	EmailColumn          string
	PhoneColumn          string
	EmailStatusColumn    string
	WhatsAppStatusColumn string

	ResumeDir string

	DefaultSubject string
	HTMLBody       string
	TextBody       string
	WhatsAppText   string
}

// Engine executes one campaign run end to end. It is single-threaded:
// one run owns the ledger snapshot and walks targets sequentially.
type Engine struct {
	sheet    TargetSheet
	pool     SenderSource
	usage    *ledger.Ledger
	limiter  *ratelimit.Limiter
	email    EmailTransport
	whatsapp WhatsAppTransport
	registry *tasks.Registry
	metrics  *metrics.Metrics
	cfg      Config
	logger   *slog.Logger

	// swapped in tests
	readFile func(path string) ([]byte, error)
	now      func() time.Time
}

// NewEngine wires a campaign engine
func NewEngine(sheet TargetSheet, pool SenderSource, usage *ledger.Ledger, limiter *ratelimit.Limiter, email EmailTransport, whatsapp WhatsAppTransport, registry *tasks.Registry, m *metrics.Metrics, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		sheet:    sheet,
		pool:     pool,
		usage:    usage,
		limiter:  limiter,
		email:    email,
		whatsapp: whatsapp,
		registry: registry,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
		readFile: os.ReadFile,
		now:      time.Now,
	}
}

// Run executes a campaign for one channel. Every pending target gets
// one attempt per sender in pool order; a terminal status is written
// back to the sheet for every target touched, whatever the outcome.
func (e *Engine) Run(ctx context.Context, taskID string, channel senders.Channel) {
	e.registry.Run(taskID)
	logger := e.logger.With("task_id", taskID, "channel", channel)

	e.metrics.CampaignsActive.WithLabelValues(string(channel)).Inc()
	defer e.metrics.CampaignsActive.WithLabelValues(string(channel)).Dec()

	rows, err := e.sheet.AllValues(ctx)
	if err != nil {
		e.fail(taskID, logger, fmt.Errorf("read target sheet: %w", err))
		return
	}
	if len(rows) == 0 {
		e.fail(taskID, logger, fmt.Errorf("target sheet is empty"))
		return
	}

	headers := headerMap(rows[0])
	contactCol, statusCol, err := e.columns(headers, channel)
	if err != nil {
		e.fail(taskID, logger, err)
		return
	}

	// snapshot usage history once; quota decisions for the whole run
	// come from this snapshot plus the sends the run itself records
	e.usage.LoadRecent(ctx)

	sequence, err := e.pool.ListActive(ctx, channel)
	if err != nil {
		e.fail(taskID, logger, err)
		return
	}
	if len(sequence) == 0 {
		e.fail(taskID, logger, fmt.Errorf("no active %s senders in the pool", channel))
		return
	}

	var targets []int
	for i := 1; i < len(rows); i++ {
		if statusCol < len(rows[i]) && rows[i][statusCol] == statusPending {
			targets = append(targets, i)
		}
	}
	logger.Info("campaign starting", "targets", len(targets), "senders", len(sequence))

	for n, rowIdx := range targets {
		if ctx.Err() != nil {
			logger.Warn("campaign cancelled", "processed", n, "targets", len(targets))
			e.registry.Fail(taskID, "cancelled")
			return
		}
		e.registry.Progress(taskID, fmt.Sprintf("Processing target %d/%d", n+1, len(targets)))
		e.metrics.TargetsTotal.WithLabelValues(string(channel)).Inc()

		contactCell := ""
		if contactCol < len(rows[rowIdx]) {
			contactCell = rows[rowIdx][contactCol]
		}
		e.processTarget(ctx, logger, channel, sequence, rowIdx, statusCol, contactCell)
	}

	e.registry.Complete(taskID, fmt.Sprintf("Processed %d targets", len(targets)))
	logger.Info("campaign completed", "targets", len(targets))
}

func (e *Engine) fail(taskID string, logger *slog.Logger, err error) {
	logger.Error("campaign failed", "error", err)
	e.registry.Fail(taskID, fmt.Sprintf("initialization failed: %v", err))
}

func (e *Engine) columns(headers map[string]int, channel senders.Channel) (contactCol, statusCol int, err error) {
	contactName, statusName := e.cfg.EmailColumn, e.cfg.EmailStatusColumn
	if channel == senders.ChannelWhatsApp {
		contactName, statusName = e.cfg.PhoneColumn, e.cfg.WhatsAppStatusColumn
	}

	contactCol, ok := headers[contactName]
	if !ok {
		return 0, 0, fmt.Errorf("column %q not found in target sheet", contactName)
	}
	statusCol, ok = headers[statusName]
	if !ok {
		return 0, 0, fmt.Errorf("column %q not found in target sheet", statusName)
	}
	return contactCol, statusCol, nil
}

// processTarget attempts the full sender sequence against one row and
// writes the row's terminal status
func (e *Engine) processTarget(ctx context.Context, logger *slog.Logger, channel senders.Channel, sequence []senders.Sender, rowIdx, statusCol int, contactCell string) {
	recipients, noContact := e.resolveRecipients(channel, contactCell)
	if noContact != "" {
		e.writeStatus(ctx, logger, rowIdx, statusCol, noContact)
		return
	}
	recipientLabel := strings.Join(recipients, ",")

	result := TargetResult{Row: rowIdx + 1, Recipient: recipientLabel}
	for _, s := range sequence {
		if reason := s.MissingConfig(); reason != "" {
			logger.Warn("skipping misconfigured sender", "sender", s.ID, "reason", reason)
			continue
		}

		if !e.limiter.Available(channel, s.ID) {
			logger.Info("sender rate-limited", "sender", s.ID)
			result.Attempts = append(result.Attempts, Attempt{SenderID: s.ID, Outcome: OutcomeSkipped})
			e.metrics.MessagesSkipped.WithLabelValues(string(channel), s.ID).Inc()
			continue
		}

		attempt := e.deliver(ctx, channel, s, recipients)
		result.Attempts = append(result.Attempts, attempt)

		if attempt.Outcome == OutcomeSent {
			logger.Info("message sent", "sender", s.ID, "recipient", recipientLabel)
			e.usage.Record(ctx, s.ID, channel, recipientLabel, e.now())
			e.metrics.MessagesSent.WithLabelValues(string(channel), s.ID).Inc()
		} else {
			logger.Error("send failed", "sender", s.ID, "recipient", recipientLabel, "error", attempt.Err)
			e.metrics.MessagesFailed.WithLabelValues(string(channel), s.ID).Inc()
		}
	}

	e.writeStatus(ctx, logger, rowIdx, statusCol, result.Status(len(sequence)))
}

// resolveRecipients extracts deliverable addresses from the contact
// cell, or the terminal status to write when there are none
func (e *Engine) resolveRecipients(channel senders.Channel, cell string) ([]string, string) {
	if channel == senders.ChannelEmail {
		if strings.TrimSpace(cell) == "" {
			return nil, "No Email Found"
		}
		email, ok := FirstValidEmail(cell)
		if !ok {
			return nil, "No Valid Email"
		}
		return []string{email}, ""
	}

	if strings.TrimSpace(cell) == "" {
		return nil, "No Phone Found"
	}
	phones := ValidPhones(cell)
	if len(phones) == 0 {
		return nil, "No Valid Phone"
	}
	return phones, ""
}

func (e *Engine) deliver(ctx context.Context, channel senders.Channel, s senders.Sender, recipients []string) Attempt {
	content, err := e.readFile(filepath.Join(e.cfg.ResumeDir, s.ResumeFile))
	if err != nil {
		if channel == senders.ChannelWhatsApp {
			return Attempt{SenderID: s.ID, Outcome: OutcomeUploadFailed, Detail: s.ResumeFile, Err: err}
		}
		return Attempt{SenderID: s.ID, Outcome: OutcomeFailed, Err: err}
	}
	attachment := &transport.Attachment{Filename: s.ResumeFile, Content: content}

	switch channel {
	case senders.ChannelEmail:
		subject := s.Subject
		if subject == "" {
			subject = e.cfg.DefaultSubject
		}
		err = e.email.Send(ctx, s, transport.EmailMessage{
			To:         recipients[0],
			Subject:    subject,
			HTMLBody:   e.cfg.HTMLBody,
			TextBody:   e.cfg.TextBody,
			Attachment: attachment,
		})
	case senders.ChannelWhatsApp:
		err = e.whatsapp.Send(ctx, s, transport.WhatsAppMessage{
			Recipients: recipients,
			Text:       e.cfg.WhatsAppText,
			Attachment: attachment,
		})
	}

	if err != nil {
		if errors.Is(err, transport.ErrUploadFailed) {
			return Attempt{SenderID: s.ID, Outcome: OutcomeUploadFailed, Detail: s.ResumeFile, Err: err}
		}
		return Attempt{SenderID: s.ID, Outcome: OutcomeFailed, Err: err}
	}
	return Attempt{SenderID: s.ID, Outcome: OutcomeSent}
}

// writeStatus persists a terminal status for a row; a write failure is
// logged but does not abort the run
func (e *Engine) writeStatus(ctx context.Context, logger *slog.Logger, rowIdx, statusCol int, status string) {
	if err := e.sheet.UpdateCell(ctx, rowIdx+1, statusCol+1, status); err != nil {
		logger.Error("could not write target status", "row", rowIdx+1, "error", err)
	}
}

func headerMap(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, h := range header {
		m[strings.TrimSpace(h)] = i
	}
	return m
}
