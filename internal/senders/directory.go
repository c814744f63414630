// Package senders loads the pool of outreach sender identities.
package senders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Channel is the outreach medium a sender delivers through
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// ParseChannel parses a channel name
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelWhatsApp:
		return ChannelWhatsApp, nil
	}
	return "", fmt.Errorf("unknown channel: %q", s)
}

// Sender is one credentialed sending identity from the pool.
// Email senders carry SMTP credentials; WhatsApp senders carry an API key.
type Sender struct {
	ID      string
	Channel Channel
	Active  bool

	// Email credentials
	Host     string
	Port     int
	Password string

	// WhatsApp credentials
	APIKey string

	ResumeFile string
	Subject    string
}

// MissingConfig reports why the sender cannot be used, or "" when it is
// fully configured. A sender failing this check is skipped without
// consuming quota.
func (s *Sender) MissingConfig() string {
	if s.ID == "" {
		return "missing id"
	}
	switch s.Channel {
	case ChannelEmail:
		if s.Password == "" || s.Host == "" || s.Port == 0 {
			return "missing SMTP credentials"
		}
	case ChannelWhatsApp:
		if s.APIKey == "" {
			return "missing API key"
		}
	}
	if s.ResumeFile == "" {
		return "missing resume file"
	}
	return ""
}

// PoolSource provides the raw sender pool records
type PoolSource interface {
	Records(ctx context.Context) ([]map[string]string, error)
}

// Directory reads sender identities from the pool worksheet
type Directory struct {
	source PoolSource
	logger *slog.Logger
}

// NewDirectory creates a sender directory over the given pool source
func NewDirectory(source PoolSource, logger *slog.Logger) *Directory {
	return &Directory{source: source, logger: logger}
}

// ListActive returns the active senders for a channel in storage order.
// The order defines the send sequence every target will follow for the
// whole run. An empty pool is returned as an empty slice, not an error.
func (d *Directory) ListActive(ctx context.Context, channel Channel) ([]Sender, error) {
	records, err := d.source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read sender pool: %w", err)
	}

	var active []Sender
	for _, record := range records {
		if Channel(record["type"]) != channel || !truthy(record["is_active"]) {
			continue
		}
		s := Sender{
			ID:         strings.TrimSpace(record["id"]),
			Channel:    channel,
			Active:     true,
			Host:       record["host"],
			Password:   record["password"],
			APIKey:     record["api_key"],
			ResumeFile: record["resume_filename"],
			Subject:    record["email_subject"],
		}
		if p := record["port"]; p != "" {
			port, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				d.logger.Warn("invalid port in sender pool", "sender", s.ID, "port", p)
			} else {
				s.Port = port
			}
		}
		active = append(active, s)
	}

	d.logger.Info("loaded sender sequence", "channel", channel, "count", len(active))
	return active, nil
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}
