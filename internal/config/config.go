package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Apify    ApifyConfig    `yaml:"apify"`
	Campaign CampaignConfig `yaml:"campaign"`
	Email    EmailConfig    `yaml:"email"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	APIKey       string        `yaml:"api_key"` // empty = no auth
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SheetsConfig contains the spreadsheet-backed contact store settings
type SheetsConfig struct {
	BaseURL       string `yaml:"base_url"` // override for tests
	Token         string `yaml:"token"`
	SpreadsheetID string `yaml:"spreadsheet_id"`

	// Worksheet names
	TargetsSheet string `yaml:"targets_sheet"`
	PoolSheet    string `yaml:"pool_sheet"`
	LogSheet     string `yaml:"log_sheet"`

	// Column names resolved through the header row of the targets sheet
	EmailColumn          string `yaml:"email_column"`
	PhoneColumn          string `yaml:"phone_column"`
	EmailStatusColumn    string `yaml:"email_status_column"`
	WhatsAppStatusColumn string `yaml:"whatsapp_status_column"`
	LinkColumn           string `yaml:"link_column"`
}

// ApifyConfig contains actor-execution API settings
type ApifyConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	JobActorID     string        `yaml:"job_actor_id"`
	ContactActorID string        `yaml:"contact_actor_id"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// CampaignConfig contains outreach campaign settings
type CampaignConfig struct {
	EmailDailyLimit    int `yaml:"email_daily_limit"`
	WhatsAppDailyLimit int `yaml:"whatsapp_daily_limit"`

	// ResumeDir is the directory holding the per-sender attachment files
	ResumeDir string `yaml:"resume_dir"`
}

// EmailConfig contains SMTP submission settings shared by all email senders
type EmailConfig struct {
	UseTLS   bool   `yaml:"use_tls"` // STARTTLS (port 587)
	UseSSL   bool   `yaml:"use_ssl"` // implicit TLS (port 465)
	FromName string `yaml:"from_name"`
	Subject  string `yaml:"subject"` // fallback when a sender has no subject of its own
	HTMLBody string `yaml:"html_body"`
	TextBody string `yaml:"text_body"`
}

// WhatsAppConfig contains messaging API settings shared by all WhatsApp senders
type WhatsAppConfig struct {
	SendURL   string        `yaml:"send_url"`
	UploadURL string        `yaml:"upload_url"`
	Message   string        `yaml:"message"`
	Timeout   time.Duration `yaml:"timeout"`
}

// StorageConfig contains local storage settings
type StorageConfig struct {
	Path string `yaml:"path"` // bbolt database for the usage write-ahead buffer
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}

	if c.Sheets.BaseURL == "" {
		c.Sheets.BaseURL = "https://sheets.googleapis.com/v4"
	}
	if c.Sheets.TargetsSheet == "" {
		c.Sheets.TargetsSheet = "Sheet1"
	}
	if c.Sheets.PoolSheet == "" {
		c.Sheets.PoolSheet = "Senders Pool"
	}
	if c.Sheets.LogSheet == "" {
		c.Sheets.LogSheet = "Senders Log"
	}
	if c.Sheets.EmailColumn == "" {
		c.Sheets.EmailColumn = "emails"
	}
	if c.Sheets.PhoneColumn == "" {
		c.Sheets.PhoneColumn = "phones"
	}
	if c.Sheets.EmailStatusColumn == "" {
		c.Sheets.EmailStatusColumn = "email_status"
	}
	if c.Sheets.WhatsAppStatusColumn == "" {
		c.Sheets.WhatsAppStatusColumn = "whatsapp_status"
	}
	if c.Sheets.LinkColumn == "" {
		c.Sheets.LinkColumn = "link"
	}

	if c.Apify.BaseURL == "" {
		c.Apify.BaseURL = "https://api.apify.com/v2"
	}
	if c.Apify.RunTimeout == 0 {
		c.Apify.RunTimeout = 10 * time.Minute
	}
	if c.Apify.MaxRetries == 0 {
		c.Apify.MaxRetries = 3
	}

	if c.Campaign.EmailDailyLimit == 0 {
		c.Campaign.EmailDailyLimit = 30
	}
	if c.Campaign.WhatsAppDailyLimit == 0 {
		c.Campaign.WhatsAppDailyLimit = 200
	}
	if c.Campaign.ResumeDir == "" {
		c.Campaign.ResumeDir = "."
	}

	if c.WhatsApp.Timeout == 0 {
		c.WhatsApp.Timeout = 45 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "./data/leadflow.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("sheets.spreadsheet_id is required")
	}
	if c.Sheets.Token == "" {
		return fmt.Errorf("sheets.token is required")
	}
	if c.Email.UseTLS && c.Email.UseSSL {
		return fmt.Errorf("email.use_tls and email.use_ssl are mutually exclusive")
	}
	if c.Campaign.EmailDailyLimit < 0 || c.Campaign.WhatsAppDailyLimit < 0 {
		return fmt.Errorf("campaign daily limits must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}
	return nil
}
