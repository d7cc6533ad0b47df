package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the notifier.
type Config struct {
	DataDir     string
	DatabaseURL string
	UseDatabase bool

	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPUseTLS    bool
	FromEmail     string
	WebhookSender string

	SummaryHour     int
	OverdueInterval time.Duration
	Timezone        string
	LogLevel        string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		DataDir:         strings.TrimSpace(os.Getenv("DATA_DIR")),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		UseDatabase:     parseBool(os.Getenv("USE_DATABASE"), true),
		SMTPHost:        strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:        parseInt(os.Getenv("SMTP_PORT"), 587),
		SMTPUsername:    strings.TrimSpace(os.Getenv("SMTP_USERNAME")),
		SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
		SMTPUseTLS:      parseBool(os.Getenv("SMTP_USE_TLS"), true),
		FromEmail:       strings.TrimSpace(os.Getenv("NOTIFY_FROM_EMAIL")),
		WebhookSender:   strings.TrimSpace(os.Getenv("WEBHOOK_SENDER_NAME")),
		SummaryHour:     parseInt(os.Getenv("NOTIFY_SUMMARY_HOUR"), 7),
		OverdueInterval: time.Duration(parseInt(os.Getenv("OVERDUE_INTERVAL_MINUTES"), 30)) * time.Minute,
		Timezone:        strings.TrimSpace(os.Getenv("TIMEZONE")),
		LogLevel:        strings.TrimSpace(os.Getenv("LOG_LEVEL")),
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "crewtrack.db"
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = "notifications@crewtrack.local"
	}
	if cfg.WebhookSender == "" {
		cfg.WebhookSender = "CrewTrack"
	}
	if cfg.SummaryHour < 0 || cfg.SummaryHour > 23 {
		cfg.SummaryHour = 7
	}
	if cfg.OverdueInterval <= 0 {
		cfg.OverdueInterval = 30 * time.Minute
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Location resolves the configured timezone. Dates like "today" are always
// evaluated in this location so a run near midnight is unambiguous.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func parseInt(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseBool(raw string, def bool) bool {
	raw = strings.TrimSpace(strings.ToLower(raw))
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
