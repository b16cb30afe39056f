package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration shared by the Lambda
// entry point and the local dev server.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Dev server only
	HTTPPort         int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSAllowOrigins []string      `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`

	MaxHistoryMessages int `env:"MAX_HISTORY_MESSAGES" envDefault:"50"`

	// Optional SSM prefix holding <prefix>/workflow and <prefix>/rules overrides.
	ParamPrefix string `env:"PARAM_PREFIX"`

	// Optional turn journal. JOURNAL_TABLE (DynamoDB) wins over
	// JOURNAL_SQLITE_PATH (local file).
	JournalTable      string        `env:"JOURNAL_TABLE"`
	JournalSQLitePath string        `env:"JOURNAL_SQLITE_PATH"`
	JournalTTL        time.Duration `env:"JOURNAL_TTL" envDefault:"720h"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.ParamPrefix = strings.TrimSpace(cfg.ParamPrefix)
	cfg.JournalTable = strings.TrimSpace(cfg.JournalTable)
	cfg.JournalSQLitePath = strings.TrimSpace(cfg.JournalSQLitePath)
	origins := cfg.CORSAllowOrigins[:0]
	for _, o := range cfg.CORSAllowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSAllowOrigins = origins

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: HTTP_PORT must be in 1..65535, got %d", c.HTTPPort)
	}
	if c.MaxHistoryMessages <= 0 {
		return fmt.Errorf("config: MAX_HISTORY_MESSAGES must be positive, got %d", c.MaxHistoryMessages)
	}
	if c.JournalTTL <= 0 {
		return fmt.Errorf("config: JOURNAL_TTL must be positive, got %s", c.JournalTTL)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

// NeedsAWS reports whether any AWS-backed feature is enabled.
func (c *Config) NeedsAWS() bool {
	return c.ParamPrefix != "" || c.JournalTable != ""
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown LOG_LEVEL %q", s)
	}
}
