// Package config loads runtime configuration from the environment and
// agency configuration from YAML files.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. SALESPULSE_DATABASE_URL.
const Prefix = "salespulse"

// Database holds the libsql connection settings.
type Database struct {
	URL       string `envconfig:"DATABASE_URL" required:"true"`
	AuthToken string `envconfig:"AUTH_TOKEN"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

// OTel configures the OTLP metrics exporter.
type OTel struct {
	Enabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	Endpoint string `envconfig:"OTEL_ENDPOINT" default:"localhost:4317"`
	Insecure bool   `envconfig:"OTEL_INSECURE" default:"true"`
}

// Pipeline tunes the aggregation pipeline.
type Pipeline struct {
	StreakWindowDays int `envconfig:"STREAK_WINDOW_DAYS" default:"30"`
	EventBuffer      int `envconfig:"EVENT_BUFFER" default:"256"`
}

// HTTP configures the API server.
type HTTP struct {
	Port int `envconfig:"HTTP_PORT" default:"8080"`
}

// Config is the full runtime configuration.
type Config struct {
	Database Database
	Log      Log
	OTel     OTel
	Pipeline Pipeline
	HTTP     HTTP
}

// LoadDatabase loads only the database settings.
func LoadDatabase() (*Database, error) {
	var db Database
	if err := envconfig.Process(Prefix, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

// LoadLog loads only the log settings. It never requires a database.
func LoadLog() (*Log, error) {
	var l Log
	if err := envconfig.Process(Prefix, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Load loads and validates the full configuration.
func Load() (*Config, error) {
	var cfg Config
	sections := []any{&cfg.Database, &cfg.Log, &cfg.OTel, &cfg.Pipeline, &cfg.HTTP}
	for _, s := range sections {
		if err := envconfig.Process(Prefix, s); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges envconfig cannot express.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Pipeline.StreakWindowDays < 1 {
		return fmt.Errorf("streak window must be at least one day, got %d", c.Pipeline.StreakWindowDays)
	}
	if c.Pipeline.EventBuffer < 1 {
		return fmt.Errorf("event buffer must be positive, got %d", c.Pipeline.EventBuffer)
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port %d", c.HTTP.Port)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
