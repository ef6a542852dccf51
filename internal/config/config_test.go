package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SALESPULSE_DATABASE_URL", "file:test.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.URL != "file:test.db" {
		t.Errorf("unexpected database URL %q", cfg.Database.URL)
	}
	if cfg.Pipeline.StreakWindowDays != 30 {
		t.Errorf("expected default streak window 30, got %d", cfg.Pipeline.StreakWindowDays)
	}
	if cfg.Pipeline.EventBuffer != 256 {
		t.Errorf("expected default event buffer 256, got %d", cfg.Pipeline.EventBuffer)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.OTel.Enabled {
		t.Error("OTel must be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SALESPULSE_DATABASE_URL", "libsql://example.turso.io")
	t.Setenv("SALESPULSE_AUTH_TOKEN", "secret")
	t.Setenv("SALESPULSE_STREAK_WINDOW_DAYS", "14")
	t.Setenv("SALESPULSE_LOG_FORMAT", "json")
	t.Setenv("SALESPULSE_OTEL_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.AuthToken != "secret" {
		t.Errorf("expected auth token, got %q", cfg.Database.AuthToken)
	}
	if cfg.Pipeline.StreakWindowDays != 14 {
		t.Errorf("expected streak window 14, got %d", cfg.Pipeline.StreakWindowDays)
	}
	if cfg.Log.Format != "json" || !cfg.OTel.Enabled {
		t.Errorf("overrides not applied: %+v %+v", cfg.Log, cfg.OTel)
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("SALESPULSE_DATABASE_URL", "unused")
	os.Unsetenv("SALESPULSE_DATABASE_URL")

	if _, err := Load(); err == nil {
		t.Error("expected error without a database URL")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Database: Database{URL: "file:test.db"},
		Log:      Log{Format: "text"},
		Pipeline: Pipeline{StreakWindowDays: 30, EventBuffer: 1},
		HTTP:     HTTP{Port: 8080},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	bad := base
	bad.Pipeline.StreakWindowDays = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero streak window")
	}

	bad = base
	bad.Log.Format = "xml"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown log format")
	}
}
