package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Fatalf("Model = %q, want %q", cfg.Model, DefaultModel)
	}
	if cfg.Workers != DefaultWorkers {
		t.Fatalf("Workers = %d, want %d", cfg.Workers, DefaultWorkers)
	}
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("MaxAttempts = %d, want %d", cfg.MaxAttempts, DefaultMaxAttempts)
	}
	if got := cfg.RequestTimeout(); got != 180*time.Second {
		t.Fatalf("RequestTimeout = %v, want 180s", got)
	}
	if got := cfg.BackoffBase(); got != 2*time.Second {
		t.Fatalf("BackoffBase = %v, want 2s", got)
	}
	if got := cfg.BackoffMax(); got != 60*time.Second {
		t.Fatalf("BackoffMax = %v, want 60s", got)
	}
	if cfg.CheckpointEvery != 10 {
		t.Fatalf("CheckpointEvery = %d, want 10", cfg.CheckpointEvery)
	}
	if cfg.Census.Year != 2022 {
		t.Fatalf("Census.Year = %d, want 2022", cfg.Census.Year)
	}
}

func TestLoadYAMLOverridesAndEnvExpansion(t *testing.T) {
	t.Setenv("TEST_CENSUS_CACHE_DIR", "/tmp/jobenrich-test")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
model: gemini-2.5-pro
workers: 8
rate_limit_rps: 4.5
backoff:
  base_seconds: 1
  min_seconds: 1
  max_seconds: 30
census:
  cache_path: ${TEST_CENSUS_CACHE_DIR}/census.db
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Model != "gemini-2.5-pro" {
		t.Fatalf("Model = %q", cfg.Model)
	}
	if cfg.Workers != 8 {
		t.Fatalf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.RateLimitRPS != 4.5 {
		t.Fatalf("RateLimitRPS = %g, want 4.5", cfg.RateLimitRPS)
	}
	if cfg.Census.CachePath != "/tmp/jobenrich-test/census.db" {
		t.Fatalf("Census.CachePath = %q, env not expanded", cfg.Census.CachePath)
	}
	// Unset keys still fall back to defaults.
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("MaxAttempts = %d, want default", cfg.MaxAttempts)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JOBENRICH_WORKERS", "12")
	t.Setenv("JOBENRICH_MODEL", "gemini-2.0-flash")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Workers != 12 {
		t.Fatalf("Workers = %d, want 12 from env", cfg.Workers)
	}
	if cfg.Model != "gemini-2.0-flash" {
		t.Fatalf("Model = %q, want env value", cfg.Model)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("JOBENRICH_WORKERS", "lots")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric JOBENRICH_WORKERS")
	}
	t.Setenv("JOBENRICH_WORKERS", "-3")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for negative workers")
	}
}

func TestValidateBackoffOrdering(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Backoff.MinSeconds = 90
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when min_seconds > max_seconds")
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
