// Package config loads pipeline tunables from YAML, environment, and defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults tuned for OpenRouter-class throughput against a paid LLM API:
// 50 workers balances speed against provider rate limits.
const (
	DefaultModel                 = "gemini-2.5-flash"
	DefaultWorkers               = 50
	DefaultMaxAttempts           = 5
	DefaultRequestTimeoutSeconds = 180
	DefaultCheckpointEvery       = 10
	DefaultBackoffBaseSeconds    = 2
	DefaultBackoffMinSeconds     = 2
	DefaultBackoffMaxSeconds     = 60
)

// Config holds every tunable for the enrichment pipeline. The API credential
// (GEMINI_API_KEY) is deliberately not part of this struct: it is read from the
// environment at enricher construction time and never written to disk.
type Config struct {
	Model                 string  `yaml:"model"`
	Workers               int     `yaml:"workers"`
	MaxAttempts           int     `yaml:"max_attempts"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	RateLimitRPS          float64 `yaml:"rate_limit_rps"`
	CheckpointEvery       int     `yaml:"checkpoint_every"`

	Backoff BackoffConfig `yaml:"backoff"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Census  CensusConfig  `yaml:"census"`
	Budget  BudgetConfig  `yaml:"budget"`
	Log     LogConfig     `yaml:"log"`
}

// BackoffConfig controls the retry delay curve: base*2^(n-2) clamped to [min, max].
type BackoffConfig struct {
	BaseSeconds int `yaml:"base_seconds"`
	MinSeconds  int `yaml:"min_seconds"`
	MaxSeconds  int `yaml:"max_seconds"`
}

type GeminiConfig struct {
	// BaseURL overrides the Gemini API endpoint. Used by tests and proxies.
	BaseURL string `yaml:"base_url"`
}

type CensusConfig struct {
	BaseURL   string `yaml:"base_url"`
	Year      int    `yaml:"year"`
	CachePath string `yaml:"cache_path"`
}

type BudgetConfig struct {
	RegistryPath string `yaml:"registry_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads the YAML config at path, expands ${ENV} references, applies
// JOBENRICH_* environment overrides, then fills defaults. An empty path skips
// the file and uses environment + defaults only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Model == "" {
		c.Model = envString("JOBENRICH_MODEL", "")
	}
	if c.Workers == 0 {
		if c.Workers, err = envInt("JOBENRICH_WORKERS", 0); err != nil {
			return err
		}
	}
	if c.MaxAttempts == 0 {
		if c.MaxAttempts, err = envInt("JOBENRICH_MAX_ATTEMPTS", 0); err != nil {
			return err
		}
	}
	if c.RequestTimeoutSeconds == 0 {
		if c.RequestTimeoutSeconds, err = envInt("JOBENRICH_REQUEST_TIMEOUT_SECONDS", 0); err != nil {
			return err
		}
	}
	if c.RateLimitRPS == 0 {
		if c.RateLimitRPS, err = envFloat("JOBENRICH_RATE_LIMIT_RPS", 0); err != nil {
			return err
		}
	}
	if c.CheckpointEvery == 0 {
		if c.CheckpointEvery, err = envInt("JOBENRICH_CHECKPOINT_EVERY", 0); err != nil {
			return err
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = envString("JOBENRICH_LOG_LEVEL", "")
	}
	if c.Log.File == "" {
		c.Log.File = envString("JOBENRICH_LOG_FILE", "")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if c.CheckpointEvery == 0 {
		c.CheckpointEvery = DefaultCheckpointEvery
	}
	if c.Backoff.BaseSeconds == 0 {
		c.Backoff.BaseSeconds = DefaultBackoffBaseSeconds
	}
	if c.Backoff.MinSeconds == 0 {
		c.Backoff.MinSeconds = DefaultBackoffMinSeconds
	}
	if c.Backoff.MaxSeconds == 0 {
		c.Backoff.MaxSeconds = DefaultBackoffMaxSeconds
	}
	if c.Census.BaseURL == "" {
		c.Census.BaseURL = "https://api.census.gov"
	}
	if c.Census.Year == 0 {
		c.Census.Year = 2022
	}
	if c.Census.CachePath == "" {
		c.Census.CachePath = ".cache/census.db"
	}
	if c.Budget.RegistryPath == "" {
		c.Budget.RegistryPath = "data/processed/municipal_budgets.csv"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", c.Workers)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("request_timeout_seconds must be >= 1 (got %d)", c.RequestTimeoutSeconds)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate_limit_rps must be >= 0 (got %g)", c.RateLimitRPS)
	}
	if c.CheckpointEvery < 1 {
		return fmt.Errorf("checkpoint_every must be >= 1 (got %d)", c.CheckpointEvery)
	}
	if c.Backoff.BaseSeconds < 1 || c.Backoff.MinSeconds < 0 || c.Backoff.MaxSeconds < 1 {
		return fmt.Errorf("backoff seconds must be positive")
	}
	if c.Backoff.MinSeconds > c.Backoff.MaxSeconds {
		return fmt.Errorf("backoff min_seconds %d exceeds max_seconds %d",
			c.Backoff.MinSeconds, c.Backoff.MaxSeconds)
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Backoff.BaseSeconds) * time.Second
}

func (c *Config) BackoffMin() time.Duration {
	return time.Duration(c.Backoff.MinSeconds) * time.Second
}

func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Backoff.MaxSeconds) * time.Second
}

func envString(name, fallback string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", name, raw, err)
	}
	return v, nil
}

func envFloat(name string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", name, raw, err)
	}
	return v, nil
}
