// Package config loads the data layer's YAML configuration: backend
// endpoint, cache tuning, and pinned background refreshes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	// PinnedQueries are cache keys refreshed on a schedule regardless of
	// observers, e.g. the home screen's featured listings.
	PinnedQueries []PinnedQuery `yaml:"pinned_queries"`
}

// BackendConfig points at the Supabase-compatible backend.
type BackendConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// Resilient enables the retrying, circuit-breaking transport.
	Resilient bool `yaml:"resilient"`
}

// CacheConfig tunes the query cache. Durations are Go duration strings.
type CacheConfig struct {
	SweepInterval  string `yaml:"sweep_interval"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
	RetryMaxDelay  string `yaml:"retry_max_delay"`
}

// MetricsConfig controls the metrics endpoint of the demo binary.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// PinnedQuery schedules a background refresh for a cache key.
type PinnedQuery struct {
	Key      string `yaml:"key"`
	Schedule string `yaml:"schedule"`
}

// Load reads config/datalayer.yaml.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join("config", "datalayer.yaml"))
}

// LoadFromPath reads and validates configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration or returns defaults if the file is
// absent or invalid.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns a configuration suitable for local development against a
// local Supabase stack.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:            "http://localhost:54321",
			APIKey:         "local-dev-key",
			TimeoutSeconds: 30,
			Resilient:      true,
		},
		Cache: CacheConfig{
			SweepInterval:  "1m",
			RetryBaseDelay: "1s",
			RetryMaxDelay:  "30s",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9090",
		},
	}
}

func (c *Config) validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("backend.api_key is required")
	}
	for _, field := range []struct{ name, value string }{
		{"cache.sweep_interval", c.Cache.SweepInterval},
		{"cache.retry_base_delay", c.Cache.RetryBaseDelay},
		{"cache.retry_max_delay", c.Cache.RetryMaxDelay},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	for i, p := range c.PinnedQueries {
		if p.Key == "" || p.Schedule == "" {
			return fmt.Errorf("pinned_queries[%d]: key and schedule are required", i)
		}
	}
	return nil
}

// Timeout returns the backend request timeout.
func (c *BackendConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Duration parses the named duration field, falling back when unset.
func duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// SweepEvery returns the cache sweep interval.
func (c *CacheConfig) SweepEvery() time.Duration { return duration(c.SweepInterval, time.Minute) }

// RetryBase returns the first retry backoff step.
func (c *CacheConfig) RetryBase() time.Duration { return duration(c.RetryBaseDelay, time.Second) }

// RetryMax returns the retry backoff cap.
func (c *CacheConfig) RetryMax() time.Duration { return duration(c.RetryMaxDelay, 30*time.Second) }
