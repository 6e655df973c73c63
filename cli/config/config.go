package config

import (
	"fmt"
	"time"
)

// Config represents a spool.yaml configuration file.
// All values are optional; CLI flags always override them.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Download DownloadConfig `yaml:"download"`
	Adapter  AdapterConfig  `yaml:"adapter"`
	Log      LogConfig      `yaml:"log"`
}

// StoreConfig selects and configures the chunk store backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// DownloadConfig tunes the download engine. Zero values take the
// engine defaults.
type DownloadConfig struct {
	Concurrency    int       `yaml:"concurrency"`
	FragmentSize   int       `yaml:"fragment_size"`
	MaxInFlight    int       `yaml:"max_in_flight"`
	StallTimeout   *Duration `yaml:"stall_timeout,omitempty"`
	AssembleWindow int       `yaml:"assemble_window"`
	CacheAssembled bool      `yaml:"cache_assembled"`
	UserAgent      string    `yaml:"user_agent"`
}

// AdapterConfig configures the downstream notification adapter.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultStallTimeout applies when download.stall_timeout is absent.
const DefaultStallTimeout = 2 * time.Minute

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// StallTimeoutOrDefault returns the configured stall timeout. An explicit "0s"
// disables the watchdog.
func (c *DownloadConfig) StallTimeoutOrDefault() time.Duration {
	if c.StallTimeout == nil {
		return DefaultStallTimeout
	}
	return c.StallTimeout.Duration
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "", "fs", "s3", "redis", "memory":
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.RedisURL == "" {
		return fmt.Errorf("store.redis_url: required for redis backend")
	}
	d := c.Download
	if d.Concurrency < 0 || d.FragmentSize < 0 || d.MaxInFlight < 0 || d.AssembleWindow < 0 {
		return fmt.Errorf("download: negative values are not allowed")
	}
	if d.StallTimeout != nil && d.StallTimeout.Duration < 0 {
		return fmt.Errorf("download.stall_timeout: must not be negative")
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type: unknown adapter %q", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url: required for %s adapter", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries: must not be negative")
	}
	return nil
}
