package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DataBiosphere/getm/internal/progress"
)

// Config defines configuration for the getm CLI.
type Config struct {
	// Concurrency is the number of fetch workers. Zero selects the
	// synchronous single-request path.
	Concurrency int `yaml:"concurrency"`

	// ChunkSize is the number of bytes fetched per part.
	ChunkSize int64 `yaml:"chunk_size"`

	// PoolSize is the number of shared buffers. Zero sizes the pool
	// automatically from the concurrency.
	PoolSize int `yaml:"pool_size"`

	Progress bool          `yaml:"progress"`
	Timeout  time.Duration `yaml:"timeout"`
	Retry    RetryConfig   `yaml:"retry"`
}

// RetryConfig defines per-part retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Concurrency: 4,
		ChunkSize:   1024 * 1024, // 1MiB
		PoolSize:    0,           // auto
		Timeout:     30 * time.Second,
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    500 * time.Millisecond,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and
// durations. Concurrency is a pointer so an explicit zero (synchronous
// mode) is distinguishable from an absent key.
type yamlConfig struct {
	Concurrency *int            `yaml:"concurrency"`
	ChunkSize   string          `yaml:"chunk_size"`
	PoolSize    int             `yaml:"pool_size"`
	Progress    bool            `yaml:"progress"`
	Timeout     string          `yaml:"timeout"`
	Retry       yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Concurrency != nil {
		cfg.Concurrency = *yc.Concurrency
	}
	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	if yc.PoolSize != 0 {
		cfg.PoolSize = yc.PoolSize
	}
	cfg.Progress = yc.Progress
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the GETM_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("GETM_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse GETM_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	if v := os.Getenv("GETM_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse GETM_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("GETM_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse GETM_POOL_SIZE: %w", err)
		}
		c.PoolSize = n
	}
	if v := os.Getenv("GETM_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("GETM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse GETM_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("GETM_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse GETM_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("GETM_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse GETM_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("GETM_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse GETM_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return errors.New("config: concurrency cannot be negative")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.PoolSize != 0 && c.PoolSize < c.Concurrency {
		return fmt.Errorf("config: pool_size %d is below concurrency %d", c.PoolSize, c.Concurrency)
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry.attempts cannot be negative")
	}
	return nil
}
