package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/moment/internal/backoff"
	"github.com/srg/moment/internal/device"
)

// Config holds application configuration
type Config struct {
	LogLevel    string      `yaml:"log_level" default:"info"`
	Identifiers Identifiers `yaml:"identifiers"`
	Retry       Retry       `yaml:"retry"`
	Payload     Payload     `yaml:"payload"`
	Scan        Scan        `yaml:"scan"`
}

// Identifiers are the Moment GATT identifiers
type Identifiers struct {
	FilterService       string `yaml:"filter_service" default:"00009B69-58FD-0A19-9B69-4CF88FC7B8DA"`
	DataService         string `yaml:"data_service" default:"00009B6A-58FD-0A19-9B69-4CF88FC7B8DA"`
	WriteCharacteristic string `yaml:"write_characteristic" default:"00009B6B-58FD-0A19-9B69-4CF88FC7B8DA"`
}

// Retry bounds every backoff-guarded stage and chunk write
type Retry struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"10"`
	InitialDelay time.Duration `yaml:"initial_delay" default:"2s"`
}

// Payload configures code uploads
type Payload struct {
	ChunkSize       int           `yaml:"chunk_size" default:"19"`
	Pace            time.Duration `yaml:"pace" default:"0s"`
	WithoutResponse bool          `yaml:"without_response" default:"false"`
}

// Scan configures device discovery
type Scan struct {
	Timeout         time.Duration `yaml:"timeout" default:"10s"`
	AllowDuplicates bool          `yaml:"allow_duplicates" default:"false"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Fields missing from the file keep their default.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and identifier formats
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if _, err := device.ValidateUUID(c.Identifiers.FilterService, c.Identifiers.DataService, c.Identifiers.WriteCharacteristic); err != nil {
		errs = append(errs, fmt.Errorf("identifiers: %w", err))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 0, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("retry.initial_delay must be >= 0, got %s", c.Retry.InitialDelay))
	}
	if c.Payload.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("payload.chunk_size must be > 0, got %d", c.Payload.ChunkSize))
	}
	if c.Payload.Pace < 0 {
		errs = append(errs, fmt.Errorf("payload.pace must be >= 0, got %s", c.Payload.Pace))
	}
	if c.Scan.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("scan.timeout must be > 0, got %s", c.Scan.Timeout))
	}

	return errors.Join(errs...)
}

// Level parses LogLevel
func (c *Config) Level() (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	return lvl, nil
}

// RetryPolicy returns the backoff policy for stages and writes
func (c *Config) RetryPolicy() backoff.Policy {
	return backoff.Policy{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: c.Retry.InitialDelay,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	lvl, _ := c.Level()
	logger.SetLevel(lvl)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
