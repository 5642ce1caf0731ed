package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/TelemetryLogger/internal/adapters/sink"
	"github.com/ghalamif/TelemetryLogger/internal/adapters/tcpsource"
	"github.com/ghalamif/TelemetryLogger/internal/domain"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

type Config struct {
	Source     tcpsource.Config `yaml:"source"`
	Tabular    TabularConfig    `yaml:"tabular"`
	Relational RelationalConfig `yaml:"relational"`
	Sinks      SinksConfig      `yaml:"sinks"`
	Sampling   SamplingConfig   `yaml:"sampling"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

type TabularConfig struct {
	Path   string `yaml:"path"`
	NoSync bool   `yaml:"no_sync"`
}

type RelationalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

type SinksConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// RetryPolicy converts the section into the pipeline's retry bound.
func (s SinksConfig) RetryPolicy() ports.RetryPolicy {
	return ports.RetryPolicy{MaxAttempts: s.MaxAttempts, Backoff: s.RetryBackoff}
}

// SamplingConfig drives the console preview. A negative max_samples turns
// the preview off.
type SamplingConfig struct {
	Interval   int `yaml:"interval"`
	MaxSamples int `yaml:"max_samples"`
}

type DeadLetterConfig struct {
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
}

type MetricsConfig struct {
	Addr     string `yaml:"addr"`
	Disabled bool   `yaml:"disabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, defaults and validates a YAML config file. Every failure is
// a *domain.ConfigurationError.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Op: "config", Err: err}
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &domain.ConfigurationError{Op: "config", Err: err}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, &domain.ConfigurationError{Op: "config", Err: err}
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Tabular.Path == "" {
		c.Tabular.Path = "./data/telemetry_log.csv"
	}
	if c.Relational.Driver == "" {
		c.Relational.Driver = string(sink.DialectSQLite)
	}
	if c.Relational.DSN == "" && c.Relational.Driver == string(sink.DialectSQLite) {
		c.Relational.DSN = "./data/telemetry.db"
	}
	if c.Relational.Table == "" {
		c.Relational.Table = "telemetry"
	}
	if c.Sinks.MaxAttempts == 0 {
		c.Sinks.MaxAttempts = 3
	}
	if c.Sinks.RetryBackoff == 0 {
		c.Sinks.RetryBackoff = 100 * time.Millisecond
	}
	if c.Sampling.Interval == 0 {
		c.Sampling.Interval = 50
	}
	if c.Sampling.MaxSamples == 0 {
		c.Sampling.MaxSamples = 5
	}
	if c.DeadLetter.Dir == "" {
		c.DeadLetter.Dir = "./data/deadletter"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	c.Source.ApplyDefaults()
}

func (c *Config) validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}
	if _, err := sink.ParseDialect(c.Relational.Driver); err != nil {
		return fmt.Errorf("relational.driver: %w", err)
	}
	if c.Relational.DSN == "" {
		return errors.New("relational.dsn is required")
	}
	if !sink.ValidTable(c.Relational.Table) {
		return fmt.Errorf("relational.table %q is not a valid identifier", c.Relational.Table)
	}
	if c.Sinks.MaxAttempts < 1 {
		return fmt.Errorf("sinks.max_attempts must be at least 1, got %d", c.Sinks.MaxAttempts)
	}
	if c.Sinks.RetryBackoff < 0 {
		return fmt.Errorf("sinks.retry_backoff must not be negative")
	}
	if c.Sampling.Interval < 1 {
		return fmt.Errorf("sampling.interval must be at least 1, got %d", c.Sampling.Interval)
	}
	if !c.DeadLetter.Disabled && c.DeadLetter.Dir == "" {
		return errors.New("dead_letter.dir is required")
	}
	if !c.Metrics.Disabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	return nil
}
