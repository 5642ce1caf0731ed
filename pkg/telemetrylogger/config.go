package telemetrylogger

import (
	"github.com/ghalamif/TelemetryLogger/internal/adapters/tcpsource"
	"github.com/ghalamif/TelemetryLogger/internal/app/config"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// SourceConfig holds the stream endpoint and reconnect policy.
	SourceConfig = tcpsource.Config
	// ReconnectConfig bounds the reconnect backoff cycle.
	ReconnectConfig = tcpsource.ReconnectConfig
	// TabularConfig configures the CSV sink.
	TabularConfig = config.TabularConfig
	// RelationalConfig configures the SQL sink.
	RelationalConfig = config.RelationalConfig
	// SinksConfig bounds per-sink write retries.
	SinksConfig = config.SinksConfig
	// SamplingConfig drives the console preview.
	SamplingConfig = config.SamplingConfig
	// DeadLetterConfig configures the on-disk dead-letter log.
	DeadLetterConfig = config.DeadLetterConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// LogConfig selects log level and format.
	LogConfig = config.LogConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig reads YAML from memory, applying defaults and validation.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}

// DefaultConfig returns a valid configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
