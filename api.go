package telemetrylogger

import (
	"context"
	"io"

	base "github.com/ghalamif/TelemetryLogger/pkg/telemetrylogger"
)

// Re-exported errors for convenience.
var (
	ErrConnectionLost    = base.ErrConnectionLost
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrNoReplaySink      = base.ErrNoReplaySink
	ErrRuntimeClosed     = base.ErrRuntimeClosed
)

// Type aliases so consumers can import github.com/ghalamif/TelemetryLogger directly.
type (
	Config                  = base.Config
	SourceConfig            = base.SourceConfig
	ReconnectConfig         = base.ReconnectConfig
	TabularConfig           = base.TabularConfig
	RelationalConfig        = base.RelationalConfig
	SinksConfig             = base.SinksConfig
	SamplingConfig          = base.SamplingConfig
	DeadLetterConfig        = base.DeadLetterConfig
	MetricsConfig           = base.MetricsConfig
	LogConfig               = base.LogConfig
	Flow                    = base.Flow
	FlowOption              = base.FlowOption
	StreamInOption          = base.StreamInOption
	StreamOutOption         = base.StreamOutOption
	Runtime                 = base.Runtime
	RuntimeOption           = base.RuntimeOption
	Record                  = base.Record
	RecordHandler           = base.RecordHandler
	Source                  = base.Source
	ConnState               = base.ConnState
	Sink                    = base.Sink
	DeadLetter              = base.DeadLetter
	DeadLetterEntry         = base.DeadLetterEntry
	DeadLetterStats         = base.DeadLetterStats
	EntryID                 = base.EntryID
	Observability           = base.Observability
	Field                   = base.Field
	Stats                   = base.Stats
	StoredRecord            = base.StoredRecord
	Reader                  = base.Reader
	ReplayResult            = base.ReplayResult
	ConnectionError         = base.ConnectionError
	ReconnectExhaustedError = base.ReconnectExhaustedError
	DecodeError             = base.DecodeError
	ValidationError         = base.ValidationError
	SinkWriteError          = base.SinkWriteError
	ConfigurationError      = base.ConfigurationError
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

func IsFatal(err error) bool {
	return base.IsFatal(err)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSource(src Source) StreamInOption {
	return base.StreamInSource(src)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutTabular(s Sink) StreamOutOption {
	return base.StreamOutTabular(s)
}

func StreamOutRelational(s Sink) StreamOutOption {
	return base.StreamOutRelational(s)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutDeadLetter(dl DeadLetter) StreamOutOption {
	return base.StreamOutDeadLetter(dl)
}

func StreamOutConsole(w io.Writer) StreamOutOption {
	return base.StreamOutConsole(w)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn RecordHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithSource(src Source) RuntimeOption {
	return base.WithSource(src)
}

func WithTabularSink(s Sink) RuntimeOption {
	return base.WithTabularSink(s)
}

func WithRelationalSink(s Sink) RuntimeOption {
	return base.WithRelationalSink(s)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithDeadLetter(dl DeadLetter) RuntimeOption {
	return base.WithDeadLetter(dl)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithConsole(w io.Writer) RuntimeOption {
	return base.WithConsole(w)
}

// Sink adapters.
func NewCallbackSink(name string, fn RecordHandler) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan Record, func()) {
	return base.NewChannelSink(name, buffer)
}

// Dead-letter replay and storage reads.
func Replay(ctx context.Context, dl DeadLetter, sinks []Sink, obs Observability) (ReplayResult, error) {
	return base.Replay(ctx, dl, sinks, obs)
}

func OpenReader(ctx context.Context, cfg *Config) (*Reader, func() error, error) {
	return base.OpenReader(ctx, cfg)
}

// The openers below return interfaces; on error the result is a nil
// interface, never a typed nil.
func OpenTabularSink(cfg *Config) (Sink, error) {
	s, err := base.OpenTabularSink(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func OpenRelationalSink(ctx context.Context, cfg *Config) (Sink, error) {
	s, err := base.OpenRelationalSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func OpenDeadLetter(cfg *Config) (DeadLetter, error) {
	dl, err := base.OpenDeadLetter(cfg)
	if err != nil {
		return nil, err
	}
	return dl, nil
}

func FormatRow(r Record) string {
	return base.FormatRow(r)
}
