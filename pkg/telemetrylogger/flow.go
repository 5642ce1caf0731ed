package telemetrylogger

import (
	"context"
	"errors"
	"io"
)

// Flow reads a logger setup left to right: load the config, pick where
// telemetry comes from, pick where records go, run.
//
//	flow, _ := telemetrylogger.Conf("data/config.yaml")
//	err := flow.StreamIN(StreamInSource(sim)).Run(ctx, StreamOutConsole(nil))
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption adjusts a Flow right after its config is loaded.
type FlowOption func(*Flow)

// StreamInOption overrides the ingest side: the stream source and the
// observability backend it reports to.
type StreamInOption RuntimeOption

// StreamOutOption overrides the persistence side: sinks, dead-letter
// store and the sampling console.
type StreamOutOption RuntimeOption

var errNilFlow = errors.New("telemetrylogger: flow is nil")

// Conf reads the YAML config at path and starts a Flow from it.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig starts a Flow from a config built in code.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, &ConfigurationError{Op: "flow", Err: errors.New("config is required")}
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config exposes the loaded config; edits made before StreamOUT take effect.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options queues runtime options directly.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.add(opts...)
	return f
}

func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		f.add(RuntimeOption(opt))
	}
	return f
}

// StreamOUT applies the output overrides and opens the Runtime. Default
// adapters that were not overridden are opened here.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Runtime, error) {
	if f == nil {
		return nil, errNilFlow
	}
	for _, opt := range opts {
		f.add(RuntimeOption(opt))
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run opens the Runtime and ingests until ctx is cancelled.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func (f *Flow) add(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.add(opts...)
		}
	}
}

// StreamInSource reads telemetry from src instead of dialing source.addr.
func StreamInSource(src Source) StreamInOption {
	if src == nil {
		return nil
	}
	return StreamInOption(WithSource(src))
}

func StreamInObservability(obs Observability) StreamInOption {
	if obs == nil {
		return nil
	}
	return StreamInOption(WithObservability(obs))
}

// StreamOutTabular stands in for the CSV file.
func StreamOutTabular(s Sink) StreamOutOption {
	if s == nil {
		return nil
	}
	return StreamOutOption(WithTabularSink(s))
}

// StreamOutRelational stands in for the SQL table.
func StreamOutRelational(s Sink) StreamOutOption {
	if s == nil {
		return nil
	}
	return StreamOutOption(WithRelationalSink(s))
}

// StreamOutSink writes every record to s as well, after the two stores.
func StreamOutSink(s Sink) StreamOutOption {
	if s == nil {
		return nil
	}
	return StreamOutOption(WithSink(s))
}

func StreamOutDeadLetter(dl DeadLetter) StreamOutOption {
	if dl == nil {
		return nil
	}
	return StreamOutOption(WithDeadLetter(dl))
}

// StreamOutConsole sends the sample preview to w; nil turns it off.
func StreamOutConsole(w io.Writer) StreamOutOption {
	return StreamOutOption(WithConsole(w))
}

func StreamOutObservability(obs Observability) StreamOutOption {
	if obs == nil {
		return nil
	}
	return StreamOutOption(WithObservability(obs))
}

// StreamOutCallback hands every persisted record to fn under the given sink name.
func StreamOutCallback(name string, fn RecordHandler) StreamOutOption {
	return StreamOutOption(WithSink(NewCallbackSink(name, fn)))
}
