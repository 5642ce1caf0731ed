package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ghalamif/TelemetryLogger/internal/codec"
	"github.com/ghalamif/TelemetryLogger/internal/domain"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

// Stats is a point-in-time copy of a session's counters.
type Stats struct {
	Frames           uint64
	Records          uint64
	DecodeErrors     uint64
	ValidationErrors uint64
	OversizedFrames  uint64
	SinkFailures     uint64
	Reconnects       uint64
}

// Session is the single sequential ingestion loop: receive a chunk, frame
// it, decode each frame, persist, then sample. Only Run mutates it; Stats
// may be read from any goroutine.
type Session struct {
	id      string
	src     ports.Source
	framer  *codec.Framer
	writer  *SinkWriter
	monitor *Monitor
	obs     ports.Observability

	packets          atomic.Uint64
	frames           atomic.Uint64
	decodeErrors     atomic.Uint64
	validationErrors atomic.Uint64
	oversized        atomic.Uint64
	sinkFailures     atomic.Uint64
	reconnects       atomic.Uint64
}

func NewSession(src ports.Source, framer *codec.Framer, writer *SinkWriter, monitor *Monitor, obs ports.Observability) *Session {
	if obs == nil {
		obs = nopObs{}
	}
	if monitor == nil {
		monitor = NewMonitor(nil, 0, 0)
	}
	return &Session{
		id:      uuid.NewString(),
		src:     src,
		framer:  framer,
		writer:  writer,
		monitor: monitor,
		obs:     obs,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Stats() Stats {
	return Stats{
		Frames:           s.frames.Load(),
		Records:          s.packets.Load(),
		DecodeErrors:     s.decodeErrors.Load(),
		ValidationErrors: s.validationErrors.Load(),
		OversizedFrames:  s.oversized.Load(),
		SinkFailures:     s.sinkFailures.Load(),
		Reconnects:       s.reconnects.Load(),
	}
}

// Run connects if needed and processes the stream until ctx is cancelled
// (returns nil) or reconnecting is exhausted (returns the fatal error).
// Frames already received when ctx is cancelled are still persisted.
func (s *Session) Run(ctx context.Context) error {
	s.obs.LogInfo("session_started", s.field())

	if s.src.State() != ports.StateStreaming {
		if err := s.src.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.obs.LogWarn("source_connect_failed", err, s.field())
			if err := s.reconnect(ctx); err != nil {
				return err
			}
		}
	}

	for {
		if ctx.Err() != nil {
			s.stopped()
			return nil
		}

		chunk, err := s.src.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.stopped()
				return nil
			}
			if !errors.Is(err, domain.ErrConnectionLost) {
				s.obs.LogCritical("source_receive_failed", err, s.field())
				return err
			}

			dropped := s.framer.Reset()
			s.obs.SetGauge("telemetry_framer_buffered_bytes", 0)
			s.obs.LogWarn("connection_lost", err, s.field(),
				ports.Field{Key: "discarded_bytes", Value: dropped})
			if err := s.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		s.handleChunk(ctx, chunk)
	}
}

func (s *Session) reconnect(ctx context.Context) error {
	s.reconnects.Add(1)
	err := s.src.Reconnect(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		s.stopped()
		return nil
	}
	s.obs.LogCritical("reconnect_exhausted", err, s.field())
	return err
}

func (s *Session) handleChunk(ctx context.Context, chunk []byte) {
	frames, err := s.framer.Push(chunk)
	if err != nil {
		var oe *codec.OversizeError
		if errors.As(err, &oe) {
			s.oversized.Add(uint64(oe.Dropped))
			s.obs.IncCounter("telemetry_oversized_frames_total", float64(oe.Dropped))
		}
		s.obs.LogWarn("frame_dropped", err, s.field())
	}
	s.obs.SetGauge("telemetry_framer_buffered_bytes", float64(s.framer.Buffered()))

	// Persistence must finish for the record in flight even when ctx is
	// cancelled mid-chunk.
	persistCtx := context.WithoutCancel(ctx)

	for _, frame := range frames {
		s.frames.Add(1)
		s.obs.IncCounter("telemetry_frames_total", 1)

		rec, ok, err := codec.Decode(frame)
		if err != nil {
			s.rejected(err, len(frame))
			continue
		}
		if !ok {
			continue
		}

		n := s.packets.Add(1)
		s.obs.IncCounter("telemetry_records_total", 1)

		if err := s.writer.Write(persistCtx, rec); err != nil {
			s.sinkFailures.Add(1)
		}
		s.monitor.Observe(n, rec)
	}
}

func (s *Session) rejected(err error, size int) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		s.validationErrors.Add(1)
		s.obs.IncCounter("telemetry_validation_errors_total", 1)
		s.obs.LogWarn("frame_validation_failed", err, s.field(),
			ports.Field{Key: "field", Value: verr.Field})
		return
	}
	s.decodeErrors.Add(1)
	s.obs.IncCounter("telemetry_decode_errors_total", 1)
	s.obs.LogWarn("frame_decode_failed", err, s.field(),
		ports.Field{Key: "frame_bytes", Value: size})
}

func (s *Session) stopped() {
	st := s.Stats()
	s.obs.LogInfo("session_stopped", s.field(),
		ports.Field{Key: "records", Value: st.Records},
		ports.Field{Key: "frames", Value: st.Frames})
}

func (s *Session) field() ports.Field {
	return ports.Field{Key: "session_id", Value: s.id}
}

type nopObs struct{}

func (nopObs) LogInfo(string, ...ports.Field)                {}
func (nopObs) LogWarn(string, error, ...ports.Field)         {}
func (nopObs) LogError(string, error, ...ports.Field)        {}
func (nopObs) LogCritical(string, error, ...ports.Field)     {}
func (nopObs) IncCounter(string, float64, ...string)         {}
func (nopObs) ObserveLatency(string, float64, ...string)     {}
func (nopObs) SetGauge(string, float64, ...string)           {}
func (nopObs) RecordDeadLetter(ports.DeadLetterEntry, error) {}
