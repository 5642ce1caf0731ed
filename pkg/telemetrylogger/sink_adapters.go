package telemetrylogger

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("telemetrylogger: channel sink closed")

// NewCallbackSink adapts a RecordHandler into a full Sink implementation so
// callers can plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn RecordHandler) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes records via a channel; it returns the sink, the
// read-only channel, and a close function the caller should invoke during
// shutdown. A full channel blocks the ingestion loop until ctx is done.
func NewChannelSink(name string, buffer int) (Sink, <-chan Record, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Record, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   RecordHandler
}

func (s *callbackSink) Write(_ context.Context, r Record) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	return s.fn(r)
}

func (s *callbackSink) Name() string { return s.name }
func (s *callbackSink) Close() error { return nil }

type channelSink struct {
	name   string
	mu     sync.RWMutex
	ch     chan Record
	closed chan struct{}
	once   sync.Once
	chOnce sync.Once
}

func (s *channelSink) Write(ctx context.Context, r Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- r:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

// Close stops accepting records; the channel itself is closed by the
// function returned from NewChannelSink.
func (s *channelSink) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *channelSink) close() {
	_ = s.Close()
	s.chOnce.Do(func() {
		// Writers blocked on send observe closed and release the read lock.
		s.mu.Lock()
		defer s.mu.Unlock()
		close(s.ch)
	})
}
