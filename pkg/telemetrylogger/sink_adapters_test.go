package telemetrylogger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewCallbackSink(t *testing.T) {
	var received []Record
	sink := NewCallbackSink("cb", func(r Record) error {
		received = append(received, r)
		return nil
	})

	input := Record{Timestamp: "t1", Speed: 42, Lat: 1.5, Lon: 2.5}
	if err := sink.Write(context.Background(), input); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 record, got %d", len(received))
	}
	if received[0] != input {
		t.Fatalf("mismatched record payload: %+v vs %+v", received[0], input)
	}
	if sink.Name() != "cb" {
		t.Fatalf("expected name cb, got %s", sink.Name())
	}
}

func TestNewCallbackSinkNilHandler(t *testing.T) {
	sink := NewCallbackSink("", nil)
	if err := sink.Write(context.Background(), Record{}); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
	if sink.Name() != "callback" {
		t.Fatalf("expected default name, got %s", sink.Name())
	}
}

func TestNewChannelSink(t *testing.T) {
	sink, ch, closeFn := NewChannelSink("chan", 1)
	defer closeFn()

	input := Record{Timestamp: "t2", RPM: 7}
	errCh := make(chan error, 1)

	go func() {
		errCh <- sink.Write(context.Background(), input)
	}()

	var got Record
	select {
	case got = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel record")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if got != input {
		t.Fatalf("unexpected record: %+v", got)
	}

	closeFn()
	if err := sink.Write(context.Background(), input); !errors.Is(err, ErrChannelSinkClosed) {
		t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestChannelSinkWriteHonoursContext(t *testing.T) {
	sink, _, closeFn := NewChannelSink("chan", 0)
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := sink.Write(ctx, Record{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded with no reader, got %v", err)
	}
}
