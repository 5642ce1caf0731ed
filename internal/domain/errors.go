package domain

import (
	"errors"
	"fmt"
)

// ErrConnectionLost is returned when the peer closes or resets the stream.
var ErrConnectionLost = errors.New("telemetry: connection lost")

// ConnectionError reports a failed connect attempt to the telemetry source.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ReconnectExhaustedError is fatal: the source stayed unreachable for every
// allowed attempt.
type ReconnectExhaustedError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ReconnectExhaustedError) Error() string {
	return fmt.Sprintf("reconnect %s: gave up after %d attempts: %v", e.Addr, e.Attempts, e.Err)
}

func (e *ReconnectExhaustedError) Unwrap() error { return e.Err }

// DecodeError marks a frame that is not a well-formed JSON object.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError marks a parsed document with a missing or mistyped field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate field %q: %s", e.Field, e.Reason)
}

// SinkWriteError is returned once a sink has exhausted its write attempts
// for a single record.
type SinkWriteError struct {
	Sink     string
	Attempts int
	Err      error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("sink %s: write failed after %d attempts: %v", e.Sink, e.Attempts, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// ConfigurationError is fatal and stops the process before ingestion starts.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsFatal reports whether err must stop the process rather than a single
// record.
func IsFatal(err error) bool {
	var exhausted *ReconnectExhaustedError
	var cfgErr *ConfigurationError
	return errors.As(err, &exhausted) || errors.As(err, &cfgErr)
}
