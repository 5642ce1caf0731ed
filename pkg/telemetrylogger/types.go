package telemetrylogger

import (
	"github.com/ghalamif/TelemetryLogger/internal/adapters/sink"
	"github.com/ghalamif/TelemetryLogger/internal/app/pipeline"
	"github.com/ghalamif/TelemetryLogger/internal/domain"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

// Record is one decoded, validated telemetry reading. It mirrors
// internal/domain.TelemetryRecord so custom adapters can reference it.
type Record = domain.TelemetryRecord

// Source delivers raw stream bytes and owns the connection lifecycle.
type Source = ports.Source

// ConnState is the Source state machine position.
type ConnState = ports.ConnState

// Sink persists one record at a time.
type Sink = ports.Sink

// DeadLetter stores records a sink could not persist, for later replay.
type DeadLetter = ports.DeadLetter

// DeadLetterEntry is one record that exhausted its retries on a sink.
type DeadLetterEntry = ports.DeadLetterEntry

// DeadLetterStats exposes dead-letter log metadata.
type DeadLetterStats = ports.DeadLetterStats

// EntryID identifies a dead-letter entry.
type EntryID = ports.EntryID

// Observability emits structured logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Stats is a snapshot of the ingestion session counters.
type Stats = pipeline.Stats

// StoredRecord is a relational row with its primary key.
type StoredRecord = sink.StoredRecord

// Reader is the read-only view over the relational sink.
type Reader = sink.SQLReader

// RecordHandler receives every record delivered to a callback sink.
type RecordHandler func(Record) error

const (
	StateDisconnected = ports.StateDisconnected
	StateConnecting   = ports.StateConnecting
	StateStreaming    = ports.StateStreaming
)

// Error taxonomy.
type (
	ConnectionError         = domain.ConnectionError
	ReconnectExhaustedError = domain.ReconnectExhaustedError
	DecodeError             = domain.DecodeError
	ValidationError         = domain.ValidationError
	SinkWriteError          = domain.SinkWriteError
	ConfigurationError      = domain.ConfigurationError
)

// ErrConnectionLost matches errors returned when the peer drops the stream.
var ErrConnectionLost = domain.ErrConnectionLost

// IsFatal reports whether err must stop ingestion.
func IsFatal(err error) bool { return domain.IsFatal(err) }
