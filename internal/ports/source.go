package ports

import "context"

// ConnState is the connection manager's lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateStreaming
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// Source delivers raw bytes from the telemetry endpoint.
type Source interface {
	Connect(ctx context.Context) error
	// Receive returns the next chunk. The slice is only valid until the
	// next call.
	Receive(ctx context.Context) ([]byte, error)
	Reconnect(ctx context.Context) error
	State() ConnState
	Close() error
}
