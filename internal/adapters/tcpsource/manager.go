package tcpsource

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/TelemetryLogger/internal/domain"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

// Config captures the endpoint and reconnect policy for the telemetry stream.
type Config struct {
	Addr            string          `yaml:"addr"`
	DialTimeout     time.Duration   `yaml:"dial_timeout"`
	ReadBufferBytes int             `yaml:"read_buffer_bytes"`
	MaxFrameBytes   int             `yaml:"max_frame_bytes"`
	Reconnect       ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig bounds the backoff cycle entered after a lost connection.
type ReconnectConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:9000"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadBufferBytes <= 0 {
		c.ReadBufferBytes = 1024
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 64 << 10
	}
	if c.Reconnect.MaxAttempts <= 0 {
		c.Reconnect.MaxAttempts = 10
	}
	if c.Reconnect.InitialBackoff <= 0 {
		c.Reconnect.InitialBackoff = 500 * time.Millisecond
	}
	if c.Reconnect.MaxBackoff <= 0 {
		c.Reconnect.MaxBackoff = 30 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	_, port, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return fmt.Errorf("addr %q: %w", c.Addr, err)
	}
	if port == "" {
		return fmt.Errorf("addr %q: port is required", c.Addr)
	}
	if c.Reconnect.MaxBackoff < c.Reconnect.InitialBackoff {
		return fmt.Errorf("reconnect.max_backoff %s is below initial_backoff %s", c.Reconnect.MaxBackoff, c.Reconnect.InitialBackoff)
	}
	return nil
}

// Dialer opens the underlying stream connection.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDialer replaces the default net.Dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithObservability reports state changes and reconnect attempts.
func WithObservability(obs ports.Observability) Option {
	return func(m *Manager) { m.obs = obs }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = fn }
}

// Manager owns the TCP connection to the telemetry generator and moves it
// through Disconnected -> Connecting -> Streaming.
type Manager struct {
	cfg    Config
	dialer Dialer
	obs    ports.Observability
	sleep  func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	conn  net.Conn
	state atomic.Int32
	buf   []byte
}

func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &domain.ConfigurationError{Op: "source", Err: err}
	}
	m := &Manager{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.DialTimeout},
		sleep:  sleepContext,
		buf:    make([]byte, cfg.ReadBufferBytes),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Addr returns the configured endpoint.
func (m *Manager) Addr() string { return m.cfg.Addr }

func (m *Manager) State() ports.ConnState {
	return ports.ConnState(m.state.Load())
}

func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.setState(ports.StateConnecting)
	conn, err := m.dialer.DialContext(ctx, "tcp", m.cfg.Addr)
	if err != nil {
		m.setState(ports.StateDisconnected)
		return &domain.ConnectionError{Addr: m.cfg.Addr, Err: err}
	}
	m.conn = conn
	m.setState(ports.StateStreaming)
	m.logInfo("source_connected", ports.Field{Key: "remote", Value: conn.RemoteAddr().String()})
	return nil
}

// Receive blocks for the next chunk. A cancelled ctx interrupts the read
// and returns ctx.Err(); any other read failure, including a clean close
// by the peer, drops the connection and returns domain.ErrConnectionLost.
func (m *Manager) Receive(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil || m.State() != ports.StateStreaming {
		return nil, fmt.Errorf("receive while %s: %w", m.State(), domain.ErrConnectionLost)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	n, err := conn.Read(m.buf)
	if !stop() {
		_ = conn.SetReadDeadline(time.Time{})
	}

	if n > 0 {
		return m.buf[:n], nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	m.drop()
	if err == nil {
		err = errors.New("zero-length read")
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
}

// Reconnect waits with exponential backoff and retries Connect up to the
// configured attempt limit. Exhaustion returns *domain.ReconnectExhaustedError.
func (m *Manager) Reconnect(ctx context.Context) error {
	backoff := m.cfg.Reconnect.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= m.cfg.Reconnect.MaxAttempts; attempt++ {
		if err := m.sleep(ctx, backoff); err != nil {
			return err
		}

		m.incCounter("telemetry_reconnects_total")
		err := m.Connect(ctx)
		if err == nil {
			m.logInfo("source_reconnected", ports.Field{Key: "attempt", Value: attempt})
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		lastErr = err

		if m.obs != nil {
			m.obs.LogWarn("source_reconnect_failed", err,
				ports.Field{Key: "attempt", Value: attempt},
				ports.Field{Key: "max_attempts", Value: m.cfg.Reconnect.MaxAttempts},
				ports.Field{Key: "backoff", Value: backoff.String()})
		}

		backoff *= 2
		if backoff > m.cfg.Reconnect.MaxBackoff {
			backoff = m.cfg.Reconnect.MaxBackoff
		}
	}

	return &domain.ReconnectExhaustedError{
		Addr:     m.cfg.Addr,
		Attempts: m.cfg.Reconnect.MaxAttempts,
		Err:      lastErr,
	}
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.conn != nil {
		err = m.conn.Close()
		m.conn = nil
	}
	m.setState(ports.StateDisconnected)
	return err
}

func (m *Manager) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.setState(ports.StateDisconnected)
}

func (m *Manager) setState(s ports.ConnState) {
	prev := ports.ConnState(m.state.Swap(int32(s)))
	if m.obs == nil || prev == s {
		return
	}
	m.obs.SetGauge("telemetry_connection_state", float64(s))
	m.obs.LogInfo("source_state_changed",
		ports.Field{Key: "from", Value: prev.String()},
		ports.Field{Key: "to", Value: s.String()},
		ports.Field{Key: "addr", Value: m.cfg.Addr})
}

func (m *Manager) logInfo(msg string, fields ...ports.Field) {
	if m.obs != nil {
		m.obs.LogInfo(msg, append(fields, ports.Field{Key: "addr", Value: m.cfg.Addr})...)
	}
}

func (m *Manager) incCounter(name string) {
	if m.obs != nil {
		m.obs.IncCounter(name, 1)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ ports.Source = (*Manager)(nil)
