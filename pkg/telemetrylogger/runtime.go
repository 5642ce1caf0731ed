package telemetrylogger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/TelemetryLogger/internal/adapters/deadletter"
	"github.com/ghalamif/TelemetryLogger/internal/adapters/observability"
	"github.com/ghalamif/TelemetryLogger/internal/adapters/sink"
	"github.com/ghalamif/TelemetryLogger/internal/adapters/tcpsource"
	"github.com/ghalamif/TelemetryLogger/internal/app/pipeline"
	"github.com/ghalamif/TelemetryLogger/internal/codec"
	"github.com/ghalamif/TelemetryLogger/internal/domain"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

const openTimeout = 10 * time.Second

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	source        Source
	tabular       Sink
	relational    Sink
	extra         []Sink
	deadLetter    DeadLetter
	observability Observability
	console       io.Writer
	consoleSet    bool
}

// WithSource injects a custom stream source (simulators, replayed captures, etc.).
func WithSource(src Source) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.source = src
	}
}

// WithTabularSink replaces the CSV sink.
func WithTabularSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.tabular = s
	}
}

// WithRelationalSink replaces the SQL sink.
func WithRelationalSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.relational = s
	}
}

// WithSink adds a sink written after the tabular and relational ones.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		if s != nil {
			o.extra = append(o.extra, s)
		}
	}
}

// WithDeadLetter lets callers bring their own dead-letter store.
func WithDeadLetter(dl DeadLetter) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.deadLetter = dl
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithConsole redirects the sampling preview. A nil writer silences it.
func WithConsole(w io.Writer) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.console = w
		o.consoleSet = true
	}
}

// Runtime wires source → framer → decoder → sinks for one ingestion session
// and exposes lifecycle hooks for embedding the logger in a Go service.
type Runtime struct {
	cfg        *Config
	obs        ports.Observability
	source     ports.Source
	writer     *pipeline.SinkWriter
	deadLetter ports.DeadLetter
	session    *pipeline.Session
	registry   *prometheus.Registry

	mu         sync.Mutex
	metricsSrv *http.Server
	metricsLn  net.Listener
	runCancel  context.CancelFunc
	runDone    chan struct{}
	closed     bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewRuntime bootstraps the default adapters (TCP source, CSV sink, SQL
// sink, file dead-letter log, Prometheus/logrus observability). Options
// override any of them. Failing to open a default adapter is a
// *ConfigurationError and nothing is left open.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, &domain.ConfigurationError{Op: "runtime", Err: errors.New("config is required")}
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &Runtime{cfg: cfg, registry: prometheus.NewRegistry()}

	rt.obs = overrides.observability
	if rt.obs == nil {
		logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, &domain.ConfigurationError{Op: "log", Err: err}
		}
		rt.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.obs = observability.NewPromObs(rt.registry, logger)
	}

	var closers []io.Closer
	fail := func(op string, err error) (*Runtime, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		var cerr *domain.ConfigurationError
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, &domain.ConfigurationError{Op: op, Err: err}
	}

	rt.source = overrides.source
	if rt.source == nil {
		src, err := tcpsource.NewManager(cfg.Source, tcpsource.WithObservability(rt.obs))
		if err != nil {
			return fail("source", err)
		}
		rt.source = src
	}
	closers = append(closers, rt.source)

	tabular := overrides.tabular
	if tabular == nil {
		csvSink, err := OpenTabularSink(cfg)
		if err != nil {
			return fail("tabular", err)
		}
		tabular = csvSink
	}
	closers = append(closers, tabular)

	relational := overrides.relational
	if relational == nil {
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		sqlSink, err := OpenRelationalSink(ctx, cfg)
		cancel()
		if err != nil {
			return fail("relational", err)
		}
		relational = sqlSink
	}
	closers = append(closers, relational)

	rt.deadLetter = overrides.deadLetter
	if rt.deadLetter == nil && !cfg.DeadLetter.Disabled {
		dl, err := OpenDeadLetter(cfg)
		if err != nil {
			return fail("dead_letter", err)
		}
		rt.deadLetter = dl
	}

	sinks := append([]ports.Sink{tabular, relational}, overrides.extra...)
	rt.writer = pipeline.NewSinkWriter(sinks, cfg.Sinks.RetryPolicy(), rt.deadLetter, rt.obs)

	console := io.Writer(os.Stdout)
	if overrides.consoleSet {
		console = overrides.console
	}
	monitor := pipeline.NewMonitor(console, cfg.Sampling.Interval, cfg.Sampling.MaxSamples)

	rt.session = pipeline.NewSession(rt.source, codec.NewFramer(cfg.Source.MaxFrameBytes), rt.writer, monitor, rt.obs)
	return rt, nil
}

// ErrRuntimeClosed is returned by Run after Shutdown.
var ErrRuntimeClosed = errors.New("telemetrylogger: runtime is shut down")

// Run serves metrics, ingests until ctx is cancelled or reconnecting is
// exhausted, then shuts down. Cancellation is a clean stop and returns nil.
func (r *Runtime) Run(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}

	r.mu.Lock()
	if r.closed || r.runDone != nil {
		r.mu.Unlock()
		return ErrRuntimeClosed
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.runCancel, r.runDone = cancel, done
	r.mu.Unlock()
	defer cancel()

	if err := r.startMetrics(); err != nil {
		close(done)
		_ = r.Shutdown(context.Background())
		return &domain.ConfigurationError{Op: "metrics", Err: err}
	}

	runErr := r.session.Run(runCtx)
	close(done)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return errors.Join(runErr, r.Shutdown(shutdownCtx))
}

// Shutdown stops an active Run and waits for the record in flight to reach
// the sinks, then stops the metrics server and closes the source, sinks and
// dead-letter log. If ctx ends before the session loop exits, nothing is
// closed and ctx.Err() is returned; Run still closes everything on its way
// out. It is safe to call more than once.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	cancel, done := r.runCancel, r.runDone
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.shutdownOnce.Do(func() {
		var errs []error

		r.mu.Lock()
		srv := r.metricsSrv
		r.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}
		if err := r.source.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := r.writer.Close(); err != nil {
			errs = append(errs, err)
		}
		if r.deadLetter != nil {
			if err := r.deadLetter.Close(); err != nil {
				errs = append(errs, err)
			}
		}

		r.shutdownErr = errors.Join(errs...)
		r.obs.LogInfo("runtime_stopped", Field{Key: "session_id", Value: r.session.ID()})
	})
	return r.shutdownErr
}

// Stats returns the session counters; safe to call while Run is active.
func (r *Runtime) Stats() Stats { return r.session.Stats() }

// State returns the source connection state.
func (r *Runtime) State() ConnState { return r.source.State() }

// SessionID identifies this runtime's ingestion session in logs.
func (r *Runtime) SessionID() string { return r.session.ID() }

// DeadLetterStats reports the dead-letter log position; zero when disabled.
func (r *Runtime) DeadLetterStats() DeadLetterStats {
	if r.deadLetter == nil {
		return DeadLetterStats{}
	}
	return r.deadLetter.Stats()
}

// MetricsAddr is the bound metrics listener address once Run has started,
// or "" when metrics are disabled.
func (r *Runtime) MetricsAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.metricsLn == nil {
		return ""
	}
	return r.metricsLn.Addr().String()
}

func (r *Runtime) startMetrics() error {
	if r.cfg.Metrics.Disabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if r.source.State() != ports.StateStreaming {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(r.source.State().String()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.mu.Lock()
	r.metricsLn = ln
	r.metricsSrv = srv
	r.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err)
		}
	}()
	return nil
}

// OpenTabularSink opens the CSV sink described by cfg.Tabular.
func OpenTabularSink(cfg *Config) (*sink.CSVSink, error) {
	return sink.NewCSVSink(cfg.Tabular.Path, !cfg.Tabular.NoSync)
}

// OpenRelationalSink opens the SQL sink described by cfg.Relational and
// creates its table if absent.
func OpenRelationalSink(ctx context.Context, cfg *Config) (*sink.SQLSink, error) {
	return sink.OpenSQLSink(ctx, cfg.Relational.Driver, cfg.Relational.DSN, cfg.Relational.Table)
}

// OpenDeadLetter opens the file dead-letter log in cfg.DeadLetter.Dir.
func OpenDeadLetter(cfg *Config) (*deadletter.FileLog, error) {
	return deadletter.Open(cfg.DeadLetter.Dir)
}

// OpenReader opens a read-only view of the relational sink. The returned
// close function releases the connection.
func OpenReader(ctx context.Context, cfg *Config) (*Reader, func() error, error) {
	dialect, err := sink.ParseDialect(cfg.Relational.Driver)
	if err != nil {
		return nil, nil, &domain.ConfigurationError{Op: "relational", Err: err}
	}
	db, err := sink.OpenDB(ctx, dialect, cfg.Relational.DSN)
	if err != nil {
		return nil, nil, &domain.ConfigurationError{Op: "relational", Err: err}
	}
	return sink.NewSQLReader(db, dialect, cfg.Relational.Table), db.Close, nil
}
