package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/ghalamif/TelemetryLogger/internal/domain"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

// SinkWriter persists each record to every sink independently. A sink that
// keeps failing is retried, marked degraded and dead-lettered; it never
// blocks the others.
type SinkWriter struct {
	sinks    []ports.Sink
	pol      ports.RetryPolicy
	dlq      ports.DeadLetter
	obs      ports.Observability
	degraded map[string]bool
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
}

// NewSinkWriter wires sinks in write order. dlq may be nil.
func NewSinkWriter(sinks []ports.Sink, pol ports.RetryPolicy, dlq ports.DeadLetter, obs ports.Observability) *SinkWriter {
	if pol.MaxAttempts <= 0 {
		pol.MaxAttempts = 1
	}
	if obs == nil {
		obs = nopObs{}
	}
	return &SinkWriter{
		sinks:    sinks,
		pol:      pol,
		dlq:      dlq,
		obs:      obs,
		degraded: make(map[string]bool, len(sinks)),
		sleep:    sleepContext,
		now:      time.Now,
	}
}

func (w *SinkWriter) Sinks() []ports.Sink { return w.sinks }

// Degraded reports whether the named sink exhausted retries on its last write.
func (w *SinkWriter) Degraded(name string) bool { return w.degraded[name] }

// Write returns the joined *domain.SinkWriteError of every sink that failed.
func (w *SinkWriter) Write(ctx context.Context, rec domain.TelemetryRecord) error {
	var errs []error
	for _, s := range w.sinks {
		if err := w.writeOne(ctx, s, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *SinkWriter) writeOne(ctx context.Context, s ports.Sink, rec domain.TelemetryRecord) error {
	name := s.Name()
	backoff := w.pol.Backoff
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= w.pol.MaxAttempts; attempt++ {
		lastErr = s.Write(ctx, rec)
		if lastErr == nil {
			w.obs.ObserveLatency("telemetry_sink_write_seconds", time.Since(start).Seconds(), name)
			w.obs.IncCounter("telemetry_sink_writes_total", 1, name)
			w.markRecovered(name)
			return nil
		}
		w.obs.IncCounter("telemetry_sink_failures_total", 1, name)

		if attempt == w.pol.MaxAttempts {
			break
		}
		if err := w.sleep(ctx, backoff); err != nil {
			break
		}
		backoff *= 2
	}

	werr := &domain.SinkWriteError{Sink: name, Attempts: w.pol.MaxAttempts, Err: lastErr}
	w.markDegraded(name, werr)
	w.deadLetter(name, rec, werr)
	return werr
}

func (w *SinkWriter) markDegraded(name string, err error) {
	if !w.degraded[name] {
		w.degraded[name] = true
		w.obs.SetGauge("telemetry_sink_degraded", 1, name)
		w.obs.LogWarn("sink_degraded", err, ports.Field{Key: "sink", Value: name})
		return
	}
	w.obs.LogError("sink_write_failed", err, ports.Field{Key: "sink", Value: name})
}

func (w *SinkWriter) markRecovered(name string) {
	if !w.degraded[name] {
		return
	}
	w.degraded[name] = false
	w.obs.SetGauge("telemetry_sink_degraded", 0, name)
	w.obs.LogInfo("sink_recovered", ports.Field{Key: "sink", Value: name})
}

func (w *SinkWriter) deadLetter(name string, rec domain.TelemetryRecord, cause error) {
	entry := ports.DeadLetterEntry{
		Sink:     name,
		Record:   rec,
		Error:    cause.Error(),
		FailedAt: w.now().UTC(),
	}
	w.obs.RecordDeadLetter(entry, cause)
	if w.dlq == nil {
		return
	}
	if _, err := w.dlq.Append(entry); err != nil {
		// The record is now only in the log line above.
		w.obs.LogCritical("dead_letter_append_failed", err, ports.Field{Key: "sink", Value: name})
	}
}

// Close closes every sink and joins their errors.
func (w *SinkWriter) Close() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
