package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

const sinkLabel = "sink"

// PromObs backs the Observability port with Prometheus collectors and a
// logrus logger. Unknown metric names and mismatched label sets are ignored.
type PromObs struct {
	log      *logrus.Logger
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	histos   map[string]*prometheus.HistogramVec
}

// NewPromObs registers the telemetry collectors on reg. A nil reg uses the
// default registerer; a nil logger uses logrus' standard logger.
func NewPromObs(reg prometheus.Registerer, log *logrus.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	}

	p := &PromObs{
		log: log,
		counters: map[string]*prometheus.CounterVec{
			"telemetry_frames_total":            counter("telemetry_frames_total", "Frames extracted from the byte stream."),
			"telemetry_records_total":           counter("telemetry_records_total", "Records decoded and validated."),
			"telemetry_decode_errors_total":     counter("telemetry_decode_errors_total", "Frames rejected as malformed JSON."),
			"telemetry_validation_errors_total": counter("telemetry_validation_errors_total", "Frames rejected for missing or mistyped fields."),
			"telemetry_oversized_frames_total":  counter("telemetry_oversized_frames_total", "Frames dropped for exceeding the frame size bound."),
			"telemetry_reconnects_total":        counter("telemetry_reconnects_total", "Reconnect attempts made by the source."),
			"telemetry_sink_writes_total":       counter("telemetry_sink_writes_total", "Records persisted per sink.", sinkLabel),
			"telemetry_sink_failures_total":     counter("telemetry_sink_failures_total", "Failed write attempts per sink.", sinkLabel),
			"telemetry_dead_letters_total":      counter("telemetry_dead_letters_total", "Records dead-lettered after exhausting retries.", sinkLabel),
		},
		gauges: map[string]*prometheus.GaugeVec{
			"telemetry_connection_state":      gauge("telemetry_connection_state", "Source state: 0 disconnected, 1 connecting, 2 streaming."),
			"telemetry_framer_buffered_bytes": gauge("telemetry_framer_buffered_bytes", "Bytes of an incomplete frame held by the framer."),
			"telemetry_sink_degraded":         gauge("telemetry_sink_degraded", "1 while a sink is failing writes.", sinkLabel),
		},
		histos: map[string]*prometheus.HistogramVec{
			"telemetry_sink_write_seconds": prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "telemetry_sink_write_seconds",
				Help:    "Latency of a single sink write including retries.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			}, []string{sinkLabel}),
		},
	}

	for _, c := range p.counters {
		reg.MustRegister(c)
	}
	for _, g := range p.gauges {
		reg.MustRegister(g)
	}
	for _, h := range p.histos {
		reg.MustRegister(h)
	}
	return p
}

func (p *PromObs) Logger() *logrus.Logger { return p.log }

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.entry(nil, fields).Info(msg)
}

func (p *PromObs) LogWarn(msg string, err error, fields ...ports.Field) {
	p.entry(err, fields).Warn(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.entry(err, fields).Error(msg)
}

// LogCritical logs at error level with critical=true; it never exits.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.entry(err, fields).WithField("critical", true).Error(msg)
}

func (p *PromObs) IncCounter(name string, v float64, labels ...string) {
	if c, ok := p.counters[name]; ok {
		if m, err := c.GetMetricWithLabelValues(labels...); err == nil {
			m.Add(v)
		}
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64, labels ...string) {
	if h, ok := p.histos[name]; ok {
		if m, err := h.GetMetricWithLabelValues(labels...); err == nil {
			m.Observe(seconds)
		}
	}
}

func (p *PromObs) SetGauge(name string, v float64, labels ...string) {
	if g, ok := p.gauges[name]; ok {
		if m, err := g.GetMetricWithLabelValues(labels...); err == nil {
			m.Set(v)
		}
	}
}

func (p *PromObs) RecordDeadLetter(e ports.DeadLetterEntry, err error) {
	p.IncCounter("telemetry_dead_letters_total", 1, e.Sink)
	p.LogError("record_dead_lettered", err,
		ports.Field{Key: "sink", Value: e.Sink},
		ports.Field{Key: "timestamp", Value: e.Record.Timestamp},
	)
}

func (p *PromObs) entry(err error, fields []ports.Field) *logrus.Entry {
	lf := make(logrus.Fields, len(fields)+1)
	for _, f := range fields {
		lf[f.Key] = f.Value
	}
	e := p.log.WithFields(lf)
	if err != nil {
		e = e.WithError(err)
	}
	return e
}

var _ ports.Observability = (*PromObs)(nil)
