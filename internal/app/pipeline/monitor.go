package pipeline

import (
	"fmt"
	"io"
	"strconv"

	"github.com/ghalamif/TelemetryLogger/internal/domain"
)

const previewCompleteNotice = "Live telemetry preview complete. Logging will continue silently."

// Monitor prints every interval-th record until maxSamples lines have been
// written, then a single completion notice. It never affects persistence.
type Monitor struct {
	out        io.Writer
	interval   uint64
	maxSamples int
	printed    int
	complete   bool
}

// NewMonitor returns a monitor writing to out. maxSamples <= 0 or
// interval <= 0 disables it.
func NewMonitor(out io.Writer, interval, maxSamples int) *Monitor {
	m := &Monitor{out: out, maxSamples: maxSamples}
	if interval > 0 {
		m.interval = uint64(interval)
	}
	if out == nil || interval <= 0 || maxSamples <= 0 {
		m.complete = true
	}
	return m
}

// Observe is called with the running packet count for each record.
func (m *Monitor) Observe(count uint64, rec domain.TelemetryRecord) {
	if m.complete || count == 0 || count%m.interval != 0 {
		return
	}

	fmt.Fprintf(m.out, "[%d] Speed=%s km/h, RPM=%s, Fuel=%s %%, Latitude=%s, Longitude=%s, Throttle=%s %%, Temperature=%s C, Time=%s\n",
		count, num(rec.Speed), num(rec.RPM), num(rec.Fuel), num(rec.Lat), num(rec.Lon), num(rec.Throttle), num(rec.Temp), rec.Timestamp)
	m.printed++

	if m.printed >= m.maxSamples {
		m.complete = true
		fmt.Fprintln(m.out, previewCompleteNotice)
	}
}

func (m *Monitor) Printed() int { return m.printed }

func (m *Monitor) Complete() bool { return m.complete }

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
