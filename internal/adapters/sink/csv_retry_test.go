package sink

import (
	"context"
	"strings"
	"testing"

	"github.com/ghalamif/TelemetryLogger/internal/adapters/deadletter"
	"github.com/ghalamif/TelemetryLogger/internal/app/pipeline"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

func TestSinkWriterRecoversRealCSVSink(t *testing.T) {
	dir := t.TempDir()
	csvSink, err := NewCSVSink(dir+"/telemetry_log.csv", true)
	if err != nil {
		t.Fatalf("new csv sink: %v", err)
	}
	dl, err := deadletter.Open(dir + "/dl")
	if err != nil {
		t.Fatalf("open dead-letter: %v", err)
	}
	defer dl.Close()

	flaky := &flakyWriter{w: csvSink.file, fails: 1}
	csvSink.out = flaky
	w := pipeline.NewSinkWriter([]ports.Sink{csvSink}, ports.RetryPolicy{MaxAttempts: 3}, dl, nil)

	// One transient failure is absorbed by the retry.
	first := sampleRecord
	if err := w.Write(context.Background(), first); err != nil {
		t.Fatalf("write with one transient failure: %v", err)
	}
	if w.Degraded("csv") {
		t.Fatalf("sink should not be degraded after a successful retry")
	}

	// A longer outage exhausts retries and dead-letters the record.
	second := sampleRecord
	second.Timestamp = "t2"
	flaky.fails = 3
	if err := w.Write(context.Background(), second); err == nil {
		t.Fatalf("expected write to fail after exhausting retries")
	}
	if !w.Degraded("csv") {
		t.Fatalf("sink should be degraded")
	}
	if st := dl.Stats(); st.LatestAppended != 1 {
		t.Fatalf("expected one dead-lettered record, got %+v", st)
	}

	// Once the outage clears the very next record goes through.
	third := sampleRecord
	third.Timestamp = "t3"
	if err := w.Write(context.Background(), third); err != nil {
		t.Fatalf("write after outage: %v", err)
	}
	if w.Degraded("csv") {
		t.Fatalf("sink should have recovered")
	}
	if err := csvSink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLines(t, csvSink.Path())
	want := []string{
		"speed,rpm,fuel,lat,lon,throttle,temp,timestamp",
		"10,1000,99,1,2,5,21,t1",
		"10,1000,99,1,2,5,21,t3",
	}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected file contents:\n%s", strings.Join(lines, "\n"))
	}
}
