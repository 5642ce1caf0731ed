package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/TelemetryLogger/internal/codec"
	"github.com/ghalamif/TelemetryLogger/internal/domain"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

const scenarioA = `{"timestamp":"t1","speed":10,"rpm":1000,"fuel":99,"throttle":5,"temp":21,"location":{"lat":1.0,"lon":2.0}}` + "\n"

func frameFor(i int) string {
	return fmt.Sprintf(`{"timestamp":"t%d","speed":%d,"rpm":1000,"fuel":99,"throttle":5,"temp":21,"location":{"lat":1.0,"lon":2.0}}`+"\n", i, i)
}

func TestSessionScenarioA(t *testing.T) {
	src := newScriptedSource(chunk(scenarioA))
	csv, db := &memSink{name: "csv"}, &memSink{name: "sqlite"}

	s := newTestSession(src, nil, csv, db)
	require.NoError(t, runUntilDrained(t, s, src))

	want := domain.TelemetryRecord{Timestamp: "t1", Speed: 10, RPM: 1000, Fuel: 99, Lat: 1, Lon: 2, Throttle: 5, Temp: 21}
	require.Equal(t, []domain.TelemetryRecord{want}, csv.snapshot())
	require.Equal(t, []domain.TelemetryRecord{want}, db.snapshot())
	require.Equal(t, uint64(1), s.Stats().Records)
}

func TestSessionScenarioBMalformedBetweenValid(t *testing.T) {
	stream := scenarioA + "garbage\n" + frameFor(2)
	// Split mid-frame to exercise reassembly across chunks.
	src := newScriptedSource(chunk(stream[:30]), chunk(stream[30:107]), chunk(stream[107:]))
	csv, db := &memSink{name: "csv"}, &memSink{name: "sqlite"}

	s := newTestSession(src, nil, csv, db)
	require.NoError(t, runUntilDrained(t, s, src))

	require.Len(t, csv.snapshot(), 2)
	require.Equal(t, csv.snapshot(), db.snapshot())
	st := s.Stats()
	require.Equal(t, uint64(2), st.Records)
	require.Equal(t, uint64(1), st.DecodeErrors)
	require.Equal(t, uint64(3), st.Frames)
}

func TestSessionScenarioCMissingLocation(t *testing.T) {
	bad := `{"timestamp":"t0","speed":10,"rpm":1000,"fuel":99,"throttle":5,"temp":21}` + "\n"
	src := newScriptedSource(chunk(bad), chunk(frameFor(1)))
	csv, db := &memSink{name: "csv"}, &memSink{name: "sqlite"}
	obs := &recordingObs{}

	s := newTestSession(src, obs, csv, db)
	require.NoError(t, runUntilDrained(t, s, src))

	require.Len(t, csv.snapshot(), 1)
	require.Equal(t, "t1", db.snapshot()[0].Timestamp)
	require.Equal(t, uint64(1), s.Stats().ValidationErrors)
	require.Contains(t, obs.warnings(), "frame_validation_failed")
}

func TestSessionScenarioDReconnectKeepsPersistedRecords(t *testing.T) {
	var before strings.Builder
	for i := 1; i <= 10; i++ {
		before.WriteString(frameFor(i))
	}
	src := newScriptedSource(
		chunk(before.String()+`{"timestamp":"partial`),
		lost(),
		chunk(`","speed":1}`+"\n"+frameFor(11)),
		chunk(frameFor(12)),
	)
	csv, db := &memSink{name: "csv"}, &memSink{name: "sqlite"}

	s := newTestSession(src, nil, csv, db)
	require.NoError(t, runUntilDrained(t, s, src))

	got := csv.snapshot()
	require.Len(t, got, 12)
	for i, r := range got {
		require.Equal(t, fmt.Sprintf("t%d", i+1), r.Timestamp)
	}
	require.Equal(t, got, db.snapshot())
	require.Equal(t, 1, src.reconnects)

	st := s.Stats()
	require.Equal(t, uint64(1), st.Reconnects)
	// The tail of the partial frame from the dead connection cannot decode.
	require.Equal(t, uint64(1), st.DecodeErrors)
}

func TestSessionReconnectExhaustedIsFatal(t *testing.T) {
	src := newScriptedSource(chunk(frameFor(1)), lost())
	src.reconnectErr = &domain.ReconnectExhaustedError{Addr: "x:1", Attempts: 3, Err: errors.New("refused")}
	csv := &memSink{name: "csv"}
	obs := &recordingObs{}

	s := newTestSession(src, obs, csv)
	err := s.Run(context.Background())

	var rerr *domain.ReconnectExhaustedError
	require.ErrorAs(t, err, &rerr)
	require.True(t, domain.IsFatal(err))
	require.Len(t, csv.snapshot(), 1)
	require.Contains(t, obs.criticals(), "reconnect_exhausted")
}

func TestSessionInitialConnectFailureReconnects(t *testing.T) {
	src := newScriptedSource(chunk(frameFor(1)))
	src.state = ports.StateDisconnected
	src.connectErr = &domain.ConnectionError{Addr: "x:1", Err: errors.New("refused")}
	csv := &memSink{name: "csv"}

	s := newTestSession(src, nil, csv)
	require.NoError(t, runUntilDrained(t, s, src))

	require.Equal(t, 1, src.connects)
	require.Equal(t, 1, src.reconnects)
	require.Len(t, csv.snapshot(), 1)
}

func TestSessionOversizedFrameDropped(t *testing.T) {
	huge := `{"timestamp":"` + strings.Repeat("x", 300) + `"}` + "\n"
	src := newScriptedSource(chunk(huge[:100]), chunk(huge[100:]+frameFor(1)))
	csv := &memSink{name: "csv"}

	s := NewSession(src, codec.NewFramer(128), NewSinkWriter([]ports.Sink{csv}, ports.RetryPolicy{MaxAttempts: 1}, nil, nil), nil, nil)
	require.NoError(t, runUntilDrained(t, s, src))

	require.Len(t, csv.snapshot(), 1)
	require.Equal(t, uint64(1), s.Stats().OversizedFrames)
}

func TestSessionFailingSinkDoesNotBlockOther(t *testing.T) {
	src := newScriptedSource(chunk(frameFor(1) + frameFor(2)))
	bad := &memSink{name: "csv", failN: -1}
	good := &memSink{name: "sqlite"}
	dlq := &memDeadLetter{}

	w := NewSinkWriter([]ports.Sink{bad, good}, ports.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, dlq, nil)
	w.sleep = func(context.Context, time.Duration) error { return nil }
	s := NewSession(src, codec.NewFramer(0), w, nil, nil)
	require.NoError(t, runUntilDrained(t, s, src))

	require.Len(t, good.snapshot(), 2)
	require.Empty(t, bad.snapshot())
	require.Equal(t, 6, bad.attempts)
	require.Equal(t, uint64(2), s.Stats().SinkFailures)
	require.Len(t, dlq.entries, 2)
	require.Equal(t, "csv", dlq.entries[0].Sink)
	require.Equal(t, "t1", dlq.entries[0].Record.Timestamp)
}

func TestSessionShutdownFinishesInFlightWrite(t *testing.T) {
	src := newScriptedSource(chunk(frameFor(1)))
	src.autoCancel = false
	slow := &blockingSink{memSink: memSink{name: "csv"}, started: make(chan struct{}), release: make(chan struct{})}
	other := &memSink{name: "sqlite"}

	s := newTestSession(src, nil, slow, other)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-slow.started
	cancel()
	close(slow.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not stop after cancel")
	}
	require.Len(t, slow.snapshot(), 1)
	require.Len(t, other.snapshot(), 1)
}

func TestSessionStatsCarrySessionID(t *testing.T) {
	obs := &recordingObs{}
	src := newScriptedSource(chunk("garbage\n"))
	s := newTestSession(src, obs, &memSink{name: "csv"})
	require.NoError(t, runUntilDrained(t, s, src))

	require.NotEmpty(t, s.ID())
	for _, f := range obs.fields {
		if f.Key == "session_id" {
			require.Equal(t, s.ID(), f.Value)
			return
		}
	}
	t.Fatalf("expected a session_id field in logs")
}

func newTestSession(src ports.Source, obs ports.Observability, sinks ...ports.Sink) *Session {
	w := NewSinkWriter(sinks, ports.RetryPolicy{MaxAttempts: 1}, nil, obs)
	return NewSession(src, codec.NewFramer(0), w, nil, obs)
}

// runUntilDrained runs s until the scripted source runs out of steps.
func runUntilDrained(t *testing.T, s *Session, src *scriptedSource) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src.cancel = cancel
	err := s.Run(ctx)
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		t.Fatalf("session did not drain the source in time")
	}
	return err
}

type step struct {
	data []byte
	lost bool
}

func chunk(s string) step { return step{data: []byte(s)} }
func lost() step          { return step{lost: true} }

type scriptedSource struct {
	steps        []step
	state        ports.ConnState
	connectErr   error
	reconnectErr error
	connects     int
	reconnects   int
	autoCancel   bool
	cancel       context.CancelFunc
}

func newScriptedSource(steps ...step) *scriptedSource {
	return &scriptedSource{steps: steps, state: ports.StateStreaming, autoCancel: true}
}

func (s *scriptedSource) Connect(context.Context) error {
	s.connects++
	if s.connectErr != nil {
		return s.connectErr
	}
	s.state = ports.StateStreaming
	return nil
}

func (s *scriptedSource) Receive(ctx context.Context) ([]byte, error) {
	if len(s.steps) == 0 {
		if s.autoCancel && s.cancel != nil {
			s.cancel()
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.lost {
		s.state = ports.StateDisconnected
		return nil, fmt.Errorf("%w: EOF", domain.ErrConnectionLost)
	}
	return st.data, nil
}

func (s *scriptedSource) Reconnect(context.Context) error {
	s.reconnects++
	if s.reconnectErr != nil {
		return s.reconnectErr
	}
	s.state = ports.StateStreaming
	return nil
}

func (s *scriptedSource) State() ports.ConnState { return s.state }
func (s *scriptedSource) Close() error           { return nil }

type memSink struct {
	mu       sync.Mutex
	name     string
	records  []domain.TelemetryRecord
	failN    int // fail this many attempts; negative fails forever
	attempts int
}

func (m *memSink) Write(_ context.Context, r domain.TelemetryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.failN < 0 {
		return errors.New("sink unavailable")
	}
	if m.failN > 0 {
		m.failN--
		return errors.New("sink unavailable")
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memSink) snapshot() []domain.TelemetryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TelemetryRecord(nil), m.records...)
}

func (m *memSink) Name() string { return m.name }
func (m *memSink) Close() error { return nil }

type blockingSink struct {
	memSink
	started chan struct{}
	release chan struct{}
}

func (b *blockingSink) Write(ctx context.Context, r domain.TelemetryRecord) error {
	close(b.started)
	<-b.release
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.memSink.Write(ctx, r)
}

type memDeadLetter struct {
	entries []ports.DeadLetterEntry
}

func (m *memDeadLetter) Append(e ports.DeadLetterEntry) (ports.EntryID, error) {
	m.entries = append(m.entries, e)
	return ports.EntryID(len(m.entries)), nil
}

func (m *memDeadLetter) Iterate(ports.EntryID, func(ports.EntryID, ports.DeadLetterEntry) error) error {
	return nil
}

func (m *memDeadLetter) Commit(ports.EntryID) error   { return nil }
func (m *memDeadLetter) Stats() ports.DeadLetterStats { return ports.DeadLetterStats{} }
func (m *memDeadLetter) Close() error                 { return nil }

type recordingObs struct {
	mu     sync.Mutex
	events []string
	fields []ports.Field
}

func (r *recordingObs) record(level, msg string, fields []ports.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, level+":"+msg)
	r.fields = append(r.fields, fields...)
}

func (r *recordingObs) byLevel(level string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if msg, ok := strings.CutPrefix(e, level+":"); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (r *recordingObs) warnings() []string  { return r.byLevel("warn") }
func (r *recordingObs) criticals() []string { return r.byLevel("critical") }

func (r *recordingObs) LogInfo(msg string, f ...ports.Field) { r.record("info", msg, f) }
func (r *recordingObs) LogWarn(msg string, _ error, f ...ports.Field) {
	r.record("warn", msg, f)
}
func (r *recordingObs) LogError(msg string, _ error, f ...ports.Field) {
	r.record("error", msg, f)
}
func (r *recordingObs) LogCritical(msg string, _ error, f ...ports.Field) {
	r.record("critical", msg, f)
}
func (r *recordingObs) IncCounter(string, float64, ...string)         {}
func (r *recordingObs) ObserveLatency(string, float64, ...string)     {}
func (r *recordingObs) SetGauge(string, float64, ...string)           {}
func (r *recordingObs) RecordDeadLetter(ports.DeadLetterEntry, error) {}
