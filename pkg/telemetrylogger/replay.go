package telemetrylogger

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/TelemetryLogger/internal/adapters/observability"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

// ErrNoReplaySink is returned when a dead-letter entry names a sink that
// was not handed to Replay.
var ErrNoReplaySink = errors.New("telemetrylogger: no sink for dead-letter entry")

// ReplayResult summarizes one replay pass.
type ReplayResult struct {
	Replayed  int
	Committed EntryID
}

// Replay writes every uncommitted dead-letter entry to the sink it failed
// on, in append order. It stops at the first entry it cannot persist and
// commits up to the last one that succeeded, so a later run resumes there.
func Replay(ctx context.Context, dl DeadLetter, sinks []Sink, obs Observability) (ReplayResult, error) {
	if dl == nil {
		return ReplayResult{}, fmt.Errorf("dead letter store is required")
	}
	if obs == nil {
		obs = observability.NewPromObs(prometheus.NewRegistry(), nil)
	}

	byName := make(map[string]Sink, len(sinks))
	for _, s := range sinks {
		byName[s.Name()] = s
	}

	stats := dl.Stats()
	start := stats.OldestUncommitted
	if start == 0 {
		start = 1
	}

	var (
		res      ReplayResult
		lastGood ports.EntryID
	)
	iterErr := dl.Iterate(start, func(id ports.EntryID, e ports.DeadLetterEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, ok := byName[e.Sink]
		if !ok {
			return fmt.Errorf("entry %d: %w %q", id, ErrNoReplaySink, e.Sink)
		}
		if err := s.Write(ctx, e.Record); err != nil {
			return fmt.Errorf("entry %d: replay to %s: %w", id, e.Sink, err)
		}
		lastGood = id
		res.Replayed++
		return nil
	})

	if lastGood > 0 {
		if err := dl.Commit(lastGood); err != nil {
			return res, errors.Join(iterErr, fmt.Errorf("commit dead letters: %w", err))
		}
		res.Committed = lastGood
	}

	if iterErr != nil {
		obs.LogError("dead_letter_replay_stopped", iterErr, Field{Key: "replayed", Value: res.Replayed})
		return res, iterErr
	}
	obs.LogInfo("dead_letter_replay_complete",
		Field{Key: "replayed", Value: res.Replayed},
		Field{Key: "from_id", Value: start})
	return res, nil
}
