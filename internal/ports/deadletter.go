package ports

import (
	"time"

	"github.com/ghalamif/TelemetryLogger/internal/domain"
)

type EntryID uint64

// DeadLetterEntry is a record that exhausted its retries on one sink.
type DeadLetterEntry struct {
	Sink     string                 `json:"sink"`
	Record   domain.TelemetryRecord `json:"record"`
	Error    string                 `json:"error"`
	FailedAt time.Time              `json:"failed_at"`
}

type DeadLetter interface {
	Append(e DeadLetterEntry) (EntryID, error)
	Iterate(from EntryID, fn func(id EntryID, e DeadLetterEntry) error) error
	Commit(upto EntryID) error
	Stats() DeadLetterStats
	Close() error
}

type DeadLetterStats struct {
	OldestUncommitted EntryID
	LatestAppended    EntryID
	SizeBytes         int64
}
