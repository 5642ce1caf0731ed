package ports

import (
	"context"

	"github.com/ghalamif/TelemetryLogger/internal/domain"
)

type Sink interface {
	Write(ctx context.Context, r domain.TelemetryRecord) error
	Name() string
	Close() error
}
