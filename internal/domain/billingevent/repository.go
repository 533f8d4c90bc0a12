package billingevent

import (
	"context"
)

type Repository interface {
	// Insert records the event as processed. Returns ErrAlreadyExists
	// when the event id was recorded before.
	Insert(ctx context.Context, event *ProcessedEvent) error
	// IsProcessed reports whether the event id has been recorded
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}
