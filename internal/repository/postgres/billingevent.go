package postgres

import (
	"context"

	"github.com/subplane/subplane/internal/domain/billingevent"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/postgres"

	"github.com/lib/pq"
)

// uniqueViolation is the postgres error code for unique constraint failures
const uniqueViolation = "23505"

type billingEventRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewBillingEventRepository(db *postgres.DB, logger *logger.Logger) billingevent.Repository {
	return &billingEventRepository{db: db, logger: logger}
}

// Insert claims the event id. The primary key does the dedup work: a
// concurrent redelivery loses the insert race and gets ErrAlreadyExists,
// never a second effect. No read-then-write.
func (r *billingEventRepository) Insert(ctx context.Context, event *billingevent.ProcessedEvent) error {
	query := `
		INSERT INTO billing_events_processed (
			event_id,
			event_type,
			tenant_id,
			processed_at
		) VALUES (
			:event_id,
			:event_type,
			:tenant_id,
			:processed_at
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		if isUniqueViolation(err) {
			return ierr.NewError("event already processed").
				WithReportableDetails(map[string]any{"event_id": event.EventID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to record processed event").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *billingEventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	query := `
		SELECT event_id FROM billing_events_processed
		WHERE event_id = :event_id
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"event_id": eventID,
	})
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to check processed event").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	return rows.Next(), nil
}

// isUniqueViolation reports whether err is a postgres unique constraint error
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if ierr.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
