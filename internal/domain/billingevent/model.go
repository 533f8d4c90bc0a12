package billingevent

import (
	"time"
)

// ProcessedEvent marks a provider webhook delivery as fully applied.
// The primary key on EventID is the dedup mechanism: a second insert of
// the same event id fails the unique constraint and the delivery is
// acknowledged without re-running its effect.
type ProcessedEvent struct {
	EventID     string    `db:"event_id" json:"event_id"`
	EventType   string    `db:"event_type" json:"event_type"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`
}
