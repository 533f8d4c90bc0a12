package gateway

import (
	"encoding/json"
	"time"
)

// ProviderEvent is a webhook delivery whose signature has been verified.
// Payload is the raw event object; per-event-type structure is validated
// by the consumer against its own explicit schemas.
type ProviderEvent struct {
	ID        string
	Type      string
	CreatedAt time.Time
	Payload   json.RawMessage
}

// EventVerifier authenticates inbound webhook deliveries. Verification
// happens on the raw body before any JSON parsing of the payload.
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (*ProviderEvent, error)
}
