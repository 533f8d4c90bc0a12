package testutil

import (
	"encoding/json"
	"time"

	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/gateway"
)

// FakeVerifier implements gateway.EventVerifier. It accepts the
// signature "valid" and parses the body as a provider event envelope, so
// tests can express deliveries as plain JSON.
type FakeVerifier struct{}

type fakeEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (v *FakeVerifier) VerifyEvent(payload []byte, signature string) (*gateway.ProviderEvent, error) {
	if signature != "valid" {
		return nil, ierr.NewError("signature verification failed").
			WithHint("Invalid webhook signature or payload").
			Mark(ierr.ErrSignature)
	}

	var envelope fakeEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook signature or payload").
			Mark(ierr.ErrSignature)
	}

	return &gateway.ProviderEvent{
		ID:        envelope.ID,
		Type:      envelope.Type,
		CreatedAt: time.Unix(envelope.Created, 0).UTC(),
		Payload:   envelope.Data.Object,
	}, nil
}
