package stripegw

import (
	"time"

	"github.com/subplane/subplane/internal/config"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/gateway"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/types"

	"github.com/stripe/stripe-go/v82/webhook"
)

// Verifier checks Stripe webhook signatures
type Verifier struct {
	secret string
	logger *logger.Logger
}

var _ gateway.EventVerifier = (*Verifier)(nil)

func NewVerifier(cfg *config.Configuration, logger *logger.Logger) *Verifier {
	return &Verifier{
		secret: cfg.Billing.WebhookSecret,
		logger: logger,
	}
}

// VerifyEvent verifies the signature on the raw body before anything is
// parsed. Stripe's own timestamp tolerance is disabled here; freshness is
// checked by the caller so a stale delivery is distinguishable from a
// forged one.
func (v *Verifier) VerifyEvent(payload []byte, signature string) (*gateway.ProviderEvent, error) {
	options := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
		IgnoreTolerance:          true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, options)
	if err != nil {
		v.logger.Warnw("webhook signature verification failed", "error", err)
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook signature or payload").
			WithReportableDetails(map[string]any{
				"reason": types.EventRejectInvalidSignature,
			}).
			Mark(ierr.ErrSignature)
	}

	return &gateway.ProviderEvent{
		ID:        event.ID,
		Type:      string(event.Type),
		CreatedAt: time.Unix(event.Created, 0).UTC(),
		Payload:   event.Data.Raw,
	}, nil
}
