package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/subplane/subplane/internal/domain/billingevent"
	"github.com/subplane/subplane/internal/domain/subscription"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/gateway"
	"github.com/subplane/subplane/internal/types"
)

// Ack is the terminal disposition of a webhook delivery
type Ack struct {
	EventID   string             `json:"event_id"`
	EventType string             `json:"event_type"`
	Outcome   types.EventOutcome `json:"outcome"`
}

// ReconcilerService ingests provider webhook events and converges the
// local subscription record toward the provider's state. The provider is
// the source of truth; effects here only overwrite local fields from
// provider-reported values, keyed by provider identifiers.
type ReconcilerService interface {
	Ingest(ctx context.Context, payload []byte, signature string) (*Ack, error)
}

type reconcilerService struct {
	ServiceParams
}

func NewReconcilerService(params ServiceParams) ReconcilerService {
	return &reconcilerService{ServiceParams: params}
}

// Ingest runs the fixed pipeline: signature -> freshness -> structure ->
// dedup claim -> effect -> commit. Order matters: nothing is parsed
// before the signature holds, and the processed record survives only if
// the effect did.
func (r *reconcilerService) Ingest(ctx context.Context, payload []byte, signature string) (*Ack, error) {
	event, err := r.Verifier.VerifyEvent(payload, signature)
	if err != nil {
		return nil, err
	}

	if age := time.Since(event.CreatedAt); age > r.Config.Billing.EventTolerance {
		return nil, ierr.NewError("event outside freshness window").
			WithHint("Event is too old to process").
			WithReportableDetails(map[string]any{
				"reason":    types.EventRejectStaleEvent,
				"event_id":  event.ID,
				"age":       age.String(),
				"tolerance": r.Config.Billing.EventTolerance.String(),
			}).
			Mark(ierr.ErrStaleEvent)
	}

	if event.ID == "" || event.Type == "" || len(event.Payload) == 0 {
		return nil, ierr.NewError("event missing id, type or payload").
			WithHint("Malformed event").
			WithReportableDetails(map[string]any{
				"reason": types.EventRejectMalformedPayload,
			}).
			Mark(ierr.ErrValidation)
	}

	handler := r.handlerFor(event.Type)
	if handler == nil {
		// unknown types are acknowledged so the provider stops retrying
		r.Logger.Debugw("ignoring unhandled event type",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return &Ack{EventID: event.ID, EventType: event.Type, Outcome: types.EventOutcomeIgnored}, nil
	}

	// Claim the event id before running the effect. The unique constraint
	// is the dedup: a concurrent redelivery loses the insert and is
	// acknowledged as a duplicate without a second effect. Claim and
	// effect share one transaction, so a failed effect rolls the claim
	// back and the provider's redelivery gets to retry.
	claim := &billingevent.ProcessedEvent{
		EventID:     event.ID,
		EventType:   event.Type,
		TenantID:    types.GetTenantID(ctx),
		ProcessedAt: time.Now().UTC(),
	}
	err = r.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := r.BillingEventRepo.Insert(ctx, claim); err != nil {
			return err
		}
		return handler(ctx, event)
	})
	if err != nil {
		if ierr.IsAlreadyExists(err) {
			r.Logger.Infow("duplicate event delivery acknowledged",
				"event_id", event.ID,
				"event_type", event.Type,
			)
			return &Ack{EventID: event.ID, EventType: event.Type, Outcome: types.EventOutcomeDuplicate}, nil
		}
		return nil, err
	}

	r.Logger.Infow("applied event",
		"event_id", event.ID,
		"event_type", event.Type,
	)
	return &Ack{EventID: event.ID, EventType: event.Type, Outcome: types.EventOutcomeApplied}, nil
}

type eventHandler func(ctx context.Context, event *gateway.ProviderEvent) error

func (r *reconcilerService) handlerFor(eventType string) eventHandler {
	switch eventType {
	case types.WebhookEventInvoicePaymentSucceeded:
		return r.handleInvoicePaymentSucceeded
	case types.WebhookEventInvoicePaymentFailed:
		return r.handleInvoicePaymentFailed
	case types.WebhookEventSubscriptionUpdated:
		return r.handleSubscriptionUpdated
	case types.WebhookEventSubscriptionDeleted:
		return r.handleSubscriptionDeleted
	case types.WebhookEventScheduleCreated:
		return r.handleScheduleCreated
	case types.WebhookEventScheduleUpdated:
		return r.handleScheduleUpdated
	case types.WebhookEventScheduleReleased:
		return r.handleScheduleReleased
	}
	return nil
}

// Explicit per-event payload schemas. Only the fields the effects use are
// named; anything else in the provider payload is ignored on purpose.

type invoiceEventPayload struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription"`
	Status         string `json:"status"`
	Total          int64  `json:"total"`
	PeriodStart    int64  `json:"period_start"`
	PeriodEnd      int64  `json:"period_end"`
}

type subscriptionEventPayload struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type scheduleEventPayload struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription"`
	Status         string `json:"status"`
	CurrentPhase   *struct {
		StartDate int64 `json:"start_date"`
		EndDate   int64 `json:"end_date"`
	} `json:"current_phase"`
	Metadata map[string]string `json:"metadata"`
}

func decodePayload(event *gateway.ProviderEvent, dest any) error {
	if err := json.Unmarshal(event.Payload, dest); err != nil {
		return ierr.WithError(err).
			WithHint("Event payload does not match expected schema").
			WithReportableDetails(map[string]any{
				"reason":     types.EventRejectMalformedPayload,
				"event_id":   event.ID,
				"event_type": event.Type,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// resolveSubscription maps a provider subscription id to the local row.
// A miss is tolerated: events can arrive before the local row exists or
// after it was removed, and redelivery solves nothing there.
func (r *reconcilerService) resolveSubscription(ctx context.Context, event *gateway.ProviderEvent, remoteID string) (*subscription.Subscription, error) {
	if remoteID == "" {
		r.Logger.Warnw("event carries no subscription reference",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return nil, nil
	}
	sub, err := r.SubRepo.GetByRemoteSubscriptionID(ctx, remoteID)
	if err != nil {
		if ierr.IsNotFound(err) {
			r.Logger.Warnw("event references unknown subscription",
				"event_id", event.ID,
				"event_type", event.Type,
				"remote_subscription_id", remoteID,
			)
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// applyProviderState is the single write path for provider-reported
// status and period fields
func applyProviderState(sub *subscription.Subscription, state *gateway.SubscriptionState) {
	sub.SubscriptionStatus = state.Status
	sub.CurrentPeriodStart = state.CurrentPeriodStart
	sub.CurrentPeriodEnd = state.CurrentPeriodEnd
}

func (r *reconcilerService) handleInvoicePaymentSucceeded(ctx context.Context, event *gateway.ProviderEvent) error {
	var payload invoiceEventPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}

	sub, err := r.resolveSubscription(ctx, event, payload.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}

	// a settled invoice activates the subscription; the invoice carries
	// the period it paid for, which becomes the new local bounds
	sub.SubscriptionStatus = types.SubscriptionStatusActive
	if payload.PeriodStart > 0 && payload.PeriodEnd > 0 {
		sub.CurrentPeriodStart = time.Unix(payload.PeriodStart, 0).UTC()
		sub.CurrentPeriodEnd = time.Unix(payload.PeriodEnd, 0).UTC()
	}
	return r.SubRepo.Update(ctx, sub)
}

func (r *reconcilerService) handleInvoicePaymentFailed(ctx context.Context, event *gateway.ProviderEvent) error {
	var payload invoiceEventPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}

	sub, err := r.resolveSubscription(ctx, event, payload.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}

	r.Logger.Warnw("payment failed for subscription",
		"subscription_id", sub.ID,
		"invoice_id", payload.ID,
	)
	sub.SubscriptionStatus = types.SubscriptionStatusPastDue
	return r.SubRepo.Update(ctx, sub)
}

func (r *reconcilerService) handleSubscriptionUpdated(ctx context.Context, event *gateway.ProviderEvent) error {
	var payload subscriptionEventPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}

	sub, err := r.resolveSubscription(ctx, event, payload.ID)
	if err != nil || sub == nil {
		return err
	}

	status := types.SubscriptionStatus(payload.Status)
	if err := status.Validate(); err != nil {
		return err
	}

	// field-level overwrite from the event body; the event is the
	// provider's own statement of the new state, so a cleared cancel
	// flag clears ours too
	sub.SubscriptionStatus = status
	sub.CancelAtPeriodEnd = payload.CancelAtPeriodEnd
	if len(payload.Items.Data) > 0 {
		item := payload.Items.Data[0]
		sub.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		sub.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}

	return r.SubRepo.Update(ctx, sub)
}

func (r *reconcilerService) handleSubscriptionDeleted(ctx context.Context, event *gateway.ProviderEvent) error {
	var payload subscriptionEventPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}

	sub, err := r.resolveSubscription(ctx, event, payload.ID)
	if err != nil || sub == nil {
		return err
	}

	sub.SubscriptionStatus = types.SubscriptionStatusCanceled
	sub.CancelAtPeriodEnd = false
	sub.ClearScheduledChange()

	return r.SubRepo.Update(ctx, sub)
}

func (r *reconcilerService) handleScheduleCreated(ctx context.Context, event *gateway.ProviderEvent) error {
	var payload scheduleEventPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}

	sub, err := r.resolveSubscription(ctx, event, payload.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}

	changed := false

	// normally the orchestrator already recorded the schedule id from
	// the synchronous response; this backfills it if the event got here
	// first or the schedule was created out of band
	if sub.HasScheduledChange() && sub.SchedRemoteScheduleID == nil {
		sub.SchedRemoteScheduleID = types.ToNillableString(payload.ID)
		changed = true
	}

	// an interval-switch continuation keeps the subscription renewing,
	// just onto a different interval; any other schedule parks a
	// downgrade, so the current terms stop renewing at the boundary
	reason := types.ScheduledChangeReason(payload.Metadata["subplane_reason"])
	if reason != types.ScheduledChangeReasonIntervalSwitch && !sub.CancelAtPeriodEnd {
		sub.CancelAtPeriodEnd = true
		changed = true
	}

	if !changed {
		return nil
	}
	return r.SubRepo.Update(ctx, sub)
}

func (r *reconcilerService) handleScheduleUpdated(ctx context.Context, event *gateway.ProviderEvent) error {
	var payload scheduleEventPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}

	sub, err := r.resolveSubscription(ctx, event, payload.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}

	sc := sub.GetScheduledChange()
	if sc == nil || sc.RemoteScheduleID != payload.ID {
		// an update for a schedule we are not tracking is a conflict we
		// log and acknowledge; the provider remains authoritative
		r.Logger.Warnw("schedule update does not match tracked schedule",
			"subscription_id", sub.ID,
			"event_schedule_id", payload.ID,
		)
		return nil
	}

	// phase advance: once the current phase starts at (or past) the
	// recorded boundary, the parked change has taken effect. The provider
	// reports phase boundaries in whole seconds, so compare at that
	// precision.
	if payload.CurrentPhase == nil || time.Unix(payload.CurrentPhase.StartDate, 0).UTC().Before(sc.EffectiveAt.Truncate(time.Second)) {
		return nil
	}

	sub.PlanID = sc.TargetPlanID
	sub.BillingInterval = sc.TargetInterval
	sub.CancelAtPeriodEnd = false
	sub.ClearScheduledChange()

	if sub.RemoteSubscriptionID != nil {
		if state, err := r.Gateway.GetSubscription(ctx, *sub.RemoteSubscriptionID); err == nil {
			applyProviderState(sub, state)
		} else {
			r.Logger.Warnw("could not refresh subscription after phase advance",
				"subscription_id", sub.ID,
				"error", err,
			)
		}
	}

	return r.SubRepo.Update(ctx, sub)
}

func (r *reconcilerService) handleScheduleReleased(ctx context.Context, event *gateway.ProviderEvent) error {
	var payload scheduleEventPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}

	sub, err := r.resolveSubscription(ctx, event, payload.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}

	sc := sub.GetScheduledChange()
	if sc == nil || sc.RemoteScheduleID != payload.ID {
		return nil
	}

	// the schedule no longer exists remotely, so nothing is pending.
	// Releases we initiate (reactivation) already cleared this; applying
	// the same clear again is a no-op.
	if sc.Reason == types.ScheduledChangeReasonCancellation {
		sub.CancelAtPeriodEnd = false
		sub.CancellationReason = nil
	}
	sub.ClearScheduledChange()

	return r.SubRepo.Update(ctx, sub)
}
