package types

// Provider webhook event types we act on. Anything outside this set is
// acknowledged and dropped so the provider doesn't retry it forever.
const (
	WebhookEventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	WebhookEventInvoicePaymentFailed    = "invoice.payment_failed"
	WebhookEventSubscriptionUpdated     = "customer.subscription.updated"
	WebhookEventSubscriptionDeleted     = "customer.subscription.deleted"
	WebhookEventScheduleCreated         = "subscription_schedule.created"
	WebhookEventScheduleUpdated         = "subscription_schedule.updated"
	WebhookEventScheduleReleased        = "subscription_schedule.released"
)

// EventRejectReason explains why an inbound webhook delivery was refused.
// Returned in the error payload so provider-side debugging is possible
// without trawling logs.
type EventRejectReason string

const (
	EventRejectInvalidSignature EventRejectReason = "invalid_signature"
	EventRejectStaleEvent       EventRejectReason = "stale_event"
	EventRejectMalformedPayload EventRejectReason = "malformed_payload"
)

// EventOutcome is the terminal state of a processed webhook delivery.
type EventOutcome string

const (
	EventOutcomeApplied   EventOutcome = "applied"
	EventOutcomeDuplicate EventOutcome = "duplicate"
	EventOutcomeIgnored   EventOutcome = "ignored"
)
