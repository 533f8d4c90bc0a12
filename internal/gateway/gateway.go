package gateway

import (
	"context"
	"time"

	"github.com/subplane/subplane/internal/types"

	"github.com/shopspring/decimal"
)

// SubscriptionState is the provider's authoritative view of a
// subscription, as returned by a synchronous gateway call. Local writes
// are made from this state only, never from what we expected to happen.
type SubscriptionState struct {
	RemoteSubscriptionID string
	RemoteCustomerID     string
	Status               types.SubscriptionStatus
	PriceRef             string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	// ProrationAmount is the provider-computed proration for the call
	// that produced this state, when the provider reported one
	ProrationAmount *decimal.Decimal
}

// ScheduleState describes a remote schedule parked against a subscription
type ScheduleState struct {
	ScheduleID     string
	EffectiveAt    time.Time
	TargetPriceRef string
}

// CreateSubscriptionInput carries what the provider needs to open a
// subscription for a user
type CreateSubscriptionInput struct {
	UserID   string
	Email    string
	PriceRef string
}

// ScheduleChangeInput parks a price flip at a boundary. EffectiveAt is
// the period boundary the current phase runs until; the provider is the
// timer, we never schedule locally.
type ScheduleChangeInput struct {
	RemoteSubscriptionID string
	CurrentPriceRef      string
	TargetPriceRef       string
	EffectiveAt          time.Time
	Reason               types.ScheduledChangeReason
}

// BillingGateway is the consumed capability boundary to the remote
// billing provider. Implementations must keep every call bounded by the
// caller's context.
type BillingGateway interface {
	// CreateSubscription opens a customer (if needed) and subscription
	// at the provider
	CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*SubscriptionState, error)

	// GetSubscription re-reads remote state. Idempotent; used to resolve
	// ambiguous outcomes after timeouts.
	GetSubscription(ctx context.Context, remoteSubscriptionID string) (*SubscriptionState, error)

	// UpdateSubscriptionPrice swaps the subscription's price in place
	// with provider-side proration
	UpdateSubscriptionPrice(ctx context.Context, remoteSubscriptionID, priceRef string) (*SubscriptionState, error)

	// ScheduleChange parks a deferred price flip on a remote schedule
	ScheduleChange(ctx context.Context, input ScheduleChangeInput) (*ScheduleState, error)

	// ReleaseSchedule detaches a schedule, leaving the subscription as-is
	ReleaseSchedule(ctx context.Context, scheduleID string) error

	// CancelSubscription terminates the subscription now, with a
	// prorated final invoice when prorate is set
	CancelSubscription(ctx context.Context, remoteSubscriptionID string, prorate bool) (*SubscriptionState, error)
}
