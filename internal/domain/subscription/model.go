package subscription

import (
	"time"

	"github.com/subplane/subplane/internal/types"

	"github.com/shopspring/decimal"
)

type Subscription struct {
	// ID is the unique identifier for the subscription in our system
	ID string `db:"id" json:"id"`

	// UserID is the identifier for the owning user. A user holds at most
	// one live subscription row at a time.
	UserID string `db:"user_id" json:"user_id"`

	// RemoteSubscriptionID is the billing provider's subscription id.
	// Nil until the provider has acknowledged creation.
	RemoteSubscriptionID *string `db:"remote_subscription_id" json:"remote_subscription_id"`

	// RemoteCustomerID is the billing provider's customer id
	RemoteCustomerID *string `db:"remote_customer_id" json:"remote_customer_id"`

	// PlanID references the plan catalog
	PlanID string `db:"plan_id" json:"plan_id"`

	// BillingInterval is the recurrence currently billed
	BillingInterval types.BillingInterval `db:"billing_interval" json:"billing_interval"`

	// SubscriptionStatus mirrors the provider-reported billing state.
	// The reconciler is the only writer except for creation (incomplete)
	// and immediate cancellation (canceled).
	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`

	// CurrentPeriodStart is the start of the period the subscription has
	// been invoiced for, as reported by the provider
	CurrentPeriodStart time.Time `db:"current_period_start" json:"current_period_start"`

	// CurrentPeriodEnd is the end of the invoiced period. Deferred
	// changes and cancellations take effect at this boundary.
	CurrentPeriodEnd time.Time `db:"current_period_end" json:"current_period_end"`

	// CancelAtPeriodEnd is set while a cancellation is parked on a schedule
	CancelAtPeriodEnd bool `db:"cancel_at_period_end" json:"cancel_at_period_end"`

	// CancellationReason is the user-supplied reason captured at cancel time
	CancellationReason *string `db:"cancellation_reason" json:"cancellation_reason"`

	// LastProrationAmount is the proration the provider reported for the
	// most recent immediate change. Recorded verbatim, never computed here.
	LastProrationAmount *decimal.Decimal `db:"last_proration_amount" json:"last_proration_amount"`

	// Scheduled change columns. All nil iff no change is pending.
	SchedTargetPlanID     *string                `db:"sched_target_plan_id" json:"sched_target_plan_id"`
	SchedTargetInterval   *types.BillingInterval `db:"sched_target_interval" json:"sched_target_interval"`
	SchedTargetPriceRef   *string                `db:"sched_target_price_ref" json:"sched_target_price_ref"`
	SchedEffectiveAt      *time.Time             `db:"sched_effective_at" json:"sched_effective_at"`
	SchedReason           *string                `db:"sched_reason" json:"sched_reason"`
	SchedRemoteScheduleID *string                `db:"sched_remote_schedule_id" json:"sched_remote_schedule_id"`

	types.BaseModel
}

// ScheduledChange is the pending deferred transition, if any
type ScheduledChange struct {
	TargetPlanID     string
	TargetInterval   types.BillingInterval
	TargetPriceRef   string
	EffectiveAt      time.Time
	Reason           types.ScheduledChangeReason
	RemoteScheduleID string
}

// GetScheduledChange returns the pending change or nil
func (s *Subscription) GetScheduledChange() *ScheduledChange {
	if s.SchedTargetPlanID == nil {
		return nil
	}
	sc := &ScheduledChange{
		TargetPlanID:   *s.SchedTargetPlanID,
		TargetPriceRef: types.FromNillableString(s.SchedTargetPriceRef),
	}
	if s.SchedTargetInterval != nil {
		sc.TargetInterval = *s.SchedTargetInterval
	}
	if s.SchedEffectiveAt != nil {
		sc.EffectiveAt = *s.SchedEffectiveAt
	}
	if s.SchedReason != nil {
		sc.Reason = types.ScheduledChangeReason(*s.SchedReason)
	}
	sc.RemoteScheduleID = types.FromNillableString(s.SchedRemoteScheduleID)
	return sc
}

// SetScheduledChange records a pending deferred transition on the row
func (s *Subscription) SetScheduledChange(sc ScheduledChange) {
	reason := sc.Reason.String()
	s.SchedTargetPlanID = &sc.TargetPlanID
	s.SchedTargetInterval = &sc.TargetInterval
	s.SchedTargetPriceRef = types.ToNillableString(sc.TargetPriceRef)
	s.SchedEffectiveAt = &sc.EffectiveAt
	s.SchedReason = &reason
	s.SchedRemoteScheduleID = types.ToNillableString(sc.RemoteScheduleID)
}

// ClearScheduledChange drops any pending change from the row
func (s *Subscription) ClearScheduledChange() {
	s.SchedTargetPlanID = nil
	s.SchedTargetInterval = nil
	s.SchedTargetPriceRef = nil
	s.SchedEffectiveAt = nil
	s.SchedReason = nil
	s.SchedRemoteScheduleID = nil
}

// HasScheduledChange reports whether a deferred transition is pending
func (s *Subscription) HasScheduledChange() bool {
	return s.SchedTargetPlanID != nil
}
