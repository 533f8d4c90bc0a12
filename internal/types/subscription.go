package types

import (
	ierr "github.com/subplane/subplane/internal/errors"

	"github.com/samber/lo"
)

// SubscriptionStatus mirrors the billing provider's subscription status values.
// The provider is the source of truth; we never invent states it doesn't report.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusActive,
		SubscriptionStatusTrialing,
		SubscriptionStatusPastDue,
		SubscriptionStatusUnpaid,
		SubscriptionStatusCanceled,
		SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired,
		SubscriptionStatusPaused,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"given":   s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsChangeable reports whether a plan change may be requested while the
// subscription is in this status. Delinquent and terminal states refuse
// changes; the caller must settle or reactivate first.
func (s SubscriptionStatus) IsChangeable() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// BillingInterval is the recurrence of a price.
type BillingInterval string

const (
	BillingIntervalMonthly BillingInterval = "month"
	BillingIntervalAnnual  BillingInterval = "year"
)

func (b BillingInterval) String() string {
	return string(b)
}

func (b BillingInterval) Validate() error {
	allowed := []BillingInterval{
		BillingIntervalMonthly,
		BillingIntervalAnnual,
	}
	if !lo.Contains(allowed, b) {
		return ierr.NewError("invalid billing interval").
			WithHint("Invalid billing interval").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"given":   b,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TransitionKind classifies a requested plan change relative to the current plan.
type TransitionKind string

const (
	TransitionKindUpgrade   TransitionKind = "upgrade"
	TransitionKindDowngrade TransitionKind = "downgrade"
	// TransitionKindLateral is the same plan at a different interval
	TransitionKindLateral TransitionKind = "lateral"
	// TransitionKindInvalid is a pair with no catalog edge
	TransitionKindInvalid TransitionKind = "invalid"
)

func (t TransitionKind) String() string {
	return string(t)
}

// ChangeStrategy is how a plan transition is applied against the provider.
type ChangeStrategy string

const (
	// ChangeStrategyImmediate updates the subscription in place with proration
	ChangeStrategyImmediate ChangeStrategy = "immediate"
	// ChangeStrategyDeferredDowngrade parks the full change on a schedule
	// that flips at the end of the current period
	ChangeStrategyDeferredDowngrade ChangeStrategy = "deferred_downgrade"
	// ChangeStrategyDeferredIntervalSwitch parks a same-plan interval
	// change on a schedule at the end of the current period
	ChangeStrategyDeferredIntervalSwitch ChangeStrategy = "deferred_interval_switch"
	// ChangeStrategyMixedUpgrade applies the tier change immediately and
	// parks the interval change on a schedule anchored at the new period end
	ChangeStrategyMixedUpgrade ChangeStrategy = "mixed_upgrade"
)

func (c ChangeStrategy) String() string {
	return string(c)
}

// ScheduledChangeReason records why a deferred change was parked on a schedule.
type ScheduledChangeReason string

const (
	ScheduledChangeReasonDowngrade      ScheduledChangeReason = "downgrade"
	ScheduledChangeReasonIntervalSwitch ScheduledChangeReason = "interval_switch"
	ScheduledChangeReasonCancellation   ScheduledChangeReason = "cancellation"
)

func (r ScheduledChangeReason) String() string {
	return string(r)
}

func (r ScheduledChangeReason) Validate() error {
	allowed := []ScheduledChangeReason{
		ScheduledChangeReasonDowngrade,
		ScheduledChangeReasonIntervalSwitch,
		ScheduledChangeReasonCancellation,
	}
	if !lo.Contains(allowed, r) {
		return ierr.NewError("invalid scheduled change reason").
			WithHint("Invalid scheduled change reason").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"given":   r,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
