package dto

import (
	"time"

	"github.com/subplane/subplane/internal/domain/subscription"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/types"

	"github.com/shopspring/decimal"
)

type CreateSubscriptionRequest struct {
	PlanID   string                `json:"plan_id" binding:"required"`
	Interval types.BillingInterval `json:"interval" binding:"required"`
	Email    string                `json:"email" binding:"required,email"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if r.PlanID == "" {
		return ierr.NewError("plan_id is required").
			WithHint("Plan ID is required").
			Mark(ierr.ErrValidation)
	}
	return r.Interval.Validate()
}

type PlanChangeRequest struct {
	TargetPlanID   string                `json:"target_plan_id" binding:"required"`
	TargetInterval types.BillingInterval `json:"target_interval" binding:"required"`
}

func (r *PlanChangeRequest) Validate() error {
	if r.TargetPlanID == "" {
		return ierr.NewError("target_plan_id is required").
			WithHint("Target plan ID is required").
			Mark(ierr.ErrValidation)
	}
	return r.TargetInterval.Validate()
}

type CancelSubscriptionRequest struct {
	Reason   string `json:"reason"`
	Feedback string `json:"feedback"`
}

type AdminCancelSubscriptionRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// ScheduledChangeResponse surfaces a pending deferred transition
type ScheduledChangeResponse struct {
	TargetPlanID   string                      `json:"target_plan_id"`
	TargetInterval types.BillingInterval       `json:"target_interval"`
	EffectiveAt    time.Time                   `json:"effective_at"`
	Reason         types.ScheduledChangeReason `json:"reason"`
}

type SubscriptionResponse struct {
	ID                  string                   `json:"id"`
	UserID              string                   `json:"user_id"`
	PlanID              string                   `json:"plan_id"`
	BillingInterval     types.BillingInterval    `json:"billing_interval"`
	SubscriptionStatus  types.SubscriptionStatus `json:"subscription_status"`
	CurrentPeriodStart  time.Time                `json:"current_period_start"`
	CurrentPeriodEnd    time.Time                `json:"current_period_end"`
	CancelAtPeriodEnd   bool                     `json:"cancel_at_period_end"`
	LastProrationAmount *decimal.Decimal         `json:"last_proration_amount,omitempty"`
	ScheduledChange     *ScheduledChangeResponse `json:"scheduled_change,omitempty"`
}

// PlanChangeResponse reports what the orchestrator did with the request
type PlanChangeResponse struct {
	Strategy     types.ChangeStrategy  `json:"strategy"`
	Subscription *SubscriptionResponse `json:"subscription"`
}

// NewSubscriptionResponse maps the domain model to its API shape
func NewSubscriptionResponse(sub *subscription.Subscription) *SubscriptionResponse {
	resp := &SubscriptionResponse{
		ID:                  sub.ID,
		UserID:              sub.UserID,
		PlanID:              sub.PlanID,
		BillingInterval:     sub.BillingInterval,
		SubscriptionStatus:  sub.SubscriptionStatus,
		CurrentPeriodStart:  sub.CurrentPeriodStart,
		CurrentPeriodEnd:    sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:   sub.CancelAtPeriodEnd,
		LastProrationAmount: sub.LastProrationAmount,
	}
	if sc := sub.GetScheduledChange(); sc != nil {
		resp.ScheduledChange = &ScheduledChangeResponse{
			TargetPlanID:   sc.TargetPlanID,
			TargetInterval: sc.TargetInterval,
			EffectiveAt:    sc.EffectiveAt,
			Reason:         sc.Reason,
		}
	}
	return resp
}
