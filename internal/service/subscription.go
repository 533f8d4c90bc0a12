package service

import (
	"context"
	"time"

	"github.com/subplane/subplane/internal/api/dto"
	"github.com/subplane/subplane/internal/domain/subscription"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/gateway"
	"github.com/subplane/subplane/internal/publisher"
	"github.com/subplane/subplane/internal/types"
)

// SubscriptionService orchestrates subscription lifecycle against the
// billing provider. Every mutation follows the same shape: validate
// locally, call the provider, write locally from the provider's returned
// state only. A remote failure leaves the local row untouched.
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetCurrentSubscription(ctx context.Context) (*dto.SubscriptionResponse, error)
	RequestPlanChange(ctx context.Context, req dto.PlanChangeRequest) (*dto.PlanChangeResponse, error)
	CancelAtPeriodEnd(ctx context.Context, req dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error)
	CancelImmediately(ctx context.Context, req dto.AdminCancelSubscriptionRequest) (*dto.SubscriptionResponse, error)
	Reactivate(ctx context.Context) (*dto.SubscriptionResponse, error)
}

type subscriptionService struct {
	ServiceParams
	policy *PolicyEngine
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
		policy:        NewPolicyEngine(params.Catalog),
	}
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	userID := types.GetUserID(ctx)
	if userID == "" {
		return nil, ierr.NewError("no user in context").
			Mark(ierr.ErrPermissionDenied)
	}

	if existing, err := s.SubRepo.GetByUserID(ctx, userID); err == nil && existing != nil {
		return nil, ierr.NewError("user already has a subscription").
			WithHint("A subscription already exists for this user").
			WithReportableDetails(map[string]any{"subscription_id": existing.ID}).
			Mark(ierr.ErrAlreadyExists)
	} else if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	priceRef, err := s.Catalog.ResolvePriceRef(req.PlanID, req.Interval)
	if err != nil {
		return nil, err
	}

	state, err := s.Gateway.CreateSubscription(ctx, gateway.CreateSubscriptionInput{
		UserID:   userID,
		Email:    req.Email,
		PriceRef: priceRef,
	})
	if err != nil {
		return nil, err
	}

	sub := &subscription.Subscription{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		UserID:               userID,
		RemoteSubscriptionID: types.ToNillableString(state.RemoteSubscriptionID),
		RemoteCustomerID:     types.ToNillableString(state.RemoteCustomerID),
		PlanID:               req.PlanID,
		BillingInterval:      req.Interval,
		SubscriptionStatus:   state.Status,
		CurrentPeriodStart:   state.CurrentPeriodStart,
		CurrentPeriodEnd:     state.CurrentPeriodEnd,
		BaseModel:            types.GetDefaultBaseModel(ctx),
	}

	if err := s.SubRepo.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.Logger.Infow("created subscription",
		"subscription_id", sub.ID,
		"user_id", userID,
		"plan_id", req.PlanID,
		"remote_subscription_id", state.RemoteSubscriptionID,
		"subscription_status", state.Status,
	)

	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) GetCurrentSubscription(ctx context.Context) (*dto.SubscriptionResponse, error) {
	sub, err := s.currentSubscription(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) RequestPlanChange(ctx context.Context, req dto.PlanChangeRequest) (*dto.PlanChangeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.currentSubscription(ctx)
	if err != nil {
		return nil, err
	}

	if !sub.SubscriptionStatus.IsChangeable() {
		return nil, ierr.NewError("subscription not in a changeable state").
			WithHint("Settle outstanding payment before changing plans").
			WithReportableDetails(map[string]any{
				"subscription_status": sub.SubscriptionStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	if sub.CancelAtPeriodEnd {
		return nil, ierr.NewError("subscription is cancelling").
			WithHint("Reactivate the subscription before changing plans").
			Mark(ierr.ErrInvalidOperation)
	}
	if sub.HasScheduledChange() {
		return nil, ierr.NewError("a plan change is already pending").
			WithHint("Wait for the pending change to take effect").
			WithReportableDetails(map[string]any{
				"pending_plan_id": types.FromNillableString(sub.SchedTargetPlanID),
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	if sub.RemoteSubscriptionID == nil {
		return nil, ierr.NewError("subscription has no remote counterpart").
			Mark(ierr.ErrInvalidOperation)
	}

	decision, err := s.policy.DecideTransition(sub.PlanID, sub.BillingInterval, req.TargetPlanID, req.TargetInterval)
	if err != nil {
		return nil, err
	}

	fromPlanID, fromInterval := sub.PlanID, sub.BillingInterval

	if err := s.applyDecision(ctx, sub, decision); err != nil {
		return nil, err
	}

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.publishPlanChangeFact(ctx, sub, fromPlanID, fromInterval, decision)

	s.Logger.Infow("applied plan change",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"from_plan_id", fromPlanID,
		"to_plan_id", decision.TargetPlanID,
		"strategy", decision.Strategy,
	)

	return &dto.PlanChangeResponse{
		Strategy:     decision.Strategy,
		Subscription: dto.NewSubscriptionResponse(sub),
	}, nil
}

// applyDecision executes the remote calls a decision requires and folds
// the provider's returned state into the row. The row is not persisted
// here; a remote failure must leave the caller's stored view untouched.
func (s *subscriptionService) applyDecision(ctx context.Context, sub *subscription.Subscription, decision *TransitionDecision) error {
	remoteID := *sub.RemoteSubscriptionID

	if decision.HasImmediate() {
		state, err := s.Gateway.UpdateSubscriptionPrice(ctx, remoteID, decision.ImmediatePriceRef)
		if err != nil {
			return err
		}
		sub.PlanID = decision.TargetPlanID
		if decision.Strategy == types.ChangeStrategyImmediate {
			sub.BillingInterval = decision.TargetInterval
		}
		sub.SubscriptionStatus = state.Status
		sub.CurrentPeriodStart = state.CurrentPeriodStart
		sub.CurrentPeriodEnd = state.CurrentPeriodEnd
		sub.LastProrationAmount = state.ProrationAmount
	}

	if decision.HasDeferred() {
		// For a mixed upgrade the current price already moved above, so
		// resolve against the row as it stands now and anchor the phase
		// flip at the post-upgrade period end.
		currentRef, err := s.Catalog.ResolvePriceRef(sub.PlanID, sub.BillingInterval)
		if err != nil {
			return err
		}
		schedState, err := s.Gateway.ScheduleChange(ctx, gateway.ScheduleChangeInput{
			RemoteSubscriptionID: remoteID,
			CurrentPriceRef:      currentRef,
			TargetPriceRef:       decision.DeferredPriceRef,
			EffectiveAt:          sub.CurrentPeriodEnd,
			Reason:               decision.DeferredReason,
		})
		if err != nil {
			return err
		}
		sub.SetScheduledChange(subscription.ScheduledChange{
			TargetPlanID:     decision.TargetPlanID,
			TargetInterval:   decision.TargetInterval,
			TargetPriceRef:   decision.DeferredPriceRef,
			EffectiveAt:      schedState.EffectiveAt,
			Reason:           decision.DeferredReason,
			RemoteScheduleID: schedState.ScheduleID,
		})
	}

	return nil
}

func (s *subscriptionService) CancelAtPeriodEnd(ctx context.Context, req dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	sub, err := s.currentSubscription(ctx)
	if err != nil {
		return nil, err
	}

	if sub.CancelAtPeriodEnd {
		return nil, ierr.NewError("subscription is already cancelling").
			WithHint("The subscription is already set to cancel at period end").
			Mark(ierr.ErrInvalidOperation)
	}
	if sub.HasScheduledChange() {
		return nil, ierr.NewError("a plan change is already pending").
			WithHint("Resolve the pending change before cancelling").
			Mark(ierr.ErrInvalidOperation)
	}
	if sub.RemoteSubscriptionID == nil {
		return nil, ierr.NewError("subscription has no remote counterpart").
			Mark(ierr.ErrInvalidOperation)
	}

	// Cancellation is modelled as a deferred downgrade to the default
	// plan. The user keeps paid-for access until the period boundary and
	// the provider does the flipping.
	defaultPlanID := s.Catalog.DefaultPlanID()
	targetRef, err := s.Catalog.ResolvePriceRef(defaultPlanID, sub.BillingInterval)
	if err != nil {
		return nil, err
	}
	currentRef, err := s.Catalog.ResolvePriceRef(sub.PlanID, sub.BillingInterval)
	if err != nil {
		return nil, err
	}

	schedState, err := s.Gateway.ScheduleChange(ctx, gateway.ScheduleChangeInput{
		RemoteSubscriptionID: *sub.RemoteSubscriptionID,
		CurrentPriceRef:      currentRef,
		TargetPriceRef:       targetRef,
		EffectiveAt:          sub.CurrentPeriodEnd,
		Reason:               types.ScheduledChangeReasonCancellation,
	})
	if err != nil {
		return nil, err
	}

	sub.CancelAtPeriodEnd = true
	sub.CancellationReason = types.ToNillableString(req.Reason)
	sub.SetScheduledChange(subscription.ScheduledChange{
		TargetPlanID:     defaultPlanID,
		TargetInterval:   sub.BillingInterval,
		TargetPriceRef:   targetRef,
		EffectiveAt:      schedState.EffectiveAt,
		Reason:           types.ScheduledChangeReasonCancellation,
		RemoteScheduleID: schedState.ScheduleID,
	})

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.Logger.Infow("scheduled cancellation at period end",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"effective_at", schedState.EffectiveAt,
	)

	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) CancelImmediately(ctx context.Context, req dto.AdminCancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if !types.IsAdmin(ctx) {
		return nil, ierr.NewError("immediate cancellation is a privileged operation").
			WithHint("Not allowed").
			Mark(ierr.ErrPermissionDenied)
	}

	sub, err := s.SubRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if sub.RemoteSubscriptionID == nil {
		return nil, ierr.NewError("subscription has no remote counterpart").
			Mark(ierr.ErrInvalidOperation)
	}

	// Any parked schedule dies with the subscription; release it first so
	// the provider does not keep a dangling schedule around.
	if sub.SchedRemoteScheduleID != nil {
		if err := s.Gateway.ReleaseSchedule(ctx, *sub.SchedRemoteScheduleID); err != nil {
			s.Logger.Warnw("failed to release schedule before immediate cancel",
				"subscription_id", sub.ID,
				"schedule_id", *sub.SchedRemoteScheduleID,
				"error", err,
			)
		}
	}

	state, err := s.Gateway.CancelSubscription(ctx, *sub.RemoteSubscriptionID, true)
	if err != nil {
		return nil, err
	}

	// The cancel response is synchronous and authoritative, so this is
	// the one place outside the reconciler that writes canceled.
	sub.SubscriptionStatus = state.Status
	sub.CancelAtPeriodEnd = false
	sub.CancellationReason = types.ToNillableString(req.Reason)
	sub.ClearScheduledChange()

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.Logger.Infow("cancelled subscription immediately",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
	)

	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) Reactivate(ctx context.Context) (*dto.SubscriptionResponse, error) {
	sub, err := s.currentSubscription(ctx)
	if err != nil {
		return nil, err
	}

	if !sub.CancelAtPeriodEnd {
		return nil, ierr.NewError("subscription is not cancelling").
			WithHint("There is no pending cancellation to undo").
			Mark(ierr.ErrInvalidOperation)
	}
	if !time.Now().UTC().Before(sub.CurrentPeriodEnd) {
		return nil, ierr.NewError("reactivation window has closed").
			WithHint("The paid-for period has ended; start a new subscription instead").
			WithReportableDetails(map[string]any{
				"reason":             "grace_period_expired",
				"current_period_end": sub.CurrentPeriodEnd,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if sub.SchedRemoteScheduleID != nil {
		if err := s.Gateway.ReleaseSchedule(ctx, *sub.SchedRemoteScheduleID); err != nil {
			return nil, err
		}
	}

	sub.CancelAtPeriodEnd = false
	sub.CancellationReason = nil
	sub.ClearScheduledChange()

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.Logger.Infow("reactivated subscription",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
	)

	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) currentSubscription(ctx context.Context) (*subscription.Subscription, error) {
	userID := types.GetUserID(ctx)
	if userID == "" {
		return nil, ierr.NewError("no user in context").
			Mark(ierr.ErrPermissionDenied)
	}
	return s.SubRepo.GetByUserID(ctx, userID)
}

// publishPlanChangeFact emits the analytics fact for an accepted change.
// Publishing is best effort: the change has already been applied and a
// publish failure must not unwind it.
func (s *subscriptionService) publishPlanChangeFact(
	ctx context.Context,
	sub *subscription.Subscription,
	fromPlanID string,
	fromInterval types.BillingInterval,
	decision *TransitionDecision,
) {
	if s.FactPublisher == nil {
		return
	}
	fact := &publisher.PlanChangeFact{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ANALYTICS_EVENT),
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		FromPlanID:     fromPlanID,
		ToPlanID:       decision.TargetPlanID,
		FromInterval:   fromInterval,
		ToInterval:     decision.TargetInterval,
		Strategy:       decision.Strategy,
		RequestedAt:    time.Now().UTC(),
	}
	if err := s.FactPublisher.PublishPlanChange(ctx, fact); err != nil {
		s.Logger.Warnw("failed to publish plan change fact",
			"subscription_id", sub.ID,
			"fact_id", fact.ID,
			"error", err,
		)
	}
}
