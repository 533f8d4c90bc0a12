package service

import (
	"github.com/subplane/subplane/internal/domain/plan"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/types"
)

// TransitionDecision is the policy engine's verdict on a requested plan
// change: which strategy applies and which provider price references the
// orchestrator should use. The decision is pure; no remote call happens
// before it is made.
type TransitionDecision struct {
	Kind           types.TransitionKind
	Strategy       types.ChangeStrategy
	TargetPlanID   string
	TargetInterval types.BillingInterval

	// ImmediatePriceRef is the price applied in place, set for the
	// immediate and mixed_upgrade strategies
	ImmediatePriceRef string

	// DeferredPriceRef is the price parked on a schedule, set for the
	// deferred strategies and mixed_upgrade
	DeferredPriceRef string
	DeferredReason   types.ScheduledChangeReason
}

// HasImmediate reports whether the decision includes an in-place price change
func (d *TransitionDecision) HasImmediate() bool {
	return d.ImmediatePriceRef != ""
}

// HasDeferred reports whether the decision includes a scheduled change
func (d *TransitionDecision) HasDeferred() bool {
	return d.DeferredPriceRef != ""
}

// PolicyEngine decides how a plan transition is applied. The rules:
//
//	upgrade, same interval      -> immediate (prorated, user gets value now)
//	upgrade, interval change    -> mixed_upgrade (tier now, interval at boundary)
//	downgrade, any interval     -> deferred_downgrade (user keeps what was paid
//	                               for; an interval change rides along)
//	same plan, interval change  -> deferred_interval_switch
//	same plan, same interval    -> rejected, nothing to do
//	no catalog edge             -> rejected before any remote call
type PolicyEngine struct {
	catalog *plan.Catalog
}

func NewPolicyEngine(catalog *plan.Catalog) *PolicyEngine {
	return &PolicyEngine{catalog: catalog}
}

// DecideTransition classifies and resolves a requested change. Price
// references are resolved up front so the orchestrator never touches the
// catalog mid-flight.
func (p *PolicyEngine) DecideTransition(
	currentPlanID string,
	currentInterval types.BillingInterval,
	targetPlanID string,
	targetInterval types.BillingInterval,
) (*TransitionDecision, error) {
	if err := targetInterval.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.catalog.Get(targetPlanID); err != nil {
		return nil, ierr.NewError("unknown target plan").
			WithHint("Requested plan does not exist").
			WithReportableDetails(map[string]any{"target_plan_id": targetPlanID}).
			Mark(ierr.ErrValidation)
	}

	kind := p.catalog.TransitionKind(currentPlanID, targetPlanID)
	intervalChanges := currentInterval != targetInterval

	decision := &TransitionDecision{
		Kind:           kind,
		TargetPlanID:   targetPlanID,
		TargetInterval: targetInterval,
	}

	switch kind {
	case types.TransitionKindInvalid:
		return nil, ierr.NewError("plan transition not allowed").
			WithHint("The requested plan change is not available").
			WithReportableDetails(map[string]any{
				"from_plan_id": currentPlanID,
				"to_plan_id":   targetPlanID,
			}).
			Mark(ierr.ErrValidation)

	case types.TransitionKindLateral:
		if !intervalChanges {
			return nil, ierr.NewError("subscription already on requested plan and interval").
				WithHint("Nothing to change").
				Mark(ierr.ErrInvalidOperation)
		}
		ref, err := p.catalog.ResolvePriceRef(targetPlanID, targetInterval)
		if err != nil {
			return nil, err
		}
		decision.Strategy = types.ChangeStrategyDeferredIntervalSwitch
		decision.DeferredPriceRef = ref
		decision.DeferredReason = types.ScheduledChangeReasonIntervalSwitch
		return decision, nil

	case types.TransitionKindDowngrade:
		// A downgrade defers even when the interval also changes: the
		// tier move sets the policy, the interval rides along in the
		// single deferred phase.
		ref, err := p.catalog.ResolvePriceRef(targetPlanID, targetInterval)
		if err != nil {
			return nil, err
		}
		decision.Strategy = types.ChangeStrategyDeferredDowngrade
		decision.DeferredPriceRef = ref
		decision.DeferredReason = types.ScheduledChangeReasonDowngrade
		return decision, nil

	case types.TransitionKindUpgrade:
		if !intervalChanges {
			ref, err := p.catalog.ResolvePriceRef(targetPlanID, targetInterval)
			if err != nil {
				return nil, err
			}
			decision.Strategy = types.ChangeStrategyImmediate
			decision.ImmediatePriceRef = ref
			return decision, nil
		}

		// Mixed upgrade: the tier changes now at the current interval,
		// the interval flips at the post-upgrade period boundary.
		immediateRef, err := p.catalog.ResolvePriceRef(targetPlanID, currentInterval)
		if err != nil {
			return nil, err
		}
		deferredRef, err := p.catalog.ResolvePriceRef(targetPlanID, targetInterval)
		if err != nil {
			return nil, err
		}
		decision.Strategy = types.ChangeStrategyMixedUpgrade
		decision.ImmediatePriceRef = immediateRef
		decision.DeferredPriceRef = deferredRef
		decision.DeferredReason = types.ScheduledChangeReasonIntervalSwitch
		return decision, nil
	}

	return nil, ierr.NewError("unclassifiable plan transition").
		WithReportableDetails(map[string]any{
			"from_plan_id": currentPlanID,
			"to_plan_id":   targetPlanID,
		}).
		Mark(ierr.ErrSystem)
}
