package service

import (
	"testing"

	"github.com/subplane/subplane/internal/domain/plan"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *plan.Catalog {
	t.Helper()
	catalog, err := plan.NewCatalog([]*plan.Plan{
		{
			ID:              "free",
			MonthlyPriceRef: "price_free_m",
			AnnualPriceRef:  "price_free_y",
			UpgradeTargets:  []string{"pro"},
		},
		{
			ID:               "pro",
			MonthlyPriceRef:  "price_pro_m",
			AnnualPriceRef:   "price_pro_y",
			UpgradeTargets:   []string{"business"},
			DowngradeTargets: []string{"free"},
		},
		{
			ID:               "business",
			MonthlyPriceRef:  "price_biz_m",
			AnnualPriceRef:   "price_biz_y",
			DowngradeTargets: []string{"pro", "free"},
		},
	}, "free")
	require.NoError(t, err)
	return catalog
}

func TestDecideTransition(t *testing.T) {
	engine := NewPolicyEngine(testCatalog(t))

	testCases := []struct {
		name             string
		fromPlan         string
		fromInterval     types.BillingInterval
		toPlan           string
		toInterval       types.BillingInterval
		wantStrategy     types.ChangeStrategy
		wantImmediateRef string
		wantDeferredRef  string
		wantReason       types.ScheduledChangeReason
		wantErr          func(error) bool
	}{
		{
			name:             "upgrade same interval is immediate",
			fromPlan:         "free",
			fromInterval:     types.BillingIntervalMonthly,
			toPlan:           "pro",
			toInterval:       types.BillingIntervalMonthly,
			wantStrategy:     types.ChangeStrategyImmediate,
			wantImmediateRef: "price_pro_m",
		},
		{
			name:             "upgrade with interval change is mixed",
			fromPlan:         "pro",
			fromInterval:     types.BillingIntervalMonthly,
			toPlan:           "business",
			toInterval:       types.BillingIntervalAnnual,
			wantStrategy:     types.ChangeStrategyMixedUpgrade,
			wantImmediateRef: "price_biz_m",
			wantDeferredRef:  "price_biz_y",
			wantReason:       types.ScheduledChangeReasonIntervalSwitch,
		},
		{
			name:            "downgrade same interval defers",
			fromPlan:        "business",
			fromInterval:    types.BillingIntervalMonthly,
			toPlan:          "pro",
			toInterval:      types.BillingIntervalMonthly,
			wantStrategy:    types.ChangeStrategyDeferredDowngrade,
			wantDeferredRef: "price_pro_m",
			wantReason:      types.ScheduledChangeReasonDowngrade,
		},
		{
			name:            "downgrade with interval change stays a downgrade",
			fromPlan:        "business",
			fromInterval:    types.BillingIntervalAnnual,
			toPlan:          "pro",
			toInterval:      types.BillingIntervalMonthly,
			wantStrategy:    types.ChangeStrategyDeferredDowngrade,
			wantDeferredRef: "price_pro_m",
			wantReason:      types.ScheduledChangeReasonDowngrade,
		},
		{
			name:            "same plan interval change defers the switch",
			fromPlan:        "pro",
			fromInterval:    types.BillingIntervalMonthly,
			toPlan:          "pro",
			toInterval:      types.BillingIntervalAnnual,
			wantStrategy:    types.ChangeStrategyDeferredIntervalSwitch,
			wantDeferredRef: "price_pro_y",
			wantReason:      types.ScheduledChangeReasonIntervalSwitch,
		},
		{
			name:         "same plan same interval is rejected",
			fromPlan:     "pro",
			fromInterval: types.BillingIntervalMonthly,
			toPlan:       "pro",
			toInterval:   types.BillingIntervalMonthly,
			wantErr:      ierr.IsInvalidOperation,
		},
		{
			name:         "no catalog edge is rejected",
			fromPlan:     "free",
			fromInterval: types.BillingIntervalMonthly,
			toPlan:       "business",
			toInterval:   types.BillingIntervalMonthly,
			wantErr:      ierr.IsValidation,
		},
		{
			name:         "unknown target plan is rejected",
			fromPlan:     "business",
			fromInterval: types.BillingIntervalMonthly,
			toPlan:       "missing",
			toInterval:   types.BillingIntervalMonthly,
			wantErr:      ierr.IsValidation,
		},
		{
			name:         "invalid interval is rejected",
			fromPlan:     "free",
			fromInterval: types.BillingIntervalMonthly,
			toPlan:       "pro",
			toInterval:   types.BillingInterval("weekly"),
			wantErr:      ierr.IsValidation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := engine.DecideTransition(tc.fromPlan, tc.fromInterval, tc.toPlan, tc.toInterval)

			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tc.wantErr(err), "unexpected error class: %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantStrategy, decision.Strategy)
			assert.Equal(t, tc.wantImmediateRef, decision.ImmediatePriceRef)
			assert.Equal(t, tc.wantDeferredRef, decision.DeferredPriceRef)
			if tc.wantDeferredRef != "" {
				assert.Equal(t, tc.wantReason, decision.DeferredReason)
			}
		})
	}
}

func TestDecideTransitionIsPure(t *testing.T) {
	// the decision must not depend on call order or repeat count
	engine := NewPolicyEngine(testCatalog(t))

	first, err := engine.DecideTransition("free", types.BillingIntervalMonthly, "pro", types.BillingIntervalMonthly)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := engine.DecideTransition("free", types.BillingIntervalMonthly, "pro", types.BillingIntervalMonthly)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
