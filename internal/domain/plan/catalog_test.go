package plan

import (
	"testing"

	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlans() []*Plan {
	return []*Plan{
		{
			ID:              "free",
			Name:            "Free",
			MonthlyPriceRef: "price_free_m",
			AnnualPriceRef:  "price_free_y",
			IncludedUnits:   100,
			UpgradeTargets:  []string{"pro", "business"},
		},
		{
			ID:               "pro",
			Name:             "Pro",
			MonthlyPriceRef:  "price_pro_m",
			AnnualPriceRef:   "price_pro_y",
			IncludedUnits:    10000,
			AllowsOverage:    true,
			UpgradeTargets:   []string{"business"},
			DowngradeTargets: []string{"free"},
		},
		{
			ID:               "business",
			Name:             "Business",
			MonthlyPriceRef:  "price_biz_m",
			AnnualPriceRef:   "price_biz_y",
			IncludedUnits:    100000,
			AllowsOverage:    true,
			DowngradeTargets: []string{"pro", "free"},
		},
	}
}

func TestNewCatalogValidation(t *testing.T) {
	t.Run("valid catalog", func(t *testing.T) {
		c, err := NewCatalog(testPlans(), "free")
		require.NoError(t, err)
		assert.Equal(t, "free", c.DefaultPlanID())
	})

	t.Run("unknown transition target", func(t *testing.T) {
		plans := testPlans()
		plans[0].UpgradeTargets = append(plans[0].UpgradeTargets, "enterprise")
		_, err := NewCatalog(plans, "free")
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("missing default plan", func(t *testing.T) {
		_, err := NewCatalog(testPlans(), "enterprise")
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("duplicate plan id", func(t *testing.T) {
		plans := append(testPlans(), &Plan{
			ID:              "pro",
			MonthlyPriceRef: "price_x_m",
			AnnualPriceRef:  "price_x_y",
		})
		_, err := NewCatalog(plans, "free")
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("missing price ref", func(t *testing.T) {
		plans := testPlans()
		plans[1].AnnualPriceRef = ""
		_, err := NewCatalog(plans, "free")
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})
}

func TestCatalogTransitionKind(t *testing.T) {
	c, err := NewCatalog(testPlans(), "free")
	require.NoError(t, err)

	tests := []struct {
		name string
		from string
		to   string
		want types.TransitionKind
	}{
		{"upgrade edge", "free", "pro", types.TransitionKindUpgrade},
		{"skip-tier upgrade edge", "free", "business", types.TransitionKindUpgrade},
		{"downgrade edge", "business", "pro", types.TransitionKindDowngrade},
		{"same plan is lateral", "pro", "pro", types.TransitionKindLateral},
		{"no edge is invalid", "free", "free2", types.TransitionKindInvalid},
		{"asymmetric graph is respected", "business", "free2", types.TransitionKindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.TransitionKind(tt.from, tt.to))
		})
	}
}

func TestCatalogResolvePriceRef(t *testing.T) {
	c, err := NewCatalog(testPlans(), "free")
	require.NoError(t, err)

	ref, err := c.ResolvePriceRef("pro", types.BillingIntervalMonthly)
	require.NoError(t, err)
	assert.Equal(t, "price_pro_m", ref)

	ref, err = c.ResolvePriceRef("pro", types.BillingIntervalAnnual)
	require.NoError(t, err)
	assert.Equal(t, "price_pro_y", ref)

	_, err = c.ResolvePriceRef("enterprise", types.BillingIntervalMonthly)
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))

	_, err = c.ResolvePriceRef("pro", types.BillingInterval("weekly"))
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}
