package plan

import (
	"github.com/subplane/subplane/internal/types"
)

// Plan is one entry in the static plan catalog. Plans carry a price
// reference per supported interval; the reference is the provider's
// price identifier and is opaque to us.
type Plan struct {
	ID               string   `mapstructure:"id" json:"id"`
	Name             string   `mapstructure:"name" json:"name"`
	MonthlyPriceRef  string   `mapstructure:"monthly_price_ref" json:"monthly_price_ref"`
	AnnualPriceRef   string   `mapstructure:"annual_price_ref" json:"annual_price_ref"`
	IncludedUnits    int64    `mapstructure:"included_units" json:"included_units"`
	ConcurrencyLimit int      `mapstructure:"concurrency_limit" json:"concurrency_limit"`
	AllowsOverage    bool     `mapstructure:"allows_overage" json:"allows_overage"`
	UpgradeTargets   []string `mapstructure:"upgrade_targets" json:"upgrade_targets"`
	DowngradeTargets []string `mapstructure:"downgrade_targets" json:"downgrade_targets"`
}

// PriceRef returns the provider price reference for the interval
func (p *Plan) PriceRef(interval types.BillingInterval) string {
	switch interval {
	case types.BillingIntervalAnnual:
		return p.AnnualPriceRef
	default:
		return p.MonthlyPriceRef
	}
}
