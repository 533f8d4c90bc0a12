package plan

import (
	"sort"

	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/types"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Catalog is the immutable in-process plan graph. Built once at startup
// and never mutated, so it is safe for concurrent readers without locks.
// The upgrade/downgrade edges are explicit configuration and deliberately
// asymmetric.
type Catalog struct {
	plans         map[string]*Plan
	defaultPlanID string
}

type catalogFile struct {
	DefaultPlanID string  `mapstructure:"default_plan_id"`
	Plans         []*Plan `mapstructure:"plans"`
}

// LoadCatalog reads the plan catalog from a yaml file and validates it
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unable to read plan catalog file").
			WithReportableDetails(map[string]any{"path": path}).
			Mark(ierr.ErrSystem)
	}

	var file catalogFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Plan catalog file is malformed").
			Mark(ierr.ErrSystem)
	}

	return NewCatalog(file.Plans, file.DefaultPlanID)
}

// NewCatalog builds and validates a catalog from parsed plans
func NewCatalog(plans []*Plan, defaultPlanID string) (*Catalog, error) {
	c := &Catalog{
		plans:         make(map[string]*Plan, len(plans)),
		defaultPlanID: defaultPlanID,
	}

	for _, p := range plans {
		if p.ID == "" {
			return nil, ierr.NewError("plan with empty id in catalog").
				Mark(ierr.ErrValidation)
		}
		if _, exists := c.plans[p.ID]; exists {
			return nil, ierr.NewError("duplicate plan id in catalog").
				WithReportableDetails(map[string]any{"plan_id": p.ID}).
				Mark(ierr.ErrValidation)
		}
		if p.MonthlyPriceRef == "" || p.AnnualPriceRef == "" {
			return nil, ierr.NewError("plan missing price reference").
				WithReportableDetails(map[string]any{"plan_id": p.ID}).
				Mark(ierr.ErrValidation)
		}
		c.plans[p.ID] = p
	}

	// every transition edge must point at a known plan
	for _, p := range c.plans {
		for _, target := range append(append([]string{}, p.UpgradeTargets...), p.DowngradeTargets...) {
			if _, ok := c.plans[target]; !ok {
				return nil, ierr.NewError("plan transition target not in catalog").
					WithReportableDetails(map[string]any{
						"plan_id": p.ID,
						"target":  target,
					}).
					Mark(ierr.ErrValidation)
			}
		}
	}

	if _, ok := c.plans[defaultPlanID]; !ok {
		return nil, ierr.NewError("default plan not in catalog").
			WithReportableDetails(map[string]any{"default_plan_id": defaultPlanID}).
			Mark(ierr.ErrValidation)
	}

	return c, nil
}

// Get returns the plan by id
func (c *Catalog) Get(planID string) (*Plan, error) {
	p, ok := c.plans[planID]
	if !ok {
		return nil, ierr.NewError("plan not found").
			WithHint("Unknown plan").
			WithReportableDetails(map[string]any{"plan_id": planID}).
			Mark(ierr.ErrNotFound)
	}
	return p, nil
}

// List returns all plans sorted by id
func (c *Catalog) List() []*Plan {
	plans := lo.Values(c.plans)
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans
}

// DefaultPlanID is the plan cancellations downgrade to
func (c *Catalog) DefaultPlanID() string {
	return c.defaultPlanID
}

// ResolvePriceRef returns the provider price reference for a plan and interval
func (c *Catalog) ResolvePriceRef(planID string, interval types.BillingInterval) (string, error) {
	p, err := c.Get(planID)
	if err != nil {
		return "", err
	}
	if err := interval.Validate(); err != nil {
		return "", err
	}
	ref := p.PriceRef(interval)
	if ref == "" {
		return "", ierr.NewError("plan has no price for interval").
			WithReportableDetails(map[string]any{
				"plan_id":  planID,
				"interval": interval,
			}).
			Mark(ierr.ErrNotFound)
	}
	return ref, nil
}

// CanUpgrade reports whether from lists to as an upgrade target
func (c *Catalog) CanUpgrade(from, to string) bool {
	p, ok := c.plans[from]
	return ok && lo.Contains(p.UpgradeTargets, to)
}

// CanDowngrade reports whether from lists to as a downgrade target
func (c *Catalog) CanDowngrade(from, to string) bool {
	p, ok := c.plans[from]
	return ok && lo.Contains(p.DowngradeTargets, to)
}

// TransitionKind classifies a plan-to-plan move per the catalog edges.
// Same plan is a lateral move (interval switches live here); a pair with
// no edge is invalid.
func (c *Catalog) TransitionKind(from, to string) types.TransitionKind {
	if from == to {
		return types.TransitionKindLateral
	}
	if c.CanUpgrade(from, to) {
		return types.TransitionKindUpgrade
	}
	if c.CanDowngrade(from, to) {
		return types.TransitionKindDowngrade
	}
	return types.TransitionKindInvalid
}
