package domain

import "time"

// Plan describes a purchasable license tier.
type Plan struct {
	Type       string        `json:"type"`
	Name       string        `json:"name"`
	MaxDevices int           `json:"maxDevices"`
	Duration   time.Duration `json:"-"`
	PriceUSD   int           `json:"priceUsd"` // monthly price in USD cents
	PriceRef   string        `json:"-"`        // provider price identifier
	Popular    bool          `json:"popular"`
}

const (
	trialDuration      = 14 * 24 * time.Hour
	yearDuration       = 365 * 24 * time.Hour
	enterpriseDuration = 3 * 365 * 24 * time.Hour
)

// DefaultPlans returns the built-in plan catalog. Price refs are
// placeholders overridden from configuration.
func DefaultPlans() []Plan {
	return []Plan{
		{
			Type:       LicenseTrial,
			Name:       "Trial",
			MaxDevices: 3,
			Duration:   trialDuration,
			PriceUSD:   0,
		},
		{
			Type:       LicenseStandard,
			Name:       "Standard",
			MaxDevices: 3,
			Duration:   yearDuration,
			PriceUSD:   900, // $9/mo
			PriceRef:   "price_standard",
			Popular:    true,
		},
		{
			Type:       LicensePremium,
			Name:       "Premium",
			MaxDevices: 3,
			Duration:   yearDuration,
			PriceUSD:   1900, // $19/mo
			PriceRef:   "price_premium",
		},
		{
			Type:       LicenseEnterprise,
			Name:       "Enterprise",
			MaxDevices: 10,
			Duration:   enterpriseDuration,
			PriceUSD:   9900, // $99/mo
			PriceRef:   "price_enterprise",
		},
	}
}

// PlanCatalog resolves plans by license type and by provider price ref.
type PlanCatalog struct {
	plans []Plan
}

// NewPlanCatalog builds a catalog, applying any price-ref overrides keyed
// by license type.
func NewPlanCatalog(priceRefs map[string]string) PlanCatalog {
	plans := DefaultPlans()
	for i := range plans {
		if ref, ok := priceRefs[plans[i].Type]; ok && ref != "" {
			plans[i].PriceRef = ref
		}
	}
	return PlanCatalog{plans: plans}
}

// All returns every plan in the catalog.
func (c PlanCatalog) All() []Plan {
	return c.plans
}

// ByType returns the plan for a license type, or false if unknown.
func (c PlanCatalog) ByType(licenseType string) (Plan, bool) {
	for _, p := range c.plans {
		if p.Type == licenseType {
			return p, true
		}
	}
	return Plan{}, false
}

// TypeForPrice maps a provider price identifier to a license type.
// Unrecognized prices fall back to standard.
func (c PlanCatalog) TypeForPrice(priceRef string) string {
	for _, p := range c.plans {
		if p.PriceRef != "" && p.PriceRef == priceRef {
			return p.Type
		}
	}
	return LicenseStandard
}
