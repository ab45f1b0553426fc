package pricing

import (
	"fmt"
	"strings"

	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// Validate checks the whole configuration and reports every violation at
// once. Structural problems (both branches populated, wrong branch for the
// feature type) and tier-table problems (gaps, overlaps, negative prices,
// mixed currencies) are all collected before the error is returned.
func (c *Config) Validate() error {
	var issues ierr.ValidationIssues

	if err := c.FeatureType.Validate(); err != nil {
		issues.Add("feature_type", "must be one of flat, tier, usage")
		return issues.Err(ierr.ErrConfiguration)
	}

	switch c.FeatureType {
	case types.FEATURE_TYPE_FLAT:
		if c.Flat == nil {
			issues.Add("flat", "flat feature requires a flat price configuration")
		}
		if c.Tier != nil {
			issues.Add("tier", "flat feature must not carry a tier configuration")
		}
		if c.Flat != nil {
			c.validateFlat(&issues)
		}

	case types.FEATURE_TYPE_TIER, types.FEATURE_TYPE_USAGE:
		if c.Tier == nil {
			issues.Addf("tier", "%s feature requires a tier configuration", c.FeatureType)
		}
		if c.Flat != nil {
			issues.Addf("flat", "%s feature must not carry a flat price configuration", c.FeatureType)
		}
		if c.Tier != nil {
			c.validateTiers(&issues)
		}
	}

	return issues.Err(ierr.ErrConfiguration)
}

func (c *Config) validateFlat(issues *ierr.ValidationIssues) {
	if !types.IsValidCurrency(c.Flat.Price.Currency) {
		issues.Add("flat.price.currency", "invalid currency code")
	}
	if c.Flat.Price.IsNegative() {
		issues.Add("flat.price", "price must not be negative")
	}
}

func (c *Config) validateTiers(issues *ierr.ValidationIssues) {
	tc := c.Tier

	if err := tc.TierMode.Validate(); err != nil {
		issues.Add("tier.tier_mode", "tier mode must be volume or graduated")
	}

	// Usage features meter raw events; the aggregation method that reduces
	// them to a billable quantity is mandatory. Tier features bill a
	// subscribed quantity directly and must not declare one.
	if c.FeatureType == types.FEATURE_TYPE_USAGE {
		if err := tc.AggregationMethod.Validate(); err != nil {
			issues.Add("tier.aggregation_method", "usage feature requires an aggregation method of sum, max or last")
		}
	} else if tc.AggregationMethod != "" {
		issues.Add("tier.aggregation_method", "aggregation method is only valid for usage features")
	}

	if len(tc.Tiers) == 0 {
		issues.Add("tier.tiers", "at least one tier is required")
		return
	}

	if tc.Tiers[0].FirstUnit > 1 {
		issues.Addf("tier.tiers[0].first_unit", "first tier must start at unit 0 or 1, got %d", tc.Tiers[0].FirstUnit)
	}

	currency := ""
	for i, tier := range tc.Tiers {
		field := func(name string) string {
			return fmt.Sprintf("tier.tiers[%d].%s", i, name)
		}

		if tier.LastUnit != nil && *tier.LastUnit < tier.FirstUnit {
			issues.Addf(field("last_unit"), "last unit %d is below first unit %d", *tier.LastUnit, tier.FirstUnit)
		}
		if tier.IsUnbounded() && i != len(tc.Tiers)-1 {
			issues.Add(field("last_unit"), "only the final tier may be unbounded")
		}
		if i > 0 {
			prev := tc.Tiers[i-1]
			if prev.LastUnit != nil && tier.FirstUnit != *prev.LastUnit+1 {
				issues.Addf(field("first_unit"), "tiers must be contiguous: expected first unit %d, got %d", *prev.LastUnit+1, tier.FirstUnit)
			}
		}

		if tier.UnitPrice.IsNegative() {
			issues.Add(field("unit_price"), "unit price must not be negative")
		}
		if tier.FlatPrice != nil && tier.FlatPrice.IsNegative() {
			issues.Add(field("flat_price"), "flat price must not be negative")
		}

		if !types.IsValidCurrency(tier.UnitPrice.Currency) {
			issues.Add(field("unit_price.currency"), "invalid currency code")
			continue
		}
		if currency == "" {
			currency = tier.UnitPrice.Currency
		}
		if !strings.EqualFold(tier.UnitPrice.Currency, currency) {
			issues.Addf(field("unit_price.currency"), "all tiers must share one currency, got %s and %s", currency, tier.UnitPrice.Currency)
		}
		if tier.FlatPrice != nil && !strings.EqualFold(tier.FlatPrice.Currency, currency) {
			issues.Addf(field("flat_price.currency"), "all tiers must share one currency, got %s and %s", currency, tier.FlatPrice.Currency)
		}
	}
}
