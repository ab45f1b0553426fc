// Package pricing holds the pricing configuration attached to plan version
// features and the pure calculator that turns (config, quantity) into money.
package pricing

import (
	"github.com/meterline/meterline/internal/types"
	"github.com/samber/lo"
)

// Tier is one contiguous quantity range with its own rates. Units are
// numbered from 1; a FirstUnit of 0 is normalized to 1 during calculation.
type Tier struct {
	FirstUnit uint64 `json:"first_unit"`

	// LastUnit is inclusive; nil means the tier is unbounded and must be last.
	LastUnit *uint64 `json:"last_unit,omitempty"`

	UnitPrice types.Money `json:"unit_price"`

	// FlatPrice is charged once when any units fall into this tier.
	FlatPrice *types.Money `json:"flat_price,omitempty"`
}

// Covers reports whether quantity falls inside this tier's range.
func (t Tier) Covers(quantity uint64) bool {
	if quantity < t.FirstUnit {
		return false
	}
	return t.LastUnit == nil || quantity <= *t.LastUnit
}

// IsUnbounded reports whether the tier has no upper limit.
func (t Tier) IsUnbounded() bool {
	return t.LastUnit == nil
}

// FlatConfig is the configuration for flat-priced features.
type FlatConfig struct {
	Price types.Money `json:"price"`
}

// TierConfig is the configuration shared by tier and usage features.
// For usage features the aggregation method is required; it reduces raw
// usage values to the billable quantity before the tier table applies.
type TierConfig struct {
	TierMode          types.TierMode          `json:"tier_mode"`
	AggregationMethod types.AggregationMethod `json:"aggregation_method,omitempty"`
	Tiers             []Tier                  `json:"tiers"`
}

// Currency returns the currency shared by all tiers. Validation guarantees
// a single currency, so the first tier is authoritative.
func (c *TierConfig) Currency() string {
	if len(c.Tiers) == 0 {
		return ""
	}
	return c.Tiers[0].UnitPrice.Currency
}

// Config is the tagged union of pricing strategies. Exactly one branch is
// populated, matching FeatureType. Construct through NewConfig so the
// discriminator and payload can never disagree.
type Config struct {
	FeatureType types.FeatureType `json:"feature_type"`
	Flat        *FlatConfig       `json:"flat,omitempty"`
	Tier        *TierConfig       `json:"tier,omitempty"`
}

// NewConfig builds and validates a pricing configuration.
func NewConfig(featureType types.FeatureType, flat *FlatConfig, tier *TierConfig) (*Config, error) {
	cfg := &Config{
		FeatureType: featureType,
		Flat:        flat,
		Tier:        tier,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Currency returns the configuration's currency.
func (c *Config) Currency() string {
	switch {
	case c.Flat != nil:
		return c.Flat.Price.Currency
	case c.Tier != nil:
		return c.Tier.Currency()
	}
	return ""
}

// Clone returns a deep copy, safe to mutate independently.
func (c *Config) Clone() *Config {
	clone := &Config{FeatureType: c.FeatureType}
	if c.Flat != nil {
		flat := *c.Flat
		clone.Flat = &flat
	}
	if c.Tier != nil {
		clone.Tier = &TierConfig{
			TierMode:          c.Tier.TierMode,
			AggregationMethod: c.Tier.AggregationMethod,
			Tiers: lo.Map(c.Tier.Tiers, func(t Tier, _ int) Tier {
				if t.LastUnit != nil {
					t.LastUnit = lo.ToPtr(*t.LastUnit)
				}
				if t.FlatPrice != nil {
					t.FlatPrice = lo.ToPtr(*t.FlatPrice)
				}
				return t
			}),
		}
	}
	return clone
}
