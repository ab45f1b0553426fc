package types

import ierr "github.com/meterline/meterline/internal/errors"

// FeatureType discriminates the pricing strategy attached to a plan version feature.
type FeatureType string

const (
	// FEATURE_TYPE_FLAT charges a fixed price regardless of quantity.
	FEATURE_TYPE_FLAT FeatureType = "flat"
	// FEATURE_TYPE_TIER prices a subscribed quantity across tiers.
	FEATURE_TYPE_TIER FeatureType = "tier"
	// FEATURE_TYPE_USAGE prices an aggregated metered quantity across tiers.
	FEATURE_TYPE_USAGE FeatureType = "usage"
)

func (t FeatureType) Validate() error {
	switch t {
	case FEATURE_TYPE_FLAT, FEATURE_TYPE_TIER, FEATURE_TYPE_USAGE:
		return nil
	}
	return ierr.NewError("invalid feature type").
		WithHint("Feature type must be one of flat, tier, usage").
		WithReportableDetails(map[string]interface{}{
			"feature_type": t,
		}).
		Mark(ierr.ErrValidation)
}

// IsTiered reports whether the feature type carries a tier table.
func (t FeatureType) IsTiered() bool {
	return t == FEATURE_TYPE_TIER || t == FEATURE_TYPE_USAGE
}

// TierMode selects how a tier table is applied to a quantity.
// The canonical modes are volume and graduated; no other aliases exist.
type TierMode string

const (
	// TIER_MODE_VOLUME prices the entire quantity at the single tier containing it.
	TIER_MODE_VOLUME TierMode = "volume"
	// TIER_MODE_GRADUATED prices each tier's share of the quantity at that tier's rate.
	TIER_MODE_GRADUATED TierMode = "graduated"
)

func (m TierMode) Validate() error {
	switch m {
	case TIER_MODE_VOLUME, TIER_MODE_GRADUATED:
		return nil
	}
	return ierr.NewError("invalid tier mode").
		WithHint("Tier mode must be volume or graduated").
		WithReportableDetails(map[string]interface{}{
			"tier_mode": m,
		}).
		Mark(ierr.ErrValidation)
}

// AggregationMethod reduces raw usage events to a single billable quantity
// before any price calculation happens.
type AggregationMethod string

const (
	AGGREGATION_SUM  AggregationMethod = "sum"
	AGGREGATION_MAX  AggregationMethod = "max"
	AGGREGATION_LAST AggregationMethod = "last"
)

func (a AggregationMethod) Validate() error {
	switch a {
	case AGGREGATION_SUM, AGGREGATION_MAX, AGGREGATION_LAST:
		return nil
	}
	return ierr.NewError("invalid aggregation method").
		WithHint("Aggregation method must be one of sum, max, last").
		WithReportableDetails(map[string]interface{}{
			"aggregation_method": a,
		}).
		Mark(ierr.ErrValidation)
}
