package pricing

import (
	"testing"

	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eur(s string) types.Money {
	return types.MustNewMoney(decimal.RequireFromString(s), "eur")
}

func TestValidateFlat(t *testing.T) {
	cfg, err := NewConfig(types.FEATURE_TYPE_FLAT, &FlatConfig{Price: usd("10")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "usd", cfg.Currency())

	// Missing branch.
	_, err = NewConfig(types.FEATURE_TYPE_FLAT, nil, nil)
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))

	// Negative price.
	_, err = NewConfig(types.FEATURE_TYPE_FLAT, &FlatConfig{Price: usd("-1")}, nil)
	require.Error(t, err)
}

func TestValidateCrossPopulatedBranches(t *testing.T) {
	tierCfg := &TierConfig{
		TierMode: types.TIER_MODE_VOLUME,
		Tiers:    []Tier{{FirstUnit: 1, UnitPrice: usd("1")}},
	}

	_, err := NewConfig(types.FEATURE_TYPE_FLAT, &FlatConfig{Price: usd("10")}, tierCfg)
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))

	_, err = NewConfig(types.FEATURE_TYPE_TIER, &FlatConfig{Price: usd("10")}, tierCfg)
	require.Error(t, err)
}

func TestValidateTierContinuity(t *testing.T) {
	// Gap between 100 and 102.
	_, err := NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_VOLUME,
		Tiers: []Tier{
			{FirstUnit: 1, LastUnit: lo.ToPtr(uint64(100)), UnitPrice: usd("1")},
			{FirstUnit: 102, UnitPrice: usd("0.5")},
		},
	})
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))

	// Overlap.
	_, err = NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_VOLUME,
		Tiers: []Tier{
			{FirstUnit: 1, LastUnit: lo.ToPtr(uint64(100)), UnitPrice: usd("1")},
			{FirstUnit: 100, UnitPrice: usd("0.5")},
		},
	})
	require.Error(t, err)

	// Contiguous table passes.
	_, err = NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_VOLUME,
		Tiers: []Tier{
			{FirstUnit: 0, LastUnit: lo.ToPtr(uint64(100)), UnitPrice: usd("1")},
			{FirstUnit: 101, UnitPrice: usd("0.5")},
		},
	})
	require.NoError(t, err)
}

func TestValidateUnboundedNotLast(t *testing.T) {
	_, err := NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_GRADUATED,
		Tiers: []Tier{
			{FirstUnit: 1, UnitPrice: usd("1")},
			{FirstUnit: 101, LastUnit: lo.ToPtr(uint64(200)), UnitPrice: usd("0.5")},
		},
	})
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))
}

func TestValidateInvertedRange(t *testing.T) {
	_, err := NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_VOLUME,
		Tiers: []Tier{
			{FirstUnit: 10, LastUnit: lo.ToPtr(uint64(5)), UnitPrice: usd("1")},
		},
	})
	require.Error(t, err)
}

func TestValidateMixedCurrencies(t *testing.T) {
	_, err := NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_GRADUATED,
		Tiers: []Tier{
			{FirstUnit: 1, LastUnit: lo.ToPtr(uint64(100)), UnitPrice: usd("1")},
			{FirstUnit: 101, UnitPrice: eur("0.5")},
		},
	})
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))
}

func TestValidateAggregationMethod(t *testing.T) {
	tiers := []Tier{{FirstUnit: 1, UnitPrice: usd("1")}}

	// Usage features require an aggregation method.
	_, err := NewConfig(types.FEATURE_TYPE_USAGE, nil, &TierConfig{
		TierMode: types.TIER_MODE_VOLUME,
		Tiers:    tiers,
	})
	require.Error(t, err)

	_, err = NewConfig(types.FEATURE_TYPE_USAGE, nil, &TierConfig{
		TierMode:          types.TIER_MODE_VOLUME,
		AggregationMethod: types.AGGREGATION_SUM,
		Tiers:             tiers,
	})
	require.NoError(t, err)

	// Tier features must not declare one.
	_, err = NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode:          types.TIER_MODE_VOLUME,
		AggregationMethod: types.AGGREGATION_SUM,
		Tiers:             tiers,
	})
	require.Error(t, err)
}

func TestValidateReportsAllIssues(t *testing.T) {
	// One config, several violations: bad mode, gap, negative price.
	_, err := NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: "stepwise",
		Tiers: []Tier{
			{FirstUnit: 1, LastUnit: lo.ToPtr(uint64(10)), UnitPrice: usd("-1")},
			{FirstUnit: 20, UnitPrice: usd("0.5")},
		},
	})
	require.Error(t, err)

	issues := ierr.Issues(err)
	require.GreaterOrEqual(t, len(issues), 3)

	fields := make([]string, 0, len(issues))
	for _, issue := range issues {
		fields = append(fields, issue.Field)
	}
	assert.Contains(t, fields, "tier.tier_mode")
	assert.Contains(t, fields, "tier.tiers[0].unit_price")
	assert.Contains(t, fields, "tier.tiers[1].first_unit")
}

func TestValidateFirstTierStart(t *testing.T) {
	_, err := NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_VOLUME,
		Tiers:    []Tier{{FirstUnit: 5, UnitPrice: usd("1")}},
	})
	require.Error(t, err)
}

func TestValidateEmptyTiers(t *testing.T) {
	_, err := NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_VOLUME,
	})
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))
}
