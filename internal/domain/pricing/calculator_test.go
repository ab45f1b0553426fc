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

func usd(s string) types.Money {
	return types.MustNewMoney(decimal.RequireFromString(s), "usd")
}

// twoTierTable is the canonical (0-100, $1)(101-inf, $0.50) table.
func twoTierTable(mode types.TierMode, featureType types.FeatureType, agg types.AggregationMethod) *Config {
	cfg, err := NewConfig(featureType, nil, &TierConfig{
		TierMode:          mode,
		AggregationMethod: agg,
		Tiers: []Tier{
			{FirstUnit: 0, LastUnit: lo.ToPtr(uint64(100)), UnitPrice: usd("1")},
			{FirstUnit: 101, UnitPrice: usd("0.5")},
		},
	})
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestComputeFlat(t *testing.T) {
	cfg, err := NewConfig(types.FEATURE_TYPE_FLAT, &FlatConfig{Price: usd("10")}, nil)
	require.NoError(t, err)

	// Quantity is informational for flat features.
	for _, quantity := range []uint64{0, 1, 5, 1000} {
		breakdown, err := Compute(cfg, quantity)
		require.NoError(t, err)
		assert.True(t, usd("10").Equal(breakdown.TotalPrice), "quantity %d", quantity)
		assert.Equal(t, "10.00 USD", breakdown.DisplayAmount)
		assert.Equal(t, -1, breakdown.SelectedTierIndex)
	}
}

func TestComputeVolume(t *testing.T) {
	cfg := twoTierTable(types.TIER_MODE_VOLUME, types.FEATURE_TYPE_TIER, "")

	// Entire quantity priced at the tier containing it.
	breakdown, err := Compute(cfg, 150)
	require.NoError(t, err)
	assert.True(t, usd("75").Equal(breakdown.TotalPrice))
	assert.Equal(t, "75.00 USD", breakdown.DisplayAmount)
	assert.Equal(t, 1, breakdown.SelectedTierIndex)
	require.Len(t, breakdown.Tiers, 1)
	assert.Equal(t, uint64(150), breakdown.Tiers[0].Units)

	// First tier.
	breakdown, err = Compute(cfg, 50)
	require.NoError(t, err)
	assert.True(t, usd("50").Equal(breakdown.TotalPrice))
	assert.Equal(t, 0, breakdown.SelectedTierIndex)

	// Boundary unit stays in the first tier.
	breakdown, err = Compute(cfg, 100)
	require.NoError(t, err)
	assert.True(t, usd("100").Equal(breakdown.TotalPrice))
	assert.Equal(t, 0, breakdown.SelectedTierIndex)
}

func TestComputeGraduated(t *testing.T) {
	cfg := twoTierTable(types.TIER_MODE_GRADUATED, types.FEATURE_TYPE_TIER, "")

	// 100 units at $1 plus 50 units at $0.50.
	breakdown, err := Compute(cfg, 150)
	require.NoError(t, err)
	assert.True(t, usd("125").Equal(breakdown.TotalPrice))
	assert.Equal(t, 1, breakdown.SelectedTierIndex)
	require.Len(t, breakdown.Tiers, 2)
	assert.Equal(t, uint64(100), breakdown.Tiers[0].Units)
	assert.Equal(t, uint64(50), breakdown.Tiers[1].Units)
	assert.True(t, usd("100").Equal(breakdown.Tiers[0].Amount))
	assert.True(t, usd("25").Equal(breakdown.Tiers[1].Amount))

	// Entirely inside the first tier.
	breakdown, err = Compute(cfg, 40)
	require.NoError(t, err)
	assert.True(t, usd("40").Equal(breakdown.TotalPrice))
	assert.Equal(t, 0, breakdown.SelectedTierIndex)
	require.Len(t, breakdown.Tiers, 1)
}

func TestComputeZeroQuantity(t *testing.T) {
	for _, mode := range []types.TierMode{types.TIER_MODE_VOLUME, types.TIER_MODE_GRADUATED} {
		cfg := twoTierTable(mode, types.FEATURE_TYPE_TIER, "")
		breakdown, err := Compute(cfg, 0)
		require.NoError(t, err)
		assert.True(t, breakdown.TotalPrice.IsZero(), "mode %s", mode)
		assert.Equal(t, -1, breakdown.SelectedTierIndex)
		assert.Empty(t, breakdown.Tiers)
	}
}

func TestComputeTierFlatPrice(t *testing.T) {
	cfg, err := NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_GRADUATED,
		Tiers: []Tier{
			{FirstUnit: 1, LastUnit: lo.ToPtr(uint64(10)), UnitPrice: usd("2"), FlatPrice: lo.ToPtr(usd("5"))},
			{FirstUnit: 11, UnitPrice: usd("1"), FlatPrice: lo.ToPtr(usd("3"))},
		},
	})
	require.NoError(t, err)

	// Flat price charged only for tiers with a non-zero overlap.
	breakdown, err := Compute(cfg, 8)
	require.NoError(t, err)
	assert.True(t, usd("21").Equal(breakdown.TotalPrice)) // 8*2 + 5

	breakdown, err = Compute(cfg, 12)
	require.NoError(t, err)
	assert.True(t, usd("30").Equal(breakdown.TotalPrice)) // 10*2 + 5 + 2*1 + 3
}

func TestComputeTierNotFound(t *testing.T) {
	// Bounded table that stops at 100; validation would normally require a
	// caller never to exceed it, but the calculator still refuses to guess.
	cfg, err := NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_VOLUME,
		Tiers: []Tier{
			{FirstUnit: 1, LastUnit: lo.ToPtr(uint64(100)), UnitPrice: usd("1")},
		},
	})
	require.NoError(t, err)

	_, err = Compute(cfg, 150)
	require.Error(t, err)
	assert.True(t, ierr.IsTierNotFound(err))

	cfg.Tier.TierMode = types.TIER_MODE_GRADUATED
	_, err = Compute(cfg, 150)
	require.Error(t, err)
	assert.True(t, ierr.IsTierNotFound(err))
}

func TestVolumeMonotonicity(t *testing.T) {
	cfg := twoTierTable(types.TIER_MODE_VOLUME, types.FEATURE_TYPE_TIER, "")

	// Within one tier, price is linear and non-decreasing in quantity.
	prev := decimal.Zero
	for quantity := uint64(101); quantity <= 130; quantity++ {
		breakdown, err := Compute(cfg, quantity)
		require.NoError(t, err)
		assert.True(t, breakdown.TotalPrice.Amount.GreaterThanOrEqual(prev), "quantity %d", quantity)
		prev = breakdown.TotalPrice.Amount
	}
}

func TestGraduatedAdditivity(t *testing.T) {
	cfg, err := NewConfig(types.FEATURE_TYPE_TIER, nil, &TierConfig{
		TierMode: types.TIER_MODE_GRADUATED,
		Tiers: []Tier{
			{FirstUnit: 1, LastUnit: lo.ToPtr(uint64(10)), UnitPrice: usd("3")},
			{FirstUnit: 11, LastUnit: lo.ToPtr(uint64(30)), UnitPrice: usd("2")},
			{FirstUnit: 31, UnitPrice: usd("1")},
		},
	})
	require.NoError(t, err)

	// Price at the sum of bounded tier widths equals the sum of each
	// width times its unit price.
	breakdown, err := Compute(cfg, 30)
	require.NoError(t, err)
	assert.True(t, usd("70").Equal(breakdown.TotalPrice)) // 10*3 + 20*2

	sum := decimal.Zero
	for _, contribution := range breakdown.Tiers {
		sum = sum.Add(contribution.Amount.Amount)
	}
	assert.True(t, breakdown.TotalPrice.Amount.Equal(sum))
}

func TestComputeUsageFeature(t *testing.T) {
	cfg := twoTierTable(types.TIER_MODE_GRADUATED, types.FEATURE_TYPE_USAGE, types.AGGREGATION_SUM)

	breakdown, err := Compute(cfg, 150)
	require.NoError(t, err)
	assert.True(t, usd("125").Equal(breakdown.TotalPrice))
}

func TestAggregate(t *testing.T) {
	values := []uint64{3, 9, 4}
	assert.Equal(t, uint64(16), Aggregate(types.AGGREGATION_SUM, values))
	assert.Equal(t, uint64(9), Aggregate(types.AGGREGATION_MAX, values))
	assert.Equal(t, uint64(4), Aggregate(types.AGGREGATION_LAST, values))
	assert.Equal(t, uint64(0), Aggregate(types.AGGREGATION_SUM, nil))
}
