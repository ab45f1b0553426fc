package pricing

import (
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// TierContribution is one tier's share of a tiered total. Used for display;
// the authoritative amount is Breakdown.TotalPrice.
type TierContribution struct {
	TierIndex int         `json:"tier_index"`
	Units     uint64      `json:"units"`
	UnitPrice types.Money `json:"unit_price"`
	Amount    types.Money `json:"amount"`
}

// Breakdown is the result of one price calculation. All fields are
// deterministic functions of (config, quantity).
type Breakdown struct {
	TotalPrice types.Money `json:"total_price"`

	// DisplayAmount renders the total at currency precision, e.g. "75.00 USD".
	DisplayAmount string `json:"display_amount"`

	// SelectedTierIndex is the index of the tier containing the quantity in
	// volume mode, or the highest tier touched in graduated mode. It is -1
	// for flat features and for a quantity of zero.
	SelectedTierIndex int `json:"selected_tier_index"`

	Tiers []TierContribution `json:"tiers,omitempty"`
}

// Compute prices a quantity under the given configuration. It is a pure
// function: no clock, no store, no randomness. The configuration must have
// passed Validate; tier coverage gaps surface as ErrTierNotFound and are
// treated as invariant violations upstream.
func Compute(cfg *Config, quantity uint64) (*Breakdown, error) {
	if cfg == nil {
		return nil, ierr.NewError("missing pricing configuration").
			Mark(ierr.ErrConfiguration)
	}

	switch cfg.FeatureType {
	case types.FEATURE_TYPE_FLAT:
		return computeFlat(cfg)
	case types.FEATURE_TYPE_TIER, types.FEATURE_TYPE_USAGE:
		switch cfg.Tier.TierMode {
		case types.TIER_MODE_VOLUME:
			return computeVolume(cfg.Tier, quantity)
		case types.TIER_MODE_GRADUATED:
			return computeGraduated(cfg.Tier, quantity)
		}
	}

	return nil, ierr.NewError("unsupported pricing configuration").
		WithReportableDetails(map[string]interface{}{
			"feature_type": cfg.FeatureType,
		}).
		Mark(ierr.ErrConfiguration)
}

// computeFlat returns the configured price; quantity is informational only.
func computeFlat(cfg *Config) (*Breakdown, error) {
	total := cfg.Flat.Price.Round()
	return &Breakdown{
		TotalPrice:        total,
		DisplayAmount:     total.Display(),
		SelectedTierIndex: -1,
	}, nil
}

// computeVolume prices the entire quantity at the single tier containing it.
func computeVolume(tc *TierConfig, quantity uint64) (*Breakdown, error) {
	currency := tc.Currency()
	if quantity == 0 {
		return zeroBreakdown(currency), nil
	}

	for i, tier := range tc.Tiers {
		if !tier.Covers(quantity) {
			continue
		}
		amount := tier.UnitPrice.MulUint64(quantity)
		if tier.FlatPrice != nil {
			var err error
			amount, err = amount.Add(*tier.FlatPrice)
			if err != nil {
				return nil, err
			}
		}
		total := amount.Round()
		return &Breakdown{
			TotalPrice:        total,
			DisplayAmount:     total.Display(),
			SelectedTierIndex: i,
			Tiers: []TierContribution{{
				TierIndex: i,
				Units:     quantity,
				UnitPrice: tier.UnitPrice,
				Amount:    total,
			}},
		}, nil
	}

	return nil, tierNotFound(quantity)
}

// computeGraduated prices each tier's share of the quantity at that tier's
// rate and sums the contributions. Units are numbered from 1, so a tier
// declared as 0..100 contributes at most 100 units.
func computeGraduated(tc *TierConfig, quantity uint64) (*Breakdown, error) {
	currency := tc.Currency()
	if quantity == 0 {
		return zeroBreakdown(currency), nil
	}

	last := tc.Tiers[len(tc.Tiers)-1]
	if !last.IsUnbounded() && quantity > *last.LastUnit {
		return nil, tierNotFound(quantity)
	}

	total := types.ZeroMoney(currency)
	selected := -1
	contributions := make([]TierContribution, 0, len(tc.Tiers))

	for i, tier := range tc.Tiers {
		units := tierOverlap(tier, quantity)
		if units == 0 {
			continue
		}

		amount := tier.UnitPrice.MulUint64(units)
		if tier.FlatPrice != nil {
			var err error
			amount, err = amount.Add(*tier.FlatPrice)
			if err != nil {
				return nil, err
			}
		}

		var err error
		total, err = total.Add(amount)
		if err != nil {
			return nil, err
		}
		selected = i
		contributions = append(contributions, TierContribution{
			TierIndex: i,
			Units:     units,
			UnitPrice: tier.UnitPrice,
			Amount:    amount.Round(),
		})
	}

	total = total.Round()
	return &Breakdown{
		TotalPrice:        total,
		DisplayAmount:     total.Display(),
		SelectedTierIndex: selected,
		Tiers:             contributions,
	}, nil
}

// tierOverlap counts the units of quantity that fall inside the tier.
// FirstUnit 0 and 1 both denote the first billable unit.
func tierOverlap(tier Tier, quantity uint64) uint64 {
	first := tier.FirstUnit
	if first < 1 {
		first = 1
	}
	if quantity < first {
		return 0
	}
	upper := quantity
	if tier.LastUnit != nil && *tier.LastUnit < upper {
		upper = *tier.LastUnit
	}
	if upper < first {
		return 0
	}
	return upper - first + 1
}

// Aggregate reduces raw usage values to a single billable quantity.
func Aggregate(method types.AggregationMethod, values []uint64) uint64 {
	if len(values) == 0 {
		return 0
	}
	switch method {
	case types.AGGREGATION_MAX:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case types.AGGREGATION_LAST:
		return values[len(values)-1]
	default:
		var sum uint64
		for _, v := range values {
			sum += v
		}
		return sum
	}
}

func zeroBreakdown(currency string) *Breakdown {
	total := types.ZeroMoney(currency)
	return &Breakdown{
		TotalPrice:        total,
		DisplayAmount:     total.Display(),
		SelectedTierIndex: -1,
	}
}

func tierNotFound(quantity uint64) error {
	return ierr.NewError("no tier covers quantity").
		WithHint("Tier table does not cover the requested quantity").
		WithReportableDetails(map[string]interface{}{
			"quantity": quantity,
		}).
		Mark(ierr.ErrTierNotFound)
}
