package dto

import (
	"context"

	"github.com/meterline/meterline/internal/domain/planversion"
	"github.com/meterline/meterline/internal/domain/pricing"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
	"github.com/meterline/meterline/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CreatePlanVersionRequest creates a new draft version for a plan.
type CreatePlanVersionRequest struct {
	PlanID        string                        `json:"plan_id" validate:"required"`
	Currency      string                        `json:"currency" validate:"required,len=3"`
	BillingPeriod types.BillingPeriod           `json:"billing_period" validate:"required"`
	Features      []CreateVersionFeatureRequest `json:"features"`
}

// CreateVersionFeatureRequest attaches one priced feature to a version.
// Price is the flat branch; Tiers plus TierMode is the tiered branch.
type CreateVersionFeatureRequest struct {
	FeatureSlug string            `json:"feature_slug" validate:"required"`
	FeatureName string            `json:"feature_name" validate:"required"`
	FeatureType types.FeatureType `json:"feature_type" validate:"required"`

	Price *decimal.Decimal `json:"price,omitempty"`

	TierMode          types.TierMode          `json:"tier_mode,omitempty"`
	AggregationMethod types.AggregationMethod `json:"aggregation_method,omitempty"`
	Tiers             []CreateTierRequest     `json:"tiers,omitempty"`

	DefaultQuantity uint64  `json:"default_quantity,omitempty"`
	Limit           *uint64 `json:"limit,omitempty"`
	Hidden          bool    `json:"hidden,omitempty"`
	Order           int     `json:"order,omitempty"`
}

// CreateTierRequest is one tier row; amounts are in the version's currency.
type CreateTierRequest struct {
	FirstUnit uint64           `json:"first_unit"`
	LastUnit  *uint64          `json:"last_unit,omitempty"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	FlatPrice *decimal.Decimal `json:"flat_price,omitempty"`
}

func (r *CreatePlanVersionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !types.IsValidCurrency(r.Currency) {
		return ierr.NewError("invalid currency code").
			WithHint("Currency must be a 3-letter ISO 4217 code").
			Mark(ierr.ErrValidation)
	}
	if err := r.BillingPeriod.Validate(); err != nil {
		return err
	}
	for _, f := range r.Features {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *CreateVersionFeatureRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.FeatureType.Validate()
}

// ToPricingConfig builds the validated pricing configuration in the
// version's currency.
func (r *CreateVersionFeatureRequest) ToPricingConfig(currency string) (*pricing.Config, error) {
	var flat *pricing.FlatConfig
	var tier *pricing.TierConfig

	if r.Price != nil {
		price, err := types.NewMoney(*r.Price, currency)
		if err != nil {
			return nil, err
		}
		flat = &pricing.FlatConfig{Price: price}
	}

	if len(r.Tiers) > 0 || r.TierMode != "" {
		tiers := make([]pricing.Tier, 0, len(r.Tiers))
		for _, t := range r.Tiers {
			unitPrice, err := types.NewMoney(t.UnitPrice, currency)
			if err != nil {
				return nil, err
			}
			tier := pricing.Tier{
				FirstUnit: t.FirstUnit,
				LastUnit:  t.LastUnit,
				UnitPrice: unitPrice,
			}
			if t.FlatPrice != nil {
				flatPrice, err := types.NewMoney(*t.FlatPrice, currency)
				if err != nil {
					return nil, err
				}
				tier.FlatPrice = &flatPrice
			}
			tiers = append(tiers, tier)
		}
		tier = &pricing.TierConfig{
			TierMode:          r.TierMode,
			AggregationMethod: r.AggregationMethod,
			Tiers:             tiers,
		}
	}

	return pricing.NewConfig(r.FeatureType, flat, tier)
}

// ToPlanVersionFeature builds the domain feature for a version.
func (r *CreateVersionFeatureRequest) ToPlanVersionFeature(ctx context.Context, versionID, currency string) (*planversion.PlanVersionFeature, error) {
	cfg, err := r.ToPricingConfig(currency)
	if err != nil {
		return nil, err
	}
	return &planversion.PlanVersionFeature{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_VERSION_FEATURE),
		PlanVersionID:   versionID,
		FeatureSlug:     r.FeatureSlug,
		FeatureName:     r.FeatureName,
		FeatureType:     r.FeatureType,
		Config:          cfg,
		DefaultQuantity: r.DefaultQuantity,
		Limit:           r.Limit,
		Hidden:          r.Hidden,
		Order:           r.Order,
		BaseModel:       types.GetDefaultBaseModel(ctx),
	}, nil
}

// PlanVersionResponse is the API shape of a plan version.
type PlanVersionResponse struct {
	*planversion.PlanVersion
}

// ListPlanVersionsResponse lists every version of one plan.
type ListPlanVersionsResponse struct {
	Items []*PlanVersionResponse `json:"items"`
	Total int                    `json:"total"`
}

func NewListPlanVersionsResponse(versions []*planversion.PlanVersion) *ListPlanVersionsResponse {
	return &ListPlanVersionsResponse{
		Items: lo.Map(versions, func(v *planversion.PlanVersion, _ int) *PlanVersionResponse {
			return &PlanVersionResponse{PlanVersion: v}
		}),
		Total: len(versions),
	}
}
