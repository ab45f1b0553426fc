package dto

import (
	"github.com/meterline/meterline/internal/domain/pricing"
	"github.com/meterline/meterline/internal/validator"
)

// CalculatePriceRequest prices a quantity against one feature of a version.
type CalculatePriceRequest struct {
	PlanVersionID string `json:"plan_version_id" validate:"required"`
	FeatureSlug   string `json:"feature_slug" validate:"required"`
	Quantity      int64  `json:"quantity" validate:"gte=0"`
}

func (r *CalculatePriceRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// CalculateUsagePriceRequest prices a customer's aggregated metered usage
// against a usage feature of a version.
type CalculateUsagePriceRequest struct {
	PlanVersionID string `json:"plan_version_id" validate:"required"`
	FeatureSlug   string `json:"feature_slug" validate:"required"`
	CustomerID    string `json:"customer_id" validate:"required"`
}

func (r *CalculateUsagePriceRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// PriceBreakdownResponse is the API shape of a price calculation.
type PriceBreakdownResponse struct {
	Amount            string                     `json:"amount"`
	Currency          string                     `json:"currency"`
	DisplayAmount     string                     `json:"display_amount"`
	Quantity          uint64                     `json:"quantity"`
	SelectedTierIndex int                        `json:"selected_tier_index"`
	Tiers             []pricing.TierContribution `json:"tiers,omitempty"`
}

func NewPriceBreakdownResponse(breakdown *pricing.Breakdown, quantity uint64) *PriceBreakdownResponse {
	return &PriceBreakdownResponse{
		Amount:            breakdown.TotalPrice.Amount.String(),
		Currency:          breakdown.TotalPrice.Currency,
		DisplayAmount:     breakdown.DisplayAmount,
		Quantity:          quantity,
		SelectedTierIndex: breakdown.SelectedTierIndex,
		Tiers:             breakdown.Tiers,
	}
}
