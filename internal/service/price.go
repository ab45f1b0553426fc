package service

import (
	"context"

	"github.com/meterline/meterline/internal/api/dto"
	"github.com/meterline/meterline/internal/domain/planversion"
	"github.com/meterline/meterline/internal/domain/pricing"
	ierr "github.com/meterline/meterline/internal/errors"
)

// PriceService computes prices for plan version features. Computation is
// pure; the service only resolves the configuration and, for usage
// features, the billable quantity.
type PriceService interface {
	CalculatePrice(ctx context.Context, req dto.CalculatePriceRequest) (*dto.PriceBreakdownResponse, error)
	CalculateUsagePrice(ctx context.Context, req dto.CalculateUsagePriceRequest) (*dto.PriceBreakdownResponse, error)
}

type priceService struct {
	ServiceParams
}

func NewPriceService(params ServiceParams) PriceService {
	return &priceService{ServiceParams: params}
}

func (s *priceService) CalculatePrice(ctx context.Context, req dto.CalculatePriceRequest) (*dto.PriceBreakdownResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	feature, err := s.resolveFeature(ctx, req.PlanVersionID, req.FeatureSlug)
	if err != nil {
		return nil, err
	}

	quantity := uint64(req.Quantity)
	breakdown, err := pricing.Compute(feature.Config, quantity)
	if err != nil {
		if ierr.IsTierNotFound(err) {
			// Validated tiers always cover the quantity; reaching this is an
			// invariant violation, not a user error.
			s.Logger.Errorw("quantity outside validated tier coverage",
				"plan_version_id", req.PlanVersionID,
				"feature_slug", req.FeatureSlug,
				"quantity", quantity,
			)
		}
		return nil, err
	}

	return dto.NewPriceBreakdownResponse(breakdown, quantity), nil
}

func (s *priceService) CalculateUsagePrice(ctx context.Context, req dto.CalculateUsagePriceRequest) (*dto.PriceBreakdownResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	feature, err := s.resolveFeature(ctx, req.PlanVersionID, req.FeatureSlug)
	if err != nil {
		return nil, err
	}
	if !feature.FeatureType.IsTiered() || feature.Config.Tier == nil {
		return nil, ierr.NewError("feature is not usage priced").
			WithHint("Usage pricing applies to usage features only").
			WithReportableDetails(map[string]interface{}{
				"feature_slug": req.FeatureSlug,
				"feature_type": feature.FeatureType,
			}).
			Mark(ierr.ErrValidation)
	}

	// The entitlement counter is the aggregated usage; increments already
	// applied the feature's aggregation method.
	ent, err := s.EntitlementRepo.Get(ctx, req.CustomerID, req.FeatureSlug)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	var quantity uint64
	if ent != nil {
		quantity = ent.UsedQuantity
	}

	breakdown, err := pricing.Compute(feature.Config, quantity)
	if err != nil {
		return nil, err
	}
	return dto.NewPriceBreakdownResponse(breakdown, quantity), nil
}

func (s *priceService) resolveFeature(ctx context.Context, versionID, slug string) (*planversion.PlanVersionFeature, error) {
	versionResp, err := NewPlanVersionService(s.ServiceParams).GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	feature := versionResp.Feature(slug)
	if feature == nil {
		return nil, ierr.NewError("feature not found on plan version").
			WithHint("The plan version does not carry this feature").
			WithReportableDetails(map[string]interface{}{
				"plan_version_id": versionID,
				"feature_slug":    slug,
			}).
			Mark(ierr.ErrNotFound)
	}
	return feature, nil
}
