package service

import (
	"context"
	"time"

	"github.com/meterline/meterline/internal/api/dto"
	"github.com/meterline/meterline/internal/domain/planversion"
	"github.com/meterline/meterline/internal/domain/subscription"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// SubscriptionService manages subscription phases. Each phase pins one
// immutable plan version; items are validated against that version's
// feature set.
type SubscriptionService interface {
	CreatePhase(ctx context.Context, req dto.CreatePhaseRequest) (*subscription.Phase, error)
	UpdatePhase(ctx context.Context, req dto.UpdatePhaseRequest) (*subscription.Phase, error)
	RemovePhase(ctx context.Context, subscriptionID, phaseID string) error
}

type subscriptionService struct {
	ServiceParams
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{ServiceParams: params}
}

func (s *subscriptionService) CreatePhase(ctx context.Context, req dto.CreatePhaseRequest) (*subscription.Phase, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	version, err := s.PlanVersionRepo.GetWithFeatures(ctx, req.PlanVersionID)
	if err != nil {
		return nil, err
	}
	if !version.AcceptsNewSubscriptions() {
		return nil, ierr.NewError("plan version does not accept new subscriptions").
			WithHint("Phases can only reference published, active plan versions").
			WithReportableDetails(map[string]interface{}{
				"plan_version_id": version.ID,
				"version_status":  version.VersionStatus,
				"deactivated":     version.Deactivated,
			}).
			Mark(ierr.ErrStateTransition)
	}

	phase := &subscription.Phase{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_PHASE),
		SubscriptionID: sub.ID,
		PlanVersionID:  version.ID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}

	items, err := s.buildItems(ctx, phase.ID, version, req.Items)
	if err != nil {
		return nil, err
	}
	phase.Items = items

	sub.Phases = append(sub.Phases, phase)
	sub.SortPhases()
	if err := sub.ValidatePhases(); err != nil {
		return nil, err
	}

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.Logger.Infow("created subscription phase",
		"subscription_id", sub.ID,
		"phase_id", phase.ID,
		"plan_version_id", version.ID,
	)
	return phase, nil
}

func (s *subscriptionService) UpdatePhase(ctx context.Context, req dto.UpdatePhaseRequest) (*subscription.Phase, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	phase := s.findPhase(sub, req.PhaseID)
	if phase == nil {
		return nil, phaseNotFound(req.SubscriptionID, req.PhaseID)
	}

	now := time.Now().UTC()
	if phase.Elapsed(now) {
		return nil, ierr.NewError("elapsed phases are immutable").
			WithHint("Only the current or a future phase may be changed").
			WithReportableDetails(map[string]interface{}{
				"phase_id": phase.ID,
				"end_date": phase.EndDate,
			}).
			Mark(ierr.ErrStateTransition)
	}

	if req.StartDate != nil {
		phase.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		phase.EndDate = req.EndDate
	}
	if req.Items != nil {
		version, err := s.PlanVersionRepo.GetWithFeatures(ctx, phase.PlanVersionID)
		if err != nil {
			return nil, err
		}
		items, err := s.buildItems(ctx, phase.ID, version, req.Items)
		if err != nil {
			return nil, err
		}
		phase.Items = items
	}

	sub.SortPhases()
	if err := sub.ValidatePhases(); err != nil {
		return nil, err
	}

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return phase, nil
}

func (s *subscriptionService) RemovePhase(ctx context.Context, subscriptionID, phaseID string) error {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}

	phase := s.findPhase(sub, phaseID)
	if phase == nil {
		return phaseNotFound(subscriptionID, phaseID)
	}

	now := time.Now().UTC()
	if phase.Elapsed(now) {
		return ierr.NewError("elapsed phases cannot be removed").
			WithHint("Only the current or a future phase may be removed").
			WithReportableDetails(map[string]interface{}{
				"phase_id": phase.ID,
			}).
			Mark(ierr.ErrStateTransition)
	}

	kept := make([]*subscription.Phase, 0, len(sub.Phases)-1)
	for _, p := range sub.Phases {
		if p.ID != phaseID {
			kept = append(kept, p)
		}
	}
	sub.Phases = kept

	return s.SubRepo.Update(ctx, sub)
}

// buildItems validates requested items against the version's feature set and
// fills derived quantities. Only tier features accept a user-supplied
// quantity; flat and usage quantities are derived from the version.
func (s *subscriptionService) buildItems(ctx context.Context, phaseID string, version *planversion.PlanVersion, reqs []dto.PhaseItemRequest) ([]*subscription.PhaseItem, error) {
	var issues ierr.ValidationIssues
	items := make([]*subscription.PhaseItem, 0, len(reqs))

	for _, itemReq := range reqs {
		feature := version.Feature(itemReq.FeatureSlug)
		if feature == nil {
			issues.Addf("items", "feature %s is not part of the plan version", itemReq.FeatureSlug)
			continue
		}

		quantity := feature.DefaultQuantity
		if itemReq.Quantity != nil {
			if feature.FeatureType != types.FEATURE_TYPE_TIER {
				issues.Addf("items", "quantity for %s feature %s is derived and cannot be set", feature.FeatureType, itemReq.FeatureSlug)
				continue
			}
			quantity = *itemReq.Quantity
		}

		items = append(items, &subscription.PhaseItem{
			ID:          types.GenerateUUID(),
			PhaseID:     phaseID,
			FeatureSlug: itemReq.FeatureSlug,
			Quantity:    quantity,
			BaseModel:   types.GetDefaultBaseModel(ctx),
		})
	}

	if err := issues.Err(ierr.ErrValidation); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *subscriptionService) findPhase(sub *subscription.Subscription, phaseID string) *subscription.Phase {
	for _, p := range sub.Phases {
		if p.ID == phaseID {
			return p
		}
	}
	return nil
}

func phaseNotFound(subscriptionID, phaseID string) error {
	return ierr.NewError("phase not found").
		WithHint("The subscription does not carry this phase").
		WithReportableDetails(map[string]interface{}{
			"subscription_id": subscriptionID,
			"phase_id":        phaseID,
		}).
		Mark(ierr.ErrNotFound)
}
