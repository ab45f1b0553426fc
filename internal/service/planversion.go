package service

import (
	"context"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/api/dto"
	"github.com/meterline/meterline/internal/cache"
	"github.com/meterline/meterline/internal/domain/planversion"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/integration"
	"github.com/meterline/meterline/internal/types"
	"github.com/samber/lo"
)

// PlanVersionService owns the plan version lifecycle: draft creation,
// duplication, the transactional publish that flips the latest flag, and
// retirement via deactivation or archival.
type PlanVersionService interface {
	CreateVersion(ctx context.Context, req dto.CreatePlanVersionRequest) (*dto.PlanVersionResponse, error)
	DuplicateVersion(ctx context.Context, sourceID string) (*dto.PlanVersionResponse, error)
	PublishVersion(ctx context.Context, id string) (*dto.PlanVersionResponse, error)
	RemoveVersion(ctx context.Context, id string) error
	DeactivateVersion(ctx context.Context, id string) (*dto.PlanVersionResponse, error)
	ArchiveVersion(ctx context.Context, id string) (*dto.PlanVersionResponse, error)
	GetVersion(ctx context.Context, id string) (*dto.PlanVersionResponse, error)
	ListVersions(ctx context.Context, planID string) (*dto.ListPlanVersionsResponse, error)
}

type planVersionService struct {
	ServiceParams
}

func NewPlanVersionService(params ServiceParams) PlanVersionService {
	return &planVersionService{ServiceParams: params}
}

func (s *planVersionService) CreateVersion(ctx context.Context, req dto.CreatePlanVersionRequest) (*dto.PlanVersionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.PlanRepo.Get(ctx, req.PlanID); err != nil {
		return nil, err
	}

	version := &planversion.PlanVersion{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_VERSION),
		PlanID:        req.PlanID,
		VersionStatus: types.PlanVersionStatusDraft,
		Currency:      req.Currency,
		BillingPeriod: req.BillingPeriod,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}

	for _, featureReq := range req.Features {
		feature, err := featureReq.ToPlanVersionFeature(ctx, version.ID, req.Currency)
		if err != nil {
			return nil, err
		}
		version.Features = append(version.Features, feature)
	}

	if err := version.Validate(); err != nil {
		return nil, err
	}

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		// Version numbers are sequential per (plan, currency); serialize
		// concurrent creates on the same pair.
		if err := s.DB.LockKey(ctx, types.LockRequest{Key: versionLockKey(req.PlanID, req.Currency)}); err != nil {
			return err
		}

		count, err := s.PlanVersionRepo.CountByPlanAndCurrency(ctx, req.PlanID, req.Currency)
		if err != nil {
			return err
		}
		version.Version = count + 1

		if err := s.PlanVersionRepo.Create(ctx, version); err != nil {
			return err
		}
		for _, feature := range version.Features {
			if err := s.PlanVersionRepo.CreateFeature(ctx, feature); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("created plan version",
		"plan_version_id", version.ID,
		"plan_id", version.PlanID,
		"version", version.Version,
		"currency", version.Currency,
	)

	return &dto.PlanVersionResponse{PlanVersion: version}, nil
}

func (s *planVersionService) DuplicateVersion(ctx context.Context, sourceID string) (*dto.PlanVersionResponse, error) {
	source, err := s.PlanVersionRepo.GetWithFeatures(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	sourcePlan, err := s.PlanRepo.Get(ctx, source.PlanID)
	if err != nil {
		return nil, err
	}
	if !sourcePlan.AllowsDuplication() {
		return nil, ierr.NewError("plan version cannot be duplicated").
			WithHint("Versions of the default free plan cannot be duplicated").
			WithReportableDetails(map[string]interface{}{
				"plan_id":        sourcePlan.ID,
				"source_version": source.ID,
			}).
			Mark(ierr.ErrPermissionDenied)
	}

	clone := &planversion.PlanVersion{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_VERSION),
		PlanID:        source.PlanID,
		VersionStatus: types.PlanVersionStatusDraft,
		Currency:      source.Currency,
		BillingPeriod: source.BillingPeriod,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}

	clone.Features = lo.Map(source.Features, func(f *planversion.PlanVersionFeature, _ int) *planversion.PlanVersionFeature {
		return &planversion.PlanVersionFeature{
			ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_VERSION_FEATURE),
			PlanVersionID:   clone.ID,
			FeatureSlug:     f.FeatureSlug,
			FeatureName:     f.FeatureName,
			FeatureType:     f.FeatureType,
			Config:          f.Config.Clone(),
			DefaultQuantity: f.DefaultQuantity,
			Limit:           f.Limit,
			Hidden:          f.Hidden,
			Order:           f.Order,
			// Provider references belong to the published source; the copy
			// gets its own on publish.
			ExternalID: "",
			BaseModel:  types.GetDefaultBaseModel(ctx),
		}
	})

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.DB.LockKey(ctx, types.LockRequest{Key: versionLockKey(clone.PlanID, clone.Currency)}); err != nil {
			return err
		}

		count, err := s.PlanVersionRepo.CountByPlanAndCurrency(ctx, clone.PlanID, clone.Currency)
		if err != nil {
			return err
		}
		clone.Version = count + 1

		if err := s.PlanVersionRepo.Create(ctx, clone); err != nil {
			return err
		}
		for _, feature := range clone.Features {
			if err := s.PlanVersionRepo.CreateFeature(ctx, feature); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("duplicated plan version",
		"source_version_id", source.ID,
		"plan_version_id", clone.ID,
		"version", clone.Version,
	)

	return &dto.PlanVersionResponse{PlanVersion: clone}, nil
}

func (s *planVersionService) PublishVersion(ctx context.Context, id string) (*dto.PlanVersionResponse, error) {
	version, err := s.PlanVersionRepo.GetWithFeatures(ctx, id)
	if err != nil {
		return nil, err
	}

	if !version.IsDraft() {
		return nil, ierr.NewError("only draft versions can be published").
			WithHint("Publish is valid only from the draft state").
			WithReportableDetails(map[string]interface{}{
				"plan_version_id": version.ID,
				"version_status":  version.VersionStatus,
			}).
			Mark(ierr.ErrStateTransition)
	}

	if len(version.Features) == 0 {
		return nil, ierr.NewError("cannot publish a version without features").
			WithHint("Attach at least one feature before publishing").
			WithReportableDetails(map[string]interface{}{
				"plan_version_id": version.ID,
			}).
			Mark(ierr.ErrStateTransition)
	}

	versionPlan, err := s.PlanRepo.Get(ctx, version.PlanID)
	if err != nil {
		return nil, err
	}

	// A non-zero total price mandates a payment method on the plan. Checked
	// before any store mutation.
	if !versionPlan.PaymentMethodRequired {
		total, err := version.FlatEquivalentTotal()
		if err != nil {
			return nil, err
		}
		if !total.IsZero() {
			return nil, ierr.NewError("priced version requires a payment method").
				WithHint("A plan without a payment method requirement can only publish free versions").
				WithReportableDetails(map[string]interface{}{
					"plan_version_id": version.ID,
					"total":           total.Display(),
				}).
				Mark(ierr.ErrStateTransition)
		}
	}

	now := time.Now().UTC()

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		// The latest flag flip must be atomic: a reader must never observe
		// two or zero latest versions for one (plan, currency).
		if err := s.DB.LockKey(ctx, types.LockRequest{Key: versionLockKey(version.PlanID, version.Currency)}); err != nil {
			return err
		}

		prior, err := s.PlanVersionRepo.GetLatest(ctx, version.PlanID, version.Currency)
		if err != nil && !ierr.IsNotFound(err) {
			return err
		}
		if prior != nil && prior.ID != version.ID {
			prior.Latest = false
			if err := s.PlanVersionRepo.Update(ctx, prior); err != nil {
				return err
			}
		}

		version.VersionStatus = types.PlanVersionStatusPublished
		version.PublishedAt = &now
		version.Latest = true
		return s.PlanVersionRepo.Update(ctx, version)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateVersionCache(ctx, version.ID)
	s.syncProducts(ctx, version)

	s.Logger.Infow("published plan version",
		"plan_version_id", version.ID,
		"plan_id", version.PlanID,
		"version", version.Version,
	)

	return &dto.PlanVersionResponse{PlanVersion: version}, nil
}

func (s *planVersionService) RemoveVersion(ctx context.Context, id string) error {
	version, err := s.PlanVersionRepo.Get(ctx, id)
	if err != nil {
		return err
	}

	if !version.IsDraft() {
		return ierr.NewError("published versions cannot be removed").
			WithHint("A published version is immutable; deactivate it instead").
			WithReportableDetails(map[string]interface{}{
				"plan_version_id": version.ID,
				"version_status":  version.VersionStatus,
			}).
			Mark(ierr.ErrStateTransition)
	}

	if err := s.PlanVersionRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidateVersionCache(ctx, id)
	return nil
}

func (s *planVersionService) DeactivateVersion(ctx context.Context, id string) (*dto.PlanVersionResponse, error) {
	version, err := s.PlanVersionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !version.IsPublished() {
		return nil, ierr.NewError("only published versions can be deactivated").
			WithReportableDetails(map[string]interface{}{
				"plan_version_id": version.ID,
				"version_status":  version.VersionStatus,
			}).
			Mark(ierr.ErrStateTransition)
	}

	// Deactivation is a side flag, not a state transition: the version stops
	// accepting new subscriptions but stays priceable for existing ones.
	version.Deactivated = true
	if err := s.PlanVersionRepo.Update(ctx, version); err != nil {
		return nil, err
	}

	s.invalidateVersionCache(ctx, version.ID)
	return &dto.PlanVersionResponse{PlanVersion: version}, nil
}

func (s *planVersionService) ArchiveVersion(ctx context.Context, id string) (*dto.PlanVersionResponse, error) {
	version, err := s.PlanVersionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !version.IsPublished() {
		return nil, ierr.NewError("only published versions can be archived").
			WithHint("Archival is terminal and applies to published versions").
			WithReportableDetails(map[string]interface{}{
				"plan_version_id": version.ID,
				"version_status":  version.VersionStatus,
			}).
			Mark(ierr.ErrStateTransition)
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.DB.LockKey(ctx, types.LockRequest{Key: versionLockKey(version.PlanID, version.Currency)}); err != nil {
			return err
		}
		version.VersionStatus = types.PlanVersionStatusArchived
		version.Latest = false
		return s.PlanVersionRepo.Update(ctx, version)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateVersionCache(ctx, version.ID)
	return &dto.PlanVersionResponse{PlanVersion: version}, nil
}

func (s *planVersionService) GetVersion(ctx context.Context, id string) (*dto.PlanVersionResponse, error) {
	if id == "" {
		return nil, ierr.NewError("plan version ID is required").
			WithHint("Please provide a valid plan version ID").
			Mark(ierr.ErrValidation)
	}

	cacheKey := cache.PlanVersionKey(id)
	if cached, found := s.Cache.Get(ctx, cacheKey); found {
		if version, ok := cache.UnmarshalCacheValue[planversion.PlanVersion](cached); ok {
			return &dto.PlanVersionResponse{PlanVersion: version}, nil
		}
	}

	version, err := s.PlanVersionRepo.GetWithFeatures(ctx, id)
	if err != nil {
		return nil, err
	}

	s.Cache.Set(ctx, cacheKey, version, cache.ExpiryPlanVersion)
	return &dto.PlanVersionResponse{PlanVersion: version}, nil
}

func (s *planVersionService) ListVersions(ctx context.Context, planID string) (*dto.ListPlanVersionsResponse, error) {
	if planID == "" {
		return nil, ierr.NewError("plan ID is required").
			WithHint("Please provide a valid plan ID").
			Mark(ierr.ErrValidation)
	}

	versions, err := s.PlanVersionRepo.ListByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	return dto.NewListPlanVersionsResponse(versions), nil
}

// syncProducts pushes each published feature to the payment provider and
// records the returned external ids. Sync failures are logged, not surfaced;
// the publish itself has already committed.
func (s *planVersionService) syncProducts(ctx context.Context, version *planversion.PlanVersion) {
	if s.ProductSync == nil {
		return
	}
	for _, feature := range version.Features {
		externalID, err := s.ProductSync.UpsertProduct(ctx, integration.ProductUpsert{
			ID:          feature.ExternalID,
			Name:        feature.FeatureName,
			Description: fmt.Sprintf("%s (%s)", feature.FeatureName, feature.FeatureSlug),
		})
		if err != nil {
			s.Logger.Errorw("failed to sync feature to payment provider",
				"plan_version_id", version.ID,
				"feature_slug", feature.FeatureSlug,
				"error", err,
			)
			continue
		}
		if externalID == feature.ExternalID {
			continue
		}
		feature.ExternalID = externalID
		if err := s.PlanVersionRepo.UpdateFeature(ctx, feature); err != nil {
			s.Logger.Errorw("failed to record provider product id",
				"plan_version_id", version.ID,
				"feature_slug", feature.FeatureSlug,
				"error", err,
			)
		}
	}
}

func (s *planVersionService) invalidateVersionCache(ctx context.Context, id string) {
	if s.Cache == nil {
		return
	}
	s.Cache.Delete(ctx, cache.PlanVersionKey(id))
}

func versionLockKey(planID, currency string) string {
	return fmt.Sprintf("plan_version:%s:%s", planID, currency)
}
