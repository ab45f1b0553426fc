package service

import (
	"context"
	"time"

	"github.com/meterline/meterline/internal/api/dto"
	"github.com/meterline/meterline/internal/cache"
	"github.com/meterline/meterline/internal/domain/entitlement"
	"github.com/meterline/meterline/internal/domain/subscription"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
	"github.com/sourcegraph/conc/pool"
)

// EntitlementService is the guard in front of feature access: it answers
// "may this customer use this feature right now" from cache when possible,
// from the authoritative subscription data otherwise, and schedules a
// non-blocking usage increment for consuming actions.
type EntitlementService interface {
	CheckAccess(ctx context.Context, req dto.CheckAccessRequest) (*dto.CheckAccessResponse, error)
}

type entitlementService struct {
	ServiceParams
	reporting  UsageReportingService
	workerPool *pool.Pool
}

func NewEntitlementService(params ServiceParams) EntitlementService {
	workers := params.Config.UsageReporting.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	return &entitlementService{
		ServiceParams: params,
		reporting:     NewUsageReportingService(params),
		workerPool:    pool.New().WithMaxGoroutines(workers),
	}
}

func (s *entitlementService) CheckAccess(ctx context.Context, req dto.CheckAccessRequest) (*dto.CheckAccessResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cacheKey := cache.EntitlementKey(req.CustomerID, req.FeatureSlug)

	if !req.SkipCache {
		if cached, found := s.Cache.Get(ctx, cacheKey); found {
			if resp, ok := cache.UnmarshalCacheValue[dto.CheckAccessResponse](cached); ok {
				// Copy before mutating; the cached struct is shared across
				// concurrent hits.
				out := *resp
				out.Source = types.AccessSourceCache
				s.scheduleUsage(ctx, req, &out)
				return &out, nil
			}
		}
	}

	resp, err := s.resolveAccess(ctx, req)
	if err != nil {
		// Transient resolution failures are surfaced as errors, never as a
		// denial; the caller decides whether to retry or fail open.
		return nil, err
	}

	s.Cache.Set(ctx, cacheKey, resp, cache.ExpiryEntitlement)
	s.scheduleUsage(ctx, req, resp)
	return resp, nil
}

// resolveAccess computes the decision from the authoritative store.
func (s *entitlementService) resolveAccess(ctx context.Context, req dto.CheckAccessRequest) (*dto.CheckAccessResponse, error) {
	now := time.Now().UTC()

	phase, err := s.currentPhase(ctx, req.CustomerID, now)
	if err != nil {
		return nil, err
	}
	if phase == nil {
		return &dto.CheckAccessResponse{
			Access:       false,
			DeniedReason: types.DeniedReasonNoActiveSubscription,
			Source:       types.AccessSourceStore,
		}, nil
	}

	version, err := s.PlanVersionRepo.GetWithFeatures(ctx, phase.PlanVersionID)
	if err != nil {
		return nil, err
	}
	feature := version.Feature(req.FeatureSlug)
	if feature == nil {
		return &dto.CheckAccessResponse{
			Access:       false,
			DeniedReason: types.DeniedReasonFeatureNotAvailable,
			Source:       types.AccessSourceStore,
		}, nil
	}

	ent, err := s.EntitlementRepo.Get(ctx, req.CustomerID, req.FeatureSlug)
	if err != nil {
		if !ierr.IsNotFound(err) {
			return nil, err
		}
		// Lazy-create the record on first access so usage increments have a
		// row to land on.
		ent = &entitlement.Entitlement{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT),
			CustomerID:  req.CustomerID,
			FeatureSlug: req.FeatureSlug,
			Limit:       feature.Limit,
			BaseModel:   types.GetDefaultBaseModel(ctx),
		}
		if err := s.EntitlementRepo.Upsert(ctx, ent); err != nil {
			return nil, err
		}
	}

	// The plan version is authoritative for the limit; pick up changes made
	// since the record was created.
	ent.Limit = feature.Limit

	if ent.LimitReached() {
		return &dto.CheckAccessResponse{
			Access:       false,
			DeniedReason: types.DeniedReasonLimitReached,
			Remaining:    ent.Remaining(),
			Source:       types.AccessSourceStore,
		}, nil
	}

	resp := &dto.CheckAccessResponse{
		Access:    true,
		Remaining: ent.Remaining(),
		Source:    types.AccessSourceStore,
	}
	if feature.Config != nil && feature.Config.Tier != nil {
		resp.AggregationMethod = feature.Config.Tier.AggregationMethod
	}
	return resp, nil
}

// currentPhase finds the phase covering now across the customer's
// subscriptions. Phases never overlap, so at most one matches.
func (s *entitlementService) currentPhase(ctx context.Context, customerID string, now time.Time) (*subscription.Phase, error) {
	subs, err := s.SubRepo.GetByCustomer(ctx, customerID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, sub := range subs {
		if phase := sub.CurrentPhase(now); phase != nil {
			return phase, nil
		}
	}
	return nil, nil
}

// scheduleUsage publishes a usage event for a consuming access without
// blocking the caller. The publish runs on a bounded worker pool with a
// context detached from the request so response completion cannot cancel it.
func (s *entitlementService) scheduleUsage(ctx context.Context, req dto.CheckAccessRequest, resp *dto.CheckAccessResponse) {
	if !resp.Access || req.ConsumeUnits == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	s.workerPool.Go(func() {
		err := s.reporting.PublishEvent(detached, UsagePublishRequest{
			CustomerID:        req.CustomerID,
			FeatureSlug:       req.FeatureSlug,
			Usage:             req.ConsumeUnits,
			ActionRef:         req.ActionRef,
			AggregationMethod: resp.AggregationMethod,
		})
		if err != nil {
			s.Logger.Errorw("failed to publish usage event",
				"customer_id", req.CustomerID,
				"feature_slug", req.FeatureSlug,
				"error", err,
			)
		}
	})
}
