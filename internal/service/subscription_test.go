package service

import (
	"context"
	"testing"
	"time"

	"github.com/meterline/meterline/internal/api/dto"
	"github.com/meterline/meterline/internal/cache"
	"github.com/meterline/meterline/internal/config"
	"github.com/meterline/meterline/internal/domain/planversion"
	"github.com/meterline/meterline/internal/domain/pricing"
	"github.com/meterline/meterline/internal/domain/subscription"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/testutil"
	"github.com/meterline/meterline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type SubscriptionServiceSuite struct {
	suite.Suite
	ctx         context.Context
	service     SubscriptionService
	versionRepo *testutil.InMemoryPlanVersionStore
	subRepo     *testutil.InMemorySubscriptionStore
	versionID   string
	subID       string
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.versionRepo = testutil.NewInMemoryPlanVersionStore()
	s.subRepo = testutil.NewInMemorySubscriptionStore()

	params := ServiceParams{
		Logger:          logger.GetLogger(),
		Config:          config.GetDefaultConfig(),
		DB:              testutil.NewMockDBClient(),
		Cache:           cache.NewInMemoryCache(),
		PlanRepo:        testutil.NewInMemoryPlanStore(),
		PlanVersionRepo: s.versionRepo,
		SubRepo:         s.subRepo,
		EntitlementRepo: testutil.NewInMemoryEntitlementStore(),
	}
	s.service = NewSubscriptionService(params)

	s.versionID = s.seedPublishedVersion()
	s.subID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION)
	s.Require().NoError(s.subRepo.Create(s.ctx, &subscription.Subscription{
		ID:         s.subID,
		CustomerID: "cust_1",
		BaseModel:  types.GetDefaultBaseModel(s.ctx),
	}))
}

func (s *SubscriptionServiceSuite) seedPublishedVersion() string {
	now := time.Now().UTC()

	tierCfg, err := pricing.NewConfig(types.FEATURE_TYPE_TIER, nil, &pricing.TierConfig{
		TierMode: types.TIER_MODE_VOLUME,
		Tiers: []pricing.Tier{
			{FirstUnit: 1, UnitPrice: types.MustNewMoney(decimal.RequireFromString("5"), "usd")},
		},
	})
	s.Require().NoError(err)
	flatCfg, err := pricing.NewConfig(types.FEATURE_TYPE_FLAT, &pricing.FlatConfig{
		Price: types.MustNewMoney(decimal.RequireFromString("10"), "usd"),
	}, nil)
	s.Require().NoError(err)

	version := &planversion.PlanVersion{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_VERSION),
		PlanID:        "plan_1",
		Version:       1,
		VersionStatus: types.PlanVersionStatusPublished,
		Latest:        true,
		Currency:      "usd",
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		PublishedAt:   &now,
		BaseModel:     types.GetDefaultBaseModel(s.ctx),
	}
	s.Require().NoError(s.versionRepo.Create(s.ctx, version))
	s.Require().NoError(s.versionRepo.CreateFeature(s.ctx, &planversion.PlanVersionFeature{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_VERSION_FEATURE),
		PlanVersionID:   version.ID,
		FeatureSlug:     "seats",
		FeatureName:     "Seats",
		FeatureType:     types.FEATURE_TYPE_TIER,
		Config:          tierCfg,
		DefaultQuantity: 1,
		BaseModel:       types.GetDefaultBaseModel(s.ctx),
	}))
	s.Require().NoError(s.versionRepo.CreateFeature(s.ctx, &planversion.PlanVersionFeature{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_VERSION_FEATURE),
		PlanVersionID: version.ID,
		FeatureSlug:   "support",
		FeatureName:   "Support",
		FeatureType:   types.FEATURE_TYPE_FLAT,
		Config:        flatCfg,
		BaseModel:     types.GetDefaultBaseModel(s.ctx),
	}))
	return version.ID
}

func (s *SubscriptionServiceSuite) TestCreatePhase() {
	start := time.Now().UTC().Add(time.Hour)
	phase, err := s.service.CreatePhase(s.ctx, dto.CreatePhaseRequest{
		SubscriptionID: s.subID,
		PlanVersionID:  s.versionID,
		StartDate:      start,
		Items: []dto.PhaseItemRequest{
			{FeatureSlug: "seats", Quantity: lo.ToPtr(uint64(8))},
			{FeatureSlug: "support"},
		},
	})
	s.Require().NoError(err)
	s.Require().Len(phase.Items, 2)
	s.Equal(uint64(8), phase.Item("seats").Quantity)
	// Flat quantity is derived, not entered.
	s.Equal(uint64(0), phase.Item("support").Quantity)

	stored, err := s.subRepo.Get(s.ctx, s.subID)
	s.Require().NoError(err)
	s.Len(stored.Phases, 1)
}

func (s *SubscriptionServiceSuite) TestCreatePhaseRejectsUnknownFeature() {
	_, err := s.service.CreatePhase(s.ctx, dto.CreatePhaseRequest{
		SubscriptionID: s.subID,
		PlanVersionID:  s.versionID,
		StartDate:      time.Now().UTC(),
		Items: []dto.PhaseItemRequest{
			{FeatureSlug: "sso"},
		},
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestCreatePhaseRejectsQuantityForFlatFeature() {
	_, err := s.service.CreatePhase(s.ctx, dto.CreatePhaseRequest{
		SubscriptionID: s.subID,
		PlanVersionID:  s.versionID,
		StartDate:      time.Now().UTC(),
		Items: []dto.PhaseItemRequest{
			{FeatureSlug: "support", Quantity: lo.ToPtr(uint64(3))},
		},
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestCreatePhaseRejectsOverlap() {
	start := time.Now().UTC()
	_, err := s.service.CreatePhase(s.ctx, dto.CreatePhaseRequest{
		SubscriptionID: s.subID,
		PlanVersionID:  s.versionID,
		StartDate:      start,
		EndDate:        lo.ToPtr(start.Add(48 * time.Hour)),
	})
	s.Require().NoError(err)

	_, err = s.service.CreatePhase(s.ctx, dto.CreatePhaseRequest{
		SubscriptionID: s.subID,
		PlanVersionID:  s.versionID,
		StartDate:      start.Add(24 * time.Hour),
	})
	s.Error(err)
}

func (s *SubscriptionServiceSuite) TestCreatePhaseRejectsDeactivatedVersion() {
	version, err := s.versionRepo.Get(s.ctx, s.versionID)
	s.Require().NoError(err)
	version.Deactivated = true
	s.Require().NoError(s.versionRepo.Update(s.ctx, version))

	_, err = s.service.CreatePhase(s.ctx, dto.CreatePhaseRequest{
		SubscriptionID: s.subID,
		PlanVersionID:  s.versionID,
		StartDate:      time.Now().UTC(),
	})
	s.Error(err)
	s.True(ierr.IsStateTransition(err))
}

func (s *SubscriptionServiceSuite) TestUpdatePhase() {
	start := time.Now().UTC().Add(time.Hour)
	phase, err := s.service.CreatePhase(s.ctx, dto.CreatePhaseRequest{
		SubscriptionID: s.subID,
		PlanVersionID:  s.versionID,
		StartDate:      start,
		Items: []dto.PhaseItemRequest{
			{FeatureSlug: "seats", Quantity: lo.ToPtr(uint64(2))},
		},
	})
	s.Require().NoError(err)

	updated, err := s.service.UpdatePhase(s.ctx, dto.UpdatePhaseRequest{
		SubscriptionID: s.subID,
		PhaseID:        phase.ID,
		Items: []dto.PhaseItemRequest{
			{FeatureSlug: "seats", Quantity: lo.ToPtr(uint64(12))},
		},
	})
	s.Require().NoError(err)
	s.Equal(uint64(12), updated.Item("seats").Quantity)
}

func (s *SubscriptionServiceSuite) TestUpdateElapsedPhaseRejected() {
	now := time.Now().UTC()
	phase := &subscription.Phase{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_PHASE),
		SubscriptionID: s.subID,
		PlanVersionID:  s.versionID,
		StartDate:      now.Add(-48 * time.Hour),
		EndDate:        lo.ToPtr(now.Add(-24 * time.Hour)),
		BaseModel:      types.GetDefaultBaseModel(s.ctx),
	}
	sub, err := s.subRepo.Get(s.ctx, s.subID)
	s.Require().NoError(err)
	sub.Phases = append(sub.Phases, phase)
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))

	_, err = s.service.UpdatePhase(s.ctx, dto.UpdatePhaseRequest{
		SubscriptionID: s.subID,
		PhaseID:        phase.ID,
		EndDate:        lo.ToPtr(now.Add(24 * time.Hour)),
	})
	s.Error(err)
	s.True(ierr.IsStateTransition(err))
}

func (s *SubscriptionServiceSuite) TestRemovePhase() {
	phase, err := s.service.CreatePhase(s.ctx, dto.CreatePhaseRequest{
		SubscriptionID: s.subID,
		PlanVersionID:  s.versionID,
		StartDate:      time.Now().UTC().Add(time.Hour),
	})
	s.Require().NoError(err)

	s.Require().NoError(s.service.RemovePhase(s.ctx, s.subID, phase.ID))

	stored, err := s.subRepo.Get(s.ctx, s.subID)
	s.Require().NoError(err)
	s.Empty(stored.Phases)
}

func (s *SubscriptionServiceSuite) TestRemoveUnknownPhase() {
	err := s.service.RemovePhase(s.ctx, s.subID, "phase_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}
