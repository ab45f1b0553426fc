package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/meterline/meterline/internal/api/dto"
	"github.com/meterline/meterline/internal/cache"
	"github.com/meterline/meterline/internal/config"
	"github.com/meterline/meterline/internal/domain/events"
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

type EntitlementServiceSuite struct {
	suite.Suite
	ctx             context.Context
	service         EntitlementService
	versionRepo     *testutil.InMemoryPlanVersionStore
	subRepo         *testutil.InMemorySubscriptionStore
	entitlementRepo *testutil.InMemoryEntitlementStore
	pubSub          *testutil.InMemoryPubSub
	params          ServiceParams
	versionID       string
}

func TestEntitlementService(t *testing.T) {
	suite.Run(t, new(EntitlementServiceSuite))
}

func (s *EntitlementServiceSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.versionRepo = testutil.NewInMemoryPlanVersionStore()
	s.subRepo = testutil.NewInMemorySubscriptionStore()
	s.entitlementRepo = testutil.NewInMemoryEntitlementStore()
	s.pubSub = testutil.NewInMemoryPubSub()

	s.params = ServiceParams{
		Logger:          logger.GetLogger(),
		Config:          config.GetDefaultConfig(),
		DB:              testutil.NewMockDBClient(),
		Cache:           cache.NewInMemoryCache(),
		PlanRepo:        testutil.NewInMemoryPlanStore(),
		PlanVersionRepo: s.versionRepo,
		SubRepo:         s.subRepo,
		EntitlementRepo: s.entitlementRepo,
		EventPubSub:     s.pubSub,
	}
	s.service = NewEntitlementService(s.params)

	s.versionID = s.seedVersion()
	s.seedSubscription("cust_1", s.versionID)
}

// seedVersion publishes a version carrying a limited usage feature and an
// unlimited flat feature.
func (s *EntitlementServiceSuite) seedVersion() string {
	now := time.Now().UTC()
	usageCfg, err := pricing.NewConfig(types.FEATURE_TYPE_USAGE, nil, &pricing.TierConfig{
		TierMode:          types.TIER_MODE_GRADUATED,
		AggregationMethod: types.AGGREGATION_SUM,
		Tiers: []pricing.Tier{
			{FirstUnit: 1, UnitPrice: types.MustNewMoney(decimal.RequireFromString("0.01"), "usd")},
		},
	})
	s.Require().NoError(err)
	flatCfg, err := pricing.NewConfig(types.FEATURE_TYPE_FLAT, &pricing.FlatConfig{
		Price: types.ZeroMoney("usd"),
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
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_VERSION_FEATURE),
		PlanVersionID: version.ID,
		FeatureSlug:   "api_calls",
		FeatureName:   "API Calls",
		FeatureType:   types.FEATURE_TYPE_USAGE,
		Config:        usageCfg,
		Limit:         lo.ToPtr(uint64(5)),
		BaseModel:     types.GetDefaultBaseModel(s.ctx),
	}))
	s.Require().NoError(s.versionRepo.CreateFeature(s.ctx, &planversion.PlanVersionFeature{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_VERSION_FEATURE),
		PlanVersionID: version.ID,
		FeatureSlug:   "dashboard",
		FeatureName:   "Dashboard",
		FeatureType:   types.FEATURE_TYPE_FLAT,
		Config:        flatCfg,
		BaseModel:     types.GetDefaultBaseModel(s.ctx),
	}))
	return version.ID
}

func (s *EntitlementServiceSuite) seedSubscription(customerID, versionID string) {
	now := time.Now().UTC()
	s.Require().NoError(s.subRepo.Create(s.ctx, &subscription.Subscription{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		CustomerID: customerID,
		Phases: []*subscription.Phase{
			{
				ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_PHASE),
				PlanVersionID: versionID,
				StartDate:     now.Add(-time.Hour),
			},
		},
		BaseModel: types.GetDefaultBaseModel(s.ctx),
	}))
}

func (s *EntitlementServiceSuite) TestAccessGranted() {
	resp, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
	})
	s.Require().NoError(err)
	s.True(resp.Access)
	s.Equal(types.AccessSourceStore, resp.Source)
	s.Require().NotNil(resp.Remaining)
	s.Equal(uint64(5), *resp.Remaining)
}

func (s *EntitlementServiceSuite) TestAccessServedFromCache() {
	_, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
	})
	s.Require().NoError(err)

	resp, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
	})
	s.Require().NoError(err)
	s.True(resp.Access)
	s.Equal(types.AccessSourceCache, resp.Source)
}

func (s *EntitlementServiceSuite) TestSkipCacheForcesStore() {
	_, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
	})
	s.Require().NoError(err)

	resp, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		SkipCache:   true,
	})
	s.Require().NoError(err)
	s.Equal(types.AccessSourceStore, resp.Source)
}

func (s *EntitlementServiceSuite) TestDeniedNoActiveSubscription() {
	resp, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_unknown",
		FeatureSlug: "api_calls",
	})
	s.Require().NoError(err)
	s.False(resp.Access)
	s.Equal(types.DeniedReasonNoActiveSubscription, resp.DeniedReason)
}

func (s *EntitlementServiceSuite) TestDeniedFeatureNotAvailable() {
	resp, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "sso",
	})
	s.Require().NoError(err)
	s.False(resp.Access)
	s.Equal(types.DeniedReasonFeatureNotAvailable, resp.DeniedReason)
}

func (s *EntitlementServiceSuite) TestDeniedLimitReached() {
	for i := 0; i < 5; i++ {
		applied, err := s.entitlementRepo.IncrementUsage(s.ctx, "cust_1", "api_calls", 1, types.AGGREGATION_SUM, types.GenerateUUID())
		s.Require().NoError(err)
		s.True(applied)
	}

	resp, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		SkipCache:   true,
	})
	s.Require().NoError(err)
	s.False(resp.Access)
	s.Equal(types.DeniedReasonLimitReached, resp.DeniedReason)
	s.Require().NotNil(resp.Remaining)
	s.Equal(uint64(0), *resp.Remaining)
}

func (s *EntitlementServiceSuite) TestConsumingAccessSchedulesUsageEvent() {
	resp, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:   "cust_1",
		FeatureSlug:  "api_calls",
		ConsumeUnits: 1,
		ActionRef:    "resource_42",
	})
	s.Require().NoError(err)
	s.True(resp.Access)

	// The publish happens off the request path.
	topic := s.params.Config.UsageReporting.Topic
	s.Eventually(func() bool {
		return len(s.pubSub.Published(topic)) == 1
	}, time.Second, 10*time.Millisecond)
}

func (s *EntitlementServiceSuite) TestConsumeWithoutActionRefRejected() {
	_, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:   "cust_1",
		FeatureSlug:  "api_calls",
		ConsumeUnits: 1,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *EntitlementServiceSuite) TestScheduledEventCarriesAggregationMethod() {
	_, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:   "cust_1",
		FeatureSlug:  "api_calls",
		ConsumeUnits: 1,
		ActionRef:    "resource_42",
	})
	s.Require().NoError(err)

	topic := s.params.Config.UsageReporting.Topic
	s.Eventually(func() bool {
		return len(s.pubSub.Published(topic)) == 1
	}, time.Second, 10*time.Millisecond)

	var event events.UsageEvent
	s.Require().NoError(json.Unmarshal(s.pubSub.Published(topic)[0].Payload, &event))
	s.Equal(types.AGGREGATION_SUM, event.AggregationMethod)
}

func (s *EntitlementServiceSuite) TestCacheHitLeavesCachedEntryUntouched() {
	_, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
	})
	s.Require().NoError(err)

	resp, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
	})
	s.Require().NoError(err)
	s.Equal(types.AccessSourceCache, resp.Source)

	// The stored entry keeps its original source; hits mutate a copy.
	cached, found := s.params.Cache.Get(s.ctx, cache.EntitlementKey("cust_1", "api_calls"))
	s.Require().True(found)
	stored, ok := cache.UnmarshalCacheValue[dto.CheckAccessResponse](cached)
	s.Require().True(ok)
	s.Equal(types.AccessSourceStore, stored.Source)
}

func (s *EntitlementServiceSuite) TestDeniedAccessPublishesNothing() {
	_, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:   "cust_unknown",
		FeatureSlug:  "api_calls",
		ConsumeUnits: 1,
		ActionRef:    "resource_42",
	})
	s.Require().NoError(err)

	time.Sleep(50 * time.Millisecond)
	s.Empty(s.pubSub.Published(s.params.Config.UsageReporting.Topic))
}

func (s *EntitlementServiceSuite) TestUnlimitedFeatureHasNilRemaining() {
	resp, err := s.service.CheckAccess(s.ctx, dto.CheckAccessRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "dashboard",
	})
	s.Require().NoError(err)
	s.True(resp.Access)
	s.Nil(resp.Remaining)
}
