package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/meterline/meterline/internal/cache"
	"github.com/meterline/meterline/internal/config"
	"github.com/meterline/meterline/internal/domain/events"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/testutil"
	"github.com/meterline/meterline/internal/types"
	"github.com/stretchr/testify/suite"
)

type UsageReportingSuite struct {
	suite.Suite
	ctx             context.Context
	service         UsageReportingService
	entitlementRepo *testutil.InMemoryEntitlementStore
	pubSub          *testutil.InMemoryPubSub
	params          ServiceParams
}

func TestUsageReporting(t *testing.T) {
	suite.Run(t, new(UsageReportingSuite))
}

func (s *UsageReportingSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.entitlementRepo = testutil.NewInMemoryEntitlementStore()
	s.pubSub = testutil.NewInMemoryPubSub()

	s.params = ServiceParams{
		Logger:          logger.GetLogger(),
		Config:          config.GetDefaultConfig(),
		DB:              testutil.NewMockDBClient(),
		Cache:           cache.NewInMemoryCache(),
		PlanRepo:        testutil.NewInMemoryPlanStore(),
		PlanVersionRepo: testutil.NewInMemoryPlanVersionStore(),
		SubRepo:         testutil.NewInMemorySubscriptionStore(),
		EntitlementRepo: s.entitlementRepo,
		EventPubSub:     s.pubSub,
	}
	s.service = NewUsageReportingService(s.params)
}

func (s *UsageReportingSuite) publishAndFetch(req UsagePublishRequest) *message.Message {
	s.Require().NoError(s.service.PublishEvent(s.ctx, req))
	published := s.pubSub.Published(s.params.Config.UsageReporting.Topic)
	s.Require().NotEmpty(published)
	return published[len(published)-1]
}

func (s *UsageReportingSuite) TestPublishEvent() {
	msg := s.publishAndFetch(UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       2,
		ActionRef:   "resource_42",
	})

	s.Equal("cust_1", msg.Metadata.Get("partition_key"))

	var event events.UsageEvent
	s.Require().NoError(json.Unmarshal(msg.Payload, &event))
	s.Equal("cust_1", event.CustomerID)
	s.Equal(uint64(2), event.Usage)
	s.Equal(events.DeriveIdempotencyKey("cust_1", "api_calls", "resource_42"), event.IdempotencyKey)
	s.Equal(testutil.TestTenantID, event.TenantID)
}

func (s *UsageReportingSuite) TestPublishRejectsMissingActionRef() {
	// Without a ref every event for the pair would share one idempotency
	// key and collapse into a single increment.
	err := s.service.PublishEvent(s.ctx, UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       1,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *UsageReportingSuite) TestDistinctActionsCountSeparately() {
	first := s.publishAndFetch(UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       1,
		ActionRef:   "resource_1",
	})
	second := s.publishAndFetch(UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       1,
		ActionRef:   "resource_2",
	})

	s.Require().NoError(s.service.ProcessMessage(first))
	s.Require().NoError(s.service.ProcessMessage(second))

	ent, err := s.entitlementRepo.Get(s.ctx, "cust_1", "api_calls")
	s.Require().NoError(err)
	s.Equal(uint64(2), ent.UsedQuantity)
}

func (s *UsageReportingSuite) TestMaxAggregationKeepsPeak() {
	peak := s.publishAndFetch(UsagePublishRequest{
		CustomerID:        "cust_1",
		FeatureSlug:       "storage_gb",
		Usage:             30,
		ActionRef:         "report_1",
		AggregationMethod: types.AGGREGATION_MAX,
	})
	dip := s.publishAndFetch(UsagePublishRequest{
		CustomerID:        "cust_1",
		FeatureSlug:       "storage_gb",
		Usage:             12,
		ActionRef:         "report_2",
		AggregationMethod: types.AGGREGATION_MAX,
	})

	s.Require().NoError(s.service.ProcessMessage(peak))
	s.Require().NoError(s.service.ProcessMessage(dip))

	ent, err := s.entitlementRepo.Get(s.ctx, "cust_1", "storage_gb")
	s.Require().NoError(err)
	s.Equal(uint64(30), ent.UsedQuantity)
}

func (s *UsageReportingSuite) TestLastAggregationOverwrites() {
	first := s.publishAndFetch(UsagePublishRequest{
		CustomerID:        "cust_1",
		FeatureSlug:       "active_seats",
		Usage:             9,
		ActionRef:         "snapshot_1",
		AggregationMethod: types.AGGREGATION_LAST,
	})
	second := s.publishAndFetch(UsagePublishRequest{
		CustomerID:        "cust_1",
		FeatureSlug:       "active_seats",
		Usage:             4,
		ActionRef:         "snapshot_2",
		AggregationMethod: types.AGGREGATION_LAST,
	})

	s.Require().NoError(s.service.ProcessMessage(first))
	s.Require().NoError(s.service.ProcessMessage(second))

	ent, err := s.entitlementRepo.Get(s.ctx, "cust_1", "active_seats")
	s.Require().NoError(err)
	s.Equal(uint64(4), ent.UsedQuantity)
}

func (s *UsageReportingSuite) TestPublishRejectsInvalidEvent() {
	err := s.service.PublishEvent(s.ctx, UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       0,
		ActionRef:   "resource_42",
	})
	s.Error(err)
}

func (s *UsageReportingSuite) TestProcessMessageAppliesIncrement() {
	msg := s.publishAndFetch(UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       3,
		ActionRef:   "resource_1",
	})

	s.Require().NoError(s.service.ProcessMessage(msg))

	ent, err := s.entitlementRepo.Get(s.ctx, "cust_1", "api_calls")
	s.Require().NoError(err)
	s.Equal(uint64(3), ent.UsedQuantity)
}

func (s *UsageReportingSuite) TestDuplicateDeliveryCountedOnce() {
	msg := s.publishAndFetch(UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       3,
		ActionRef:   "resource_1",
	})

	// At-least-once delivery: the same message arrives twice.
	s.Require().NoError(s.service.ProcessMessage(msg))
	s.Require().NoError(s.service.ProcessMessage(msg))

	ent, err := s.entitlementRepo.Get(s.ctx, "cust_1", "api_calls")
	s.Require().NoError(err)
	s.Equal(uint64(3), ent.UsedQuantity)
}

func (s *UsageReportingSuite) TestRetriedActionSharesIdempotencyKey() {
	first := s.publishAndFetch(UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       1,
		ActionRef:   "resource_7",
	})
	retry := s.publishAndFetch(UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       1,
		ActionRef:   "resource_7",
	})

	s.Require().NoError(s.service.ProcessMessage(first))
	s.Require().NoError(s.service.ProcessMessage(retry))

	ent, err := s.entitlementRepo.Get(s.ctx, "cust_1", "api_calls")
	s.Require().NoError(err)
	s.Equal(uint64(1), ent.UsedQuantity)
}

func (s *UsageReportingSuite) TestTransientFailureRetried() {
	msg := s.publishAndFetch(UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       2,
		ActionRef:   "resource_9",
	})

	s.entitlementRepo.FailIncrements = 2
	s.Require().NoError(s.service.ProcessMessage(msg))

	ent, err := s.entitlementRepo.Get(s.ctx, "cust_1", "api_calls")
	s.Require().NoError(err)
	s.Equal(uint64(2), ent.UsedQuantity)
}

func (s *UsageReportingSuite) TestMalformedPayloadDropped() {
	msg := message.NewMessage(watermill.NewUUID(), []byte("not json"))
	// Dropping means no redelivery: the handler reports success.
	s.NoError(s.service.ProcessMessage(msg))
}

func (s *UsageReportingSuite) TestIncrementInvalidatesCachedDecision() {
	cacheKey := cache.EntitlementKey("cust_1", "api_calls")
	s.params.Cache.Set(s.ctx, cacheKey, "stale-decision", 0)

	msg := s.publishAndFetch(UsagePublishRequest{
		CustomerID:  "cust_1",
		FeatureSlug: "api_calls",
		Usage:       1,
		ActionRef:   "resource_3",
	})
	s.Require().NoError(s.service.ProcessMessage(msg))

	_, found := s.params.Cache.Get(s.ctx, cacheKey)
	s.False(found)
}
