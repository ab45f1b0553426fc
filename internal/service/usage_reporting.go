package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/cenkalti/backoff/v4"
	"github.com/meterline/meterline/internal/cache"
	"github.com/meterline/meterline/internal/domain/events"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/pubsub/router"
	"github.com/meterline/meterline/internal/types"
)

// UsageReportingService moves usage increments through the event pipeline:
// the guard publishes, the background worker consumes and applies them to
// entitlement counters. Delivery is at-least-once; the idempotency key on
// each event makes double-apply harmless.
type UsageReportingService interface {
	PublishEvent(ctx context.Context, req UsagePublishRequest) error
	RegisterHandler(r *router.Router)
	ProcessMessage(msg *message.Message) error
}

// UsagePublishRequest is one unit-consuming action to report.
type UsagePublishRequest struct {
	CustomerID        string
	FeatureSlug       string
	Usage             uint64
	ActionRef         string
	AggregationMethod types.AggregationMethod
	Metadata          types.Metadata
}

type usageReportingService struct {
	ServiceParams
}

func NewUsageReportingService(params ServiceParams) UsageReportingService {
	return &usageReportingService{ServiceParams: params}
}

func (s *usageReportingService) PublishEvent(ctx context.Context, req UsagePublishRequest) error {
	// Distinct actions must carry distinct refs; one shared key would fold
	// them all into a single increment.
	if req.ActionRef == "" {
		return ierr.NewError("action ref is required").
			WithHint("Usage events are deduplicated per action reference").
			WithReportableDetails(map[string]interface{}{
				"customer_id":  req.CustomerID,
				"feature_slug": req.FeatureSlug,
			}).
			Mark(ierr.ErrValidation)
	}

	event := events.NewUsageEvent(ctx, req.CustomerID, req.FeatureSlug, req.Usage, req.ActionRef)
	event.AggregationMethod = req.AggregationMethod
	event.Metadata = req.Metadata

	if err := event.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal usage event").
			Mark(ierr.ErrSystem)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	// Partition on customer so one customer's increments stay ordered.
	msg.Metadata.Set("partition_key", req.CustomerID)

	if err := s.EventPubSub.Publish(ctx, s.Config.UsageReporting.Topic, msg); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to publish usage event").
			Mark(ierr.ErrTransient)
	}

	s.Logger.Debugw("published usage event",
		"customer_id", req.CustomerID,
		"feature_slug", req.FeatureSlug,
		"usage", req.Usage,
		"idempotency_key", event.IdempotencyKey,
	)
	return nil
}

// RegisterHandler attaches the usage consumer to the router, throttled to
// the configured rate.
func (s *usageReportingService) RegisterHandler(r *router.Router) {
	var handlerMiddleware []message.HandlerMiddleware
	if s.Config.UsageReporting.RateLimit > 0 {
		throttle := middleware.NewThrottle(s.Config.UsageReporting.RateLimit, time.Second)
		handlerMiddleware = append(handlerMiddleware, throttle.Middleware)
	}

	r.AddNoPublishHandler(
		"usage_events_handler",
		s.Config.UsageReporting.Topic,
		s.EventPubSub,
		s.ProcessMessage,
		handlerMiddleware...,
	)
}

// ProcessMessage applies one usage event to its entitlement counter.
// Returning an error redelivers the message; the idempotency key keeps
// redelivered events from double-counting.
func (s *usageReportingService) ProcessMessage(msg *message.Message) error {
	var event events.UsageEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// A payload that cannot be decoded will never succeed; drop it.
		s.Logger.Errorw("failed to unmarshal usage event, dropping",
			"message_uuid", msg.UUID,
			"error", err,
		)
		return nil
	}

	if err := event.Validate(); err != nil {
		s.Logger.Errorw("invalid usage event, dropping",
			"message_uuid", msg.UUID,
			"error", err,
		)
		return nil
	}

	ctx := msg.Context()

	var applied bool
	operation := func() error {
		var err error
		applied, err = s.EntitlementRepo.IncrementUsage(ctx, event.CustomerID, event.FeatureSlug, event.Usage, event.AggregationMethod, event.IdempotencyKey)
		if err != nil {
			if ierr.IsTransient(err) || ierr.IsDatabase(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		s.Logger.Errorw("failed to apply usage increment",
			"customer_id", event.CustomerID,
			"feature_slug", event.FeatureSlug,
			"idempotency_key", event.IdempotencyKey,
			"error", err,
		)
		return err
	}

	if !applied {
		s.Logger.Debugw("duplicate usage event ignored",
			"customer_id", event.CustomerID,
			"feature_slug", event.FeatureSlug,
			"idempotency_key", event.IdempotencyKey,
		)
		return nil
	}

	// The counter moved; the cached decision may now be stale.
	s.Cache.Delete(ctx, cache.EntitlementKey(event.CustomerID, event.FeatureSlug))

	s.Logger.Debugw("applied usage increment",
		"customer_id", event.CustomerID,
		"feature_slug", event.FeatureSlug,
		"usage", event.Usage,
	)
	return nil
}
