package service

import (
	"github.com/meterline/meterline/internal/cache"
	"github.com/meterline/meterline/internal/config"
	"github.com/meterline/meterline/internal/domain/entitlement"
	"github.com/meterline/meterline/internal/domain/plan"
	"github.com/meterline/meterline/internal/domain/planversion"
	"github.com/meterline/meterline/internal/domain/subscription"
	"github.com/meterline/meterline/internal/integration"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/postgres"
	"github.com/meterline/meterline/internal/pubsub"
)

// ServiceParams carries every dependency a service can need. Services embed
// it and pick what they use; construction sites fill it once.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Cache  cache.Cache

	PlanRepo        plan.Repository
	PlanVersionRepo planversion.Repository
	SubRepo         subscription.Repository
	EntitlementRepo entitlement.Repository

	ProductSync integration.ProductSync
	EventPubSub pubsub.PubSub
}
