// Command server wires the pricing engine and runs the usage reporting
// consumer until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/meterline/meterline/internal/cache"
	"github.com/meterline/meterline/internal/config"
	"github.com/meterline/meterline/internal/integration"
	"github.com/meterline/meterline/internal/integration/stripe"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/postgres"
	"github.com/meterline/meterline/internal/pubsub"
	"github.com/meterline/meterline/internal/pubsub/kafka"
	"github.com/meterline/meterline/internal/pubsub/memory"
	"github.com/meterline/meterline/internal/pubsub/router"
	"github.com/meterline/meterline/internal/redis"
	pgrepo "github.com/meterline/meterline/internal/repository/postgres"
	"github.com/meterline/meterline/internal/service"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logr, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	db, err := postgres.Open(cfg.Postgres, logr)
	if err != nil {
		logr.Fatalw("failed to connect to postgres", "error", err)
	}

	var redisClient *redis.Client
	if cache.CacheType(cfg.Cache.Type) == cache.CacheTypeRedis {
		redisClient, err = redis.NewClient(cfg.Redis, logr)
		if err != nil {
			logr.Fatalw("failed to connect to redis", "error", err)
		}
	}
	cacheClient := cache.Initialize(cfg, redisClient, logr)

	eventPubSub := newPubSub(cfg, logr)
	defer eventPubSub.Close()

	var productSync integration.ProductSync = integration.NoopProductSync{}
	if cfg.Stripe.Enabled {
		productSync = stripe.NewProductSync(cfg, logr)
	}

	params := service.ServiceParams{
		Logger:          logr,
		Config:          cfg,
		DB:              db,
		Cache:           cacheClient,
		PlanRepo:        pgrepo.NewPlanRepository(db, logr),
		PlanVersionRepo: pgrepo.NewPlanVersionRepository(db, logr),
		SubRepo:         pgrepo.NewSubscriptionRepository(db, logr),
		EntitlementRepo: pgrepo.NewEntitlementRepository(db, logr),
		ProductSync:     productSync,
		EventPubSub:     eventPubSub,
	}

	msgRouter, err := router.New(cfg, logr)
	if err != nil {
		logr.Fatalw("failed to create message router", "error", err)
	}

	if cfg.UsageReporting.Enabled {
		service.NewUsageReportingService(params).RegisterHandler(msgRouter)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logr.Infow("starting usage reporting consumer",
		"topic", cfg.UsageReporting.Topic,
		"consumer_group", cfg.UsageReporting.ConsumerGroup,
	)
	if err := msgRouter.Run(ctx); err != nil {
		logr.Fatalw("message router stopped", "error", err)
	}
	logr.Infow("shutdown complete")
}

func newPubSub(cfg *config.Configuration, logr *logger.Logger) pubsub.PubSub {
	if len(cfg.Kafka.Brokers) > 0 {
		ps, err := kafka.NewPubSubFromConfig(cfg, logr, cfg.UsageReporting.ConsumerGroup)
		if err != nil {
			logr.Fatalw("failed to connect to kafka", "error", err)
		}
		return ps
	}
	logr.Infow("kafka brokers not configured, using in-process pubsub")
	return memory.NewPubSub(logr)
}
