// Package router wraps watermill's message router so services can register
// topic handlers without depending on watermill wiring directly.
package router

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/meterline/meterline/internal/config"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/pubsub"
)

// Router dispatches subscribed messages to registered handlers.
type Router struct {
	router *message.Router
	log    *logger.Logger
}

// New creates a router with retry middleware. Handler errors are retried
// in place before the message is redelivered by the transport.
func New(cfg *config.Configuration, log *logger.Logger) (*Router, error) {
	wmLogger := pubsub.NewWatermillLogger(log)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      5,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2.0,
			Logger:          wmLogger,
		}.Middleware,
	)

	return &Router{router: router, log: log}, nil
}

// AddNoPublishHandler registers a consume-only handler for a topic.
func (r *Router) AddNoPublishHandler(
	handlerName string,
	topic string,
	subscriber pubsub.Subscriber,
	handlerFunc message.NoPublishHandlerFunc,
	handlerMiddleware ...message.HandlerMiddleware,
) {
	handler := r.router.AddNoPublisherHandler(
		handlerName,
		topic,
		subscriberAdapter{subscriber},
		handlerFunc,
	)
	for _, m := range handlerMiddleware {
		handler.AddMiddleware(m)
	}
}

// Run blocks until the context is cancelled or the router stops.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel closed once the router has started.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

func (r *Router) Close() error {
	return r.router.Close()
}

// subscriberAdapter bridges our Subscriber interface to watermill's.
type subscriberAdapter struct {
	sub pubsub.Subscriber
}

func (a subscriberAdapter) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return a.sub.Subscribe(ctx, topic)
}

func (a subscriberAdapter) Close() error {
	return nil
}
