// Package kafka provides a Kafka-backed pubsub built on watermill-kafka.
package kafka

import (
	"context"

	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/meterline/meterline/internal/config"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/pubsub"
)

type kafkaPubSub struct {
	publisher  *wmkafka.Publisher
	subscriber *wmkafka.Subscriber
}

// NewPubSubFromConfig creates a Kafka pubsub bound to one consumer group.
func NewPubSubFromConfig(cfg *config.Configuration, log *logger.Logger, consumerGroup string) (pubsub.PubSub, error) {
	wmLogger := pubsub.NewWatermillLogger(log)
	saramaConfig := GetSaramaConfig(cfg)

	publisher, err := wmkafka.NewPublisher(
		wmkafka.PublisherConfig{
			Brokers:               cfg.Kafka.Brokers,
			Marshaler:             wmkafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaConfig,
		},
		wmLogger,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create kafka publisher").
			Mark(ierr.ErrSystem)
	}

	subscriber, err := wmkafka.NewSubscriber(
		wmkafka.SubscriberConfig{
			Brokers:               cfg.Kafka.Brokers,
			Unmarshaler:           wmkafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaConfig,
			ConsumerGroup:         consumerGroup,
		},
		wmLogger,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create kafka subscriber").
			Mark(ierr.ErrSystem)
	}

	return &kafkaPubSub{publisher: publisher, subscriber: subscriber}, nil
}

func (p *kafkaPubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	msg.SetContext(ctx)
	return p.publisher.Publish(topic, msg)
}

func (p *kafkaPubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.subscriber.Subscribe(ctx, topic)
}

func (p *kafkaPubSub) Close() error {
	if err := p.publisher.Close(); err != nil {
		return err
	}
	return p.subscriber.Close()
}
