// Package memory provides an in-process pubsub backed by watermill's
// gochannel transport. It is used in tests and single-node deployments.
package memory

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/pubsub"
)

type memoryPubSub struct {
	channel *gochannel.GoChannel
}

// NewPubSub creates an in-memory pubsub.
func NewPubSub(log *logger.Logger) pubsub.PubSub {
	return &memoryPubSub{
		channel: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			pubsub.NewWatermillLogger(log),
		),
	}
}

func (p *memoryPubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	msg.SetContext(ctx)
	return p.channel.Publish(topic, msg)
}

func (p *memoryPubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.channel.Subscribe(ctx, topic)
}

func (p *memoryPubSub) Close() error {
	return p.channel.Close()
}
