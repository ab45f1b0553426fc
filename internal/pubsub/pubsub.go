package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher publishes messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

// Subscriber consumes messages from a topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// PubSub combines publishing and subscribing over one transport.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}
