package testutil

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/meterline/meterline/internal/pubsub"
)

// InMemoryPubSub implements pubsub.PubSub for tests. Published messages are
// captured per topic for assertions and fanned out to subscribers.
type InMemoryPubSub struct {
	mu          sync.Mutex
	published   map[string][]*message.Message
	subscribers map[string][]chan *message.Message
	closed      bool
}

var _ pubsub.PubSub = (*InMemoryPubSub)(nil)

func NewInMemoryPubSub() *InMemoryPubSub {
	return &InMemoryPubSub{
		published:   make(map[string][]*message.Message),
		subscribers: make(map[string][]chan *message.Message),
	}
}

func (p *InMemoryPubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	msg.SetContext(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[topic] = append(p.published[topic], msg)
	for _, ch := range p.subscribers[topic] {
		ch <- msg
	}
	return nil
}

func (p *InMemoryPubSub) Subscribe(_ context.Context, topic string) (<-chan *message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan *message.Message, 64)
	p.subscribers[topic] = append(p.subscribers[topic], ch)
	return ch, nil
}

func (p *InMemoryPubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, chans := range p.subscribers {
		for _, ch := range chans {
			close(ch)
		}
	}
	return nil
}

// Published returns the messages published to a topic so far.
func (p *InMemoryPubSub) Published(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*message.Message, len(p.published[topic]))
	copy(out, p.published[topic])
	return out
}
