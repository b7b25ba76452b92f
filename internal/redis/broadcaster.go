package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broadcaster implements the channel transport on Redis pub/sub. Each
// Subscribe opens a dedicated PubSub so topics can be detached
// independently.
type Broadcaster struct {
	client *redis.Client
	log    *zap.Logger
}

func NewBroadcaster(client *redis.Client, log *zap.Logger) *Broadcaster {
	return &Broadcaster{client: client, log: log}
}

// Publish sends one frame on a topic, fire-and-forget from the caller's
// point of view.
func (b *Broadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

// Subscribe opens a subscription on a topic and pumps inbound frames to the
// handler. It returns once the server acknowledges the subscription; the
// returned cancel detaches it.
func (b *Broadcaster) Subscribe(ctx context.Context, topic string, handler func(topic string, payload []byte)) (func() error, error) {
	pubsub := b.client.Subscribe(ctx, topic)

	// Receive blocks until the subscribe acknowledgment arrives.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	go func() {
		for msg := range pubsub.Channel() {
			handler(msg.Channel, []byte(msg.Payload))
		}
	}()

	return pubsub.Close, nil
}
