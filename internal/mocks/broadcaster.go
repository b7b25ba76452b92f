package mocks

import (
	"context"
	"sync"
	"time"
)

type memorySub struct {
	topic   string
	handler func(topic string, payload []byte)
}

// MemoryBroadcaster is a synchronous in-memory channel transport for tests.
// SubscribeDelay simulates the subscribe acknowledgment round trip;
// SubscribeErr and PublishErr inject transport failures.
type MemoryBroadcaster struct {
	mu   sync.Mutex
	subs []*memorySub

	SubscribeDelay time.Duration
	SubscribeErr   error
	PublishErr     error

	published [][]byte
}

func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{}
}

func (b *MemoryBroadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	if b.PublishErr != nil {
		err := b.PublishErr
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, payload)
	subs := make([]*memorySub, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic == topic {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(topic, payload)
	}
	return nil
}

func (b *MemoryBroadcaster) Subscribe(ctx context.Context, topic string, handler func(topic string, payload []byte)) (func() error, error) {
	if b.SubscribeDelay > 0 {
		select {
		case <-time.After(b.SubscribeDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SubscribeErr != nil {
		return nil, b.SubscribeErr
	}

	sub := &memorySub{topic: topic, handler: handler}
	b.subs = append(b.subs, sub)

	cancel := func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		return nil
	}
	return cancel, nil
}

// SubscriberCount reports active subscriptions for a topic.
func (b *MemoryBroadcaster) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if s.topic == topic {
			n++
		}
	}
	return n
}

// Published returns every frame published so far.
func (b *MemoryBroadcaster) Published() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.published))
	copy(out, b.published)
	return out
}
