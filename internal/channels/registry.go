package channels

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Registry keeps one subscribed channel per (connection, topic) pair and
// hands the same handle to every caller. It is keyed by connection identity
// first so independent client connections never share channels.
type Registry struct {
	b   Broadcaster
	log *zap.Logger

	mu    sync.Mutex
	conns map[string]map[string]*Handle
}

func NewRegistry(b Broadcaster, log *zap.Logger) *Registry {
	return &Registry{
		b:     b,
		log:   log,
		conns: make(map[string]map[string]*Handle),
	}
}

// GetOrCreate returns the channel handle for (conn, topic), opening and
// subscribing a new one if none exists. The handle is returned immediately;
// it may still be in the subscribing state, and callers attach listeners
// before the subscribe acknowledgment arrives. Insertion happens under one
// lock, so interleaved calls for the same topic get the identical handle
// rather than racing to create duplicates. A handle stuck in the error
// state is resubscribed on access.
func (r *Registry) GetOrCreate(ctx context.Context, conn, topic string) *Handle {
	r.mu.Lock()
	topics, ok := r.conns[conn]
	if !ok {
		topics = make(map[string]*Handle)
		r.conns[conn] = topics
	}

	if h, ok := topics[topic]; ok && h.State() != StateClosed {
		r.mu.Unlock()
		h.retry(ctx)
		return h
	}

	h := newHandle(topic, r.b, r.log)
	h.state = StateSubscribing
	topics[topic] = h
	r.mu.Unlock()

	go h.subscribe(ctx)
	return h
}

// Unsubscribe closes the channel for (conn, topic) and drops it from the
// registry. No-op if absent.
func (r *Registry) Unsubscribe(conn, topic string) {
	r.mu.Lock()
	var h *Handle
	if topics, ok := r.conns[conn]; ok {
		h = topics[topic]
		delete(topics, topic)
		if len(topics) == 0 {
			delete(r.conns, conn)
		}
	}
	r.mu.Unlock()

	if h != nil {
		h.Close()
	}
}

// UnsubscribeAll closes every channel owned by the connection. Used on
// logout and connection teardown.
func (r *Registry) UnsubscribeAll(conn string) {
	r.mu.Lock()
	topics := r.conns[conn]
	delete(r.conns, conn)
	r.mu.Unlock()

	for _, h := range topics {
		h.Close()
	}
}

// ChannelCount reports the number of open channels for a connection.
func (r *Registry) ChannelCount(conn string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[conn])
}
