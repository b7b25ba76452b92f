package channels

import (
	"context"
	"sync"

	"go.uber.org/zap"

	chat_errors "commons-chat/pkg/errors"
)

// State is the lifecycle state of a channel handle.
type State int32

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateSubscribed
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Broadcaster is the transport a channel handle rides on. Subscribe returns
// a cancel func that detaches the transport subscription.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler func(topic string, payload []byte)) (cancel func() error, err error)
}

// Handle is one subscribed channel for a (connection, topic) pair. Listener
// attachment is decoupled from the transport subscription: callers may
// Attach before the subscribe acknowledgment arrives and still receive
// every frame dispatched after it.
type Handle struct {
	topic string
	b     Broadcaster
	log   *zap.Logger

	mu        sync.Mutex
	state     State
	listeners []func(payload []byte)
	cancel    func() error
}

func newHandle(topic string, b Broadcaster, log *zap.Logger) *Handle {
	return &Handle{topic: topic, b: b, log: log, state: StateUnsubscribed}
}

func (h *Handle) Topic() string {
	return h.topic
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Attach registers a listener for inbound frames on this channel.
func (h *Handle) Attach(fn func(payload []byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Publish sends a frame on this channel's topic.
func (h *Handle) Publish(ctx context.Context, payload []byte) error {
	h.mu.Lock()
	closed := h.state == StateClosed
	h.mu.Unlock()
	if closed {
		return chat_errors.ErrChannelClosed
	}
	return h.b.Publish(ctx, h.topic, payload)
}

func (h *Handle) dispatch(payload []byte) {
	h.mu.Lock()
	listeners := make([]func([]byte), len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(payload)
	}
}

// subscribe performs the transport subscribe round trip. Runs on its own
// goroutine. A handle closed while the subscribe was in flight is torn down
// immediately instead of being left dangling.
func (h *Handle) subscribe(ctx context.Context) {
	cancel, err := h.b.Subscribe(ctx, h.topic, func(_ string, payload []byte) {
		h.dispatch(payload)
	})

	h.mu.Lock()
	if err != nil {
		if h.state != StateClosed {
			h.state = StateError
		}
		h.mu.Unlock()
		h.log.Warn("channel subscribe failed",
			zap.String("topic", h.topic),
			zap.Error(err))
		return
	}

	if h.state == StateClosed {
		h.mu.Unlock()
		if cerr := cancel(); cerr != nil {
			h.log.Warn("cancel of late subscribe failed",
				zap.String("topic", h.topic),
				zap.Error(cerr))
		}
		return
	}

	h.cancel = cancel
	h.state = StateSubscribed
	h.mu.Unlock()
}

// retry relaunches the subscribe after a transport error. No-op unless the
// handle is in the error state.
func (h *Handle) retry(ctx context.Context) {
	h.mu.Lock()
	if h.state != StateError {
		h.mu.Unlock()
		return
	}
	h.state = StateSubscribing
	h.mu.Unlock()

	go h.subscribe(ctx)
}

// Close detaches the transport subscription and makes the handle terminal.
// Safe to call in any state, including while a subscribe is in flight.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return
	}
	cancel := h.cancel
	h.cancel = nil
	h.state = StateClosed
	h.listeners = nil
	h.mu.Unlock()

	if cancel != nil {
		if err := cancel(); err != nil {
			h.log.Warn("channel unsubscribe failed",
				zap.String("topic", h.topic),
				zap.Error(err))
		}
	}
}
