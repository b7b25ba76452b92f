package typing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commons-chat/internal/channels"
	"commons-chat/internal/events"
)

// Indicator publishes the caller's typing state for one conversation.
// Outbound events are debounced to a minimum interval, and a stopped event
// is scheduled automatically after the idle timeout; new activity cancels
// and reschedules the pending auto-stop.
type Indicator struct {
	registry       *channels.Registry
	conn           string
	conversationID uuid.UUID
	userID         uuid.UUID
	minInterval    time.Duration
	idleTimeout    time.Duration
	log            *zap.Logger

	mu        sync.Mutex
	lastSent  time.Time
	stopTimer *time.Timer
	closed    bool
}

func NewIndicator(registry *channels.Registry, conn string, conversationID, userID uuid.UUID, minInterval, idleTimeout time.Duration, log *zap.Logger) *Indicator {
	return &Indicator{
		registry:       registry,
		conn:           conn,
		conversationID: conversationID,
		userID:         userID,
		minInterval:    minInterval,
		idleTimeout:    idleTimeout,
		log:            log,
	}
}

// Touch records typing activity: it sends a started event unless one went
// out within the debounce interval, and pushes the auto-stop out by the
// idle timeout.
func (t *Indicator) Touch(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	if t.stopTimer != nil {
		t.stopTimer.Stop()
	}
	t.stopTimer = time.AfterFunc(t.idleTimeout, t.autoStop)

	shouldSend := time.Since(t.lastSent) >= t.minInterval
	if shouldSend {
		t.lastSent = time.Now()
	}
	t.mu.Unlock()

	if shouldSend {
		t.publish(ctx, true)
	}
}

// Stop sends an explicit stopped event and cancels any pending auto-stop.
func (t *Indicator) Stop(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if t.stopTimer != nil {
		t.stopTimer.Stop()
		t.stopTimer = nil
	}
	t.lastSent = time.Time{}
	t.mu.Unlock()

	t.publish(ctx, false)
}

// Close cancels the pending auto-stop without publishing anything, so
// component teardown is deterministic.
func (t *Indicator) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopTimer != nil {
		t.stopTimer.Stop()
		t.stopTimer = nil
	}
	t.closed = true
}

func (t *Indicator) autoStop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.stopTimer = nil
	t.lastSent = time.Time{}
	t.mu.Unlock()

	t.publish(context.Background(), false)
}

// publish is fire-and-forget: typing is a lossy, low-stakes signal.
func (t *Indicator) publish(ctx context.Context, started bool) {
	event := events.EventTypingStopped
	if started {
		event = events.EventTypingStarted
	}
	frame, err := events.NewTypingEnvelope(event, events.TypingPayload{
		ConversationID: t.conversationID,
		UserID:         t.userID,
		IsTyping:       started,
		Timestamp:      time.Now(),
	})
	if err != nil {
		t.log.Warn("typing envelope encode failed", zap.Error(err))
		return
	}

	topic := events.ConversationTypingTopic(t.conversationID)
	handle := t.registry.GetOrCreate(ctx, t.conn, topic)
	if err := handle.Publish(ctx, frame); err != nil {
		t.log.Debug("typing publish failed",
			zap.String("topic", topic),
			zap.Error(err))
	}
}
