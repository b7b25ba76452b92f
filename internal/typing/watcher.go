package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"commons-chat/internal/events"
)

// Watcher tracks who is typing in which conversation from inbound typing
// events. Each (conversation, user) entry expires after the timeout even
// when no stopped event arrives, which covers dropped connections.
// Self-originated events are ignored.
type Watcher struct {
	self    uuid.UUID
	timeout time.Duration

	mu     sync.Mutex
	active map[uuid.UUID]map[uuid.UUID]*time.Timer
	closed bool
}

func NewWatcher(self uuid.UUID, timeout time.Duration) *Watcher {
	return &Watcher{
		self:    self,
		timeout: timeout,
		active:  make(map[uuid.UUID]map[uuid.UUID]*time.Timer),
	}
}

// Apply reconciles one inbound frame from a typing topic. Non-typing frames
// are ignored.
func (w *Watcher) Apply(data []byte) error {
	ev, err := events.DecodeTypingEvent(data)
	if err != nil {
		return err
	}
	if ev == nil || ev.Payload.UserID == w.self {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	conversationID := ev.Payload.ConversationID
	userID := ev.Payload.UserID

	if ev.Event == events.EventTypingStopped {
		w.removeLocked(conversationID, userID)
		return nil
	}

	users, ok := w.active[conversationID]
	if !ok {
		users = make(map[uuid.UUID]*time.Timer)
		w.active[conversationID] = users
	}
	if timer, ok := users[userID]; ok {
		timer.Stop()
	}
	users[userID] = time.AfterFunc(w.timeout, func() {
		w.expire(conversationID, userID)
	})
	return nil
}

// TypingUsers returns the users currently typing in a conversation, in a
// stable order.
func (w *Watcher) TypingUsers(conversationID uuid.UUID) []uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()

	users := make([]uuid.UUID, 0, len(w.active[conversationID]))
	for userID := range w.active[conversationID] {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].String() < users[j].String()
	})
	return users
}

// Close cancels every pending expiration so teardown is deterministic.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, users := range w.active {
		for _, timer := range users {
			timer.Stop()
		}
	}
	w.active = make(map[uuid.UUID]map[uuid.UUID]*time.Timer)
	w.closed = true
}

func (w *Watcher) expire(conversationID, userID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(conversationID, userID)
}

func (w *Watcher) removeLocked(conversationID, userID uuid.UUID) {
	users, ok := w.active[conversationID]
	if !ok {
		return
	}
	if timer, ok := users[userID]; ok {
		timer.Stop()
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(w.active, conversationID)
	}
}
