package readstate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commons-chat/internal/auth"
	"commons-chat/internal/inbox"
	"commons-chat/internal/store"
)

// Tracker maintains the caller's read position and unread counters for one
// connection. The local counters live in the inbox cache as optimistic
// approximations; Refresh overwrites them with authoritative values from
// the store.
type Tracker struct {
	store store.Store
	cache *inbox.Cache
	log   *zap.Logger

	mu       sync.Mutex
	lastRead map[uuid.UUID]time.Time
}

func NewTracker(st store.Store, cache *inbox.Cache, log *zap.Logger) *Tracker {
	return &Tracker{
		store:    st,
		cache:    cache,
		log:      log,
		lastRead: make(map[uuid.UUID]time.Time),
	}
}

// MarkAsRead sets lastReadAt to now and zeroes the conversation's unread
// counter, locally and in the durable store, as one logical operation.
// Idempotent: a repeat call with nothing unread since is a no-op.
func (t *Tracker) MarkAsRead(ctx context.Context, conversationID uuid.UUID) error {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return err
	}

	target := inbox.Target{Kind: inbox.TargetConversation, ID: conversationID}

	t.mu.Lock()
	_, alreadyMarked := t.lastRead[conversationID]
	t.mu.Unlock()
	if alreadyMarked && t.cache.Unread(target) == 0 {
		return nil
	}

	if err := t.store.MarkConversationRead(ctx, conversationID, userID); err != nil {
		return err
	}
	t.cache.ResetUnread(target)

	t.mu.Lock()
	t.lastRead[conversationID] = time.Now()
	t.mu.Unlock()

	t.log.Debug("conversation marked read",
		zap.String("conversation_id", conversationID.String()),
		zap.String("user_id", userID.String()))
	return nil
}

// LastReadAt returns the local read position for a conversation, zero time
// if never marked on this connection.
func (t *Tracker) LastReadAt(conversationID uuid.UUID) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRead[conversationID]
}

// Refresh replaces the local unread counters with the store's authoritative
// values, correcting any drift the optimistic increments accumulated.
func (t *Tracker) Refresh(ctx context.Context) error {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return err
	}

	counts, err := t.store.UnreadCounts(ctx, userID)
	if err != nil {
		return err
	}
	for conversationID, n := range counts {
		t.cache.SetUnread(inbox.Target{Kind: inbox.TargetConversation, ID: conversationID}, n)
	}
	return nil
}
