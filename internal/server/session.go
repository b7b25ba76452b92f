package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commons-chat/internal/channels"
	"commons-chat/internal/config"
	"commons-chat/internal/events"
	"commons-chat/internal/inbox"
	"commons-chat/internal/readstate"
	"commons-chat/internal/store"
	"commons-chat/internal/typing"
)

// Session is the per-connection client state: the message cache, read-state
// tracker, typing watcher and outbound typing indicators. Everything in it
// is reconstructible from the durable store and dies with the connection.
type Session struct {
	ID     string
	UserID uuid.UUID

	registry  *channels.Registry
	cache     *inbox.Cache
	tracker   *readstate.Tracker
	watcher   *typing.Watcher
	typingCfg config.TypingConfig
	log       *zap.Logger

	mu sync.Mutex
	// forward pushes raw broadcast frames to the connected client. Guarded
	// by mu: frames can arrive from the transport while the client is still
	// being wired up.
	forward    func(payload []byte)
	indicators map[uuid.UUID]*typing.Indicator
}

func NewSession(userID uuid.UUID, registry *channels.Registry, st store.Store, typingCfg config.TypingConfig, log *zap.Logger) *Session {
	cache := inbox.NewCache(userID, log)
	return &Session{
		ID:         "conn-" + uuid.New().String(),
		UserID:     userID,
		registry:   registry,
		cache:      cache,
		tracker:    readstate.NewTracker(st, cache, log),
		watcher:    typing.NewWatcher(userID, typingCfg.IdleTimeout),
		typingCfg:  typingCfg,
		log:        log,
		indicators: make(map[uuid.UUID]*typing.Indicator),
	}
}

func (s *Session) SetForward(fn func(payload []byte)) {
	s.mu.Lock()
	s.forward = fn
	s.mu.Unlock()
}

func (s *Session) Cache() *inbox.Cache {
	return s.cache
}

func (s *Session) Tracker() *readstate.Tracker {
	return s.tracker
}

func (s *Session) Watcher() *typing.Watcher {
	return s.watcher
}

// SubscribeConversation opens the message and typing channels for a
// conversation, wiring inbound frames into the cache, the typing watcher
// and the client.
func (s *Session) SubscribeConversation(ctx context.Context, conversationID uuid.UUID) {
	msgTopic := events.ConversationMessagesTopic(conversationID)
	handle := s.registry.GetOrCreate(ctx, s.ID, msgTopic)
	handle.Attach(s.onMessageFrame)

	typingTopic := events.ConversationTypingTopic(conversationID)
	typingHandle := s.registry.GetOrCreate(ctx, s.ID, typingTopic)
	typingHandle.Attach(s.onTypingFrame)
}

// SubscribeCommunity opens the community-wide message channel.
func (s *Session) SubscribeCommunity(ctx context.Context, communityID uuid.UUID) {
	topic := events.CommunityMessagesTopic(communityID)
	handle := s.registry.GetOrCreate(ctx, s.ID, topic)
	handle.Attach(s.onMessageFrame)
}

// SubscribeUserFeed opens the user's conversation-update channel.
func (s *Session) SubscribeUserFeed(ctx context.Context) {
	topic := events.UserConversationsTopic(s.UserID)
	handle := s.registry.GetOrCreate(ctx, s.ID, topic)
	handle.Attach(s.onMessageFrame)
}

// UnsubscribeConversation tears down the conversation's channels.
func (s *Session) UnsubscribeConversation(conversationID uuid.UUID) {
	s.registry.Unsubscribe(s.ID, events.ConversationMessagesTopic(conversationID))
	s.registry.Unsubscribe(s.ID, events.ConversationTypingTopic(conversationID))

	s.mu.Lock()
	if ind, ok := s.indicators[conversationID]; ok {
		ind.Close()
		delete(s.indicators, conversationID)
	}
	s.mu.Unlock()
}

// UnsubscribeCommunity tears down the community channel.
func (s *Session) UnsubscribeCommunity(communityID uuid.UUID) {
	s.registry.Unsubscribe(s.ID, events.CommunityMessagesTopic(communityID))
}

// Indicator returns the outbound typing indicator for a conversation,
// creating it on first use.
func (s *Session) Indicator(conversationID uuid.UUID) *typing.Indicator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ind, ok := s.indicators[conversationID]; ok {
		return ind
	}
	ind := typing.NewIndicator(s.registry, s.ID, conversationID, s.UserID,
		s.typingCfg.DebounceInterval, s.typingCfg.IdleTimeout, s.log)
	s.indicators[conversationID] = ind
	return ind
}

// Close tears down every channel and timer owned by the session.
func (s *Session) Close() {
	s.registry.UnsubscribeAll(s.ID)
	s.watcher.Close()

	s.mu.Lock()
	for _, ind := range s.indicators {
		ind.Close()
	}
	s.indicators = make(map[uuid.UUID]*typing.Indicator)
	s.mu.Unlock()
}

func (s *Session) onMessageFrame(payload []byte) {
	if err := s.cache.Apply(payload); err != nil {
		s.log.Warn("inbound frame reconciliation failed", zap.Error(err))
	}
	if forward := s.forwardFn(); forward != nil {
		forward(payload)
	}
}

func (s *Session) onTypingFrame(payload []byte) {
	if err := s.watcher.Apply(payload); err != nil {
		s.log.Warn("inbound typing frame failed", zap.Error(err))
	}
	if forward := s.forwardFn(); forward != nil {
		forward(payload)
	}
}

func (s *Session) forwardFn() func(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forward
}
