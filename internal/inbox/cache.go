package inbox

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commons-chat/internal/events"
)

const (
	seenTTL     = 10 * time.Minute
	seenMaxSize = 4096
)

// TargetKind distinguishes direct-conversation streams from community-wide
// streams.
type TargetKind int

const (
	TargetConversation TargetKind = iota
	TargetCommunity
)

// Target identifies the message stream an event belongs to.
type Target struct {
	Kind TargetKind
	ID   uuid.UUID
}

// TargetFor derives the stream target from a message payload.
func TargetFor(p events.MessagePayload) (Target, error) {
	switch {
	case p.ConversationID != nil:
		return Target{Kind: TargetConversation, ID: *p.ConversationID}, nil
	case p.CommunityID != nil:
		return Target{Kind: TargetCommunity, ID: *p.CommunityID}, nil
	default:
		return Target{}, fmt.Errorf("message payload has no target")
	}
}

// Message is the client-side projection of one message. Provisional entries
// came in over broadcast and have not yet been confirmed by an
// authoritative fetch.
type Message struct {
	ID          uuid.UUID
	SenderID    uuid.UUID
	Content     string
	SentAt      time.Time
	IsEdited    bool
	IsDeleted   bool
	Provisional bool
}

// Cache holds the per-connection projection of message streams and unread
// counters. Events are applied in arrival order per channel; no ordering is
// assumed across channels. The cache is reconstructible from the durable
// store at any time and lives only as long as the connection.
type Cache struct {
	self uuid.UUID
	log  *zap.Logger

	mu          sync.Mutex
	seen        *seenCache
	streams     map[Target][]Message
	unread      map[Target]int
	totalUnread int
}

func NewCache(self uuid.UUID, log *zap.Logger) *Cache {
	return &Cache{
		self:    self,
		log:     log,
		seen:    newSeenCache(seenTTL, seenMaxSize),
		streams: make(map[Target][]Message),
		unread:  make(map[Target]int),
	}
}

// Apply reconciles one inbound broadcast frame into the cache. Frames that
// are not message events are ignored. The event kinds are switched
// exhaustively; an unknown message event kind is a decode-level concern and
// never reaches here.
func (c *Cache) Apply(data []byte) error {
	ev, err := events.DecodeMessageEvent(data)
	if err != nil {
		return err
	}
	if ev == nil {
		return nil
	}

	target, err := TargetFor(ev.Payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Event {
	case events.EventMessageCreated:
		c.applyCreated(target, ev.Payload)
	case events.EventMessageUpdated:
		c.applyUpdated(target, ev.Payload)
	case events.EventMessageDeleted:
		c.applyDeleted(target, ev.Payload)
	}
	return nil
}

func (c *Cache) applyCreated(target Target, p events.MessagePayload) {
	if c.seen.checkAndMark(p.MessageID.String()) {
		return
	}

	c.streams[target] = append(c.streams[target], Message{
		ID:          p.MessageID,
		SenderID:    p.SenderID,
		Content:     p.Content,
		SentAt:      p.SentAt,
		Provisional: true,
	})

	if p.SenderID != c.self {
		c.unread[target]++
		c.totalUnread++
	}
}

func (c *Cache) applyUpdated(target Target, p events.MessagePayload) {
	stream := c.streams[target]
	for i := range stream {
		if stream[i].ID == p.MessageID {
			stream[i].Content = p.Content
			stream[i].IsEdited = true
			return
		}
	}
}

// applyDeleted tombstones the message instead of dropping it, so
// read-receipt bookkeeping can still find it. Unread counters are left
// untouched; the next authoritative refresh corrects any drift, since the
// store excludes deleted rows from its counts.
func (c *Cache) applyDeleted(target Target, p events.MessagePayload) {
	stream := c.streams[target]
	for i := range stream {
		if stream[i].ID == p.MessageID {
			stream[i].IsDeleted = true
			stream[i].Content = ""
			return
		}
	}
}

// Messages returns a copy of the cached stream for a target, tombstones
// included.
func (c *Cache) Messages(target Target) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.streams[target]))
	copy(out, c.streams[target])
	return out
}

// Unread returns the optimistic unread counter for a target.
func (c *Cache) Unread(target Target) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread[target]
}

// TotalUnread returns the aggregate unread counter across all targets.
func (c *Cache) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalUnread
}

// ResetUnread zeroes the counter for a target, e.g. after mark-as-read.
func (c *Cache) ResetUnread(target Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalUnread -= c.unread[target]
	c.unread[target] = 0
}

// SetUnread overwrites a counter with an authoritative value from the
// store, correcting optimistic drift.
func (c *Cache) SetUnread(target Target, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalUnread += n - c.unread[target]
	c.unread[target] = n
}

// ReconcileFetched replaces a stream with the result of an authoritative
// read. Provisional entries whose ids the store does not know are dropped
// here; confirmed entries lose their provisional flag.
func (c *Cache) ReconcileFetched(target Target, msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream := make([]Message, len(msgs))
	copy(stream, msgs)
	for i := range stream {
		stream[i].Provisional = false
		c.seen.checkAndMark(stream[i].ID.String())
	}
	c.streams[target] = stream
}
