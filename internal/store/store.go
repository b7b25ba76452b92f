package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"commons-chat/internal/domain"
)

// ConversationSummary is the projection used by conversation list views.
type ConversationSummary struct {
	ID                  uuid.UUID
	Type                string
	CommunityID         *uuid.UUID
	LastMessageAt       *time.Time
	LastMessagePreview  string
	LastMessageSenderID *uuid.UUID
	UnreadCount         int
}

// Store is the durable, authoritative record of conversations and messages.
// The messaging core treats it as a set of opaque remote procedures;
// authorization and row filtering are its responsibility. Every method is
// safe to retry: message creation is idempotent on the client-generated id
// and direct-conversation creation is idempotent on the participant pair.
type Store interface {
	// CreateMessage persists a message under its client-generated id. A
	// duplicate id returns the already-persisted row.
	CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)

	// UpdateMessage replaces the content of the caller's own message and
	// marks it edited. Editing another user's message fails with
	// ErrForbidden.
	UpdateMessage(ctx context.Context, messageID, senderID uuid.UUID, content string) (*domain.Message, error)

	// SoftDeleteMessage tombstones the caller's own message and returns
	// the tombstoned row.
	SoftDeleteMessage(ctx context.Context, messageID, senderID uuid.UUID) (*domain.Message, error)

	// GetMessages fetches the authoritative message list for a target,
	// tombstones included, oldest first.
	GetMessages(ctx context.Context, conversationID, communityID *uuid.UUID, limit int) ([]domain.Message, error)

	// GetOrCreateDirectConversation returns the unique direct conversation
	// between two users, creating it on first use.
	GetOrCreateDirectConversation(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error)

	// ListDirectConversations returns direct-conversation summaries for a
	// user, including per-conversation unread counts.
	ListDirectConversations(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error)

	// ListCommunityConversations returns community-conversation summaries
	// visible to a user.
	ListCommunityConversations(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error)

	// MarkConversationRead sets the participant's lastReadAt to now and
	// zeroes the unread counter. Idempotent.
	MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) error

	// UnreadCounts returns the authoritative unread counter per
	// conversation for a user.
	UnreadCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error)

	// CreateReport appends a message report in pending status.
	CreateReport(ctx context.Context, report *domain.MessageReport) error
}
