package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Conversation types
const (
	ConversationTypeDirect    = "DIRECT"
	ConversationTypeCommunity = "COMMUNITY"
)

// Conversation represents the conversations table. DirectKey is the sorted
// user-id pair for direct conversations and carries a unique index, making
// direct-conversation creation idempotent at the store level.
type Conversation struct {
	ID                  uuid.UUID `gorm:"primaryKey"`
	Type                string
	CommunityID         uuid.NullUUID
	DirectKey           sql.NullString `gorm:"uniqueIndex"`
	LastMessageAt       sql.NullTime
	LastMessagePreview  sql.NullString
	LastMessageSenderID uuid.NullUUID
	CreatedAt           time.Time
	UpdatedAt           time.Time

	// Relationships
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID"`
}

// ConversationParticipant represents the conversation_participants table.
// UnreadCount tracks non-deleted messages from other senders newer than
// LastReadAt; it is maintained incrementally and corrected by recount.
type ConversationParticipant struct {
	ConversationID uuid.UUID `gorm:"primaryKey"`
	UserID         uuid.UUID `gorm:"primaryKey"`
	JoinedAt       time.Time
	LastReadAt     sql.NullTime
	UnreadCount    int
}

func (Conversation) TableName() string {
	return "conversations"
}

func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// DirectKey builds the canonical key for a direct conversation between two
// users, identical regardless of argument order.
func DirectKeyFor(a, b uuid.UUID) string {
	if a.String() < b.String() {
		return a.String() + ":" + b.String()
	}
	return b.String() + ":" + a.String()
}
