package domain

import (
	"database/sql"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Message represents the messages table. The id is client-generated and
// globally unique; it doubles as the idempotency key for the optimistic
// broadcast + durable write pair. Exactly one of ConversationID/CommunityID
// is set. Deleted messages stay queryable for read-receipt bookkeeping but
// are excluded from previews and unread counts.
type Message struct {
	ID                uuid.UUID `gorm:"primaryKey"`
	ConversationID    uuid.NullUUID `gorm:"index"`
	CommunityID       uuid.NullUUID `gorm:"index"`
	SenderID          uuid.UUID
	Content           string
	IsEdited          bool
	IsDeleted         bool
	DeletedAt         sql.NullTime
	EncryptionVersion int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (Message) TableName() string {
	return "messages"
}

// Preview returns the content truncated for conversation summaries.
// Truncation happens on rune boundaries so the stored preview stays valid
// UTF-8.
func (m Message) Preview() string {
	const maxPreview = 120
	if utf8.RuneCountInString(m.Content) <= maxPreview {
		return m.Content
	}
	return string([]rune(m.Content)[:maxPreview])
}
