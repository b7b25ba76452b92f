package httpdto

import (
	"time"

	"commons-chat/internal/store"
)

type StartDirectConversationRequest struct {
	UserID string `json:"user_id"`
}

type ConversationSummaryResponse struct {
	ID                  string     `json:"id"`
	Type                string     `json:"type"`
	CommunityID         string     `json:"community_id,omitempty"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`
	LastMessagePreview  string     `json:"last_message_preview,omitempty"`
	LastMessageSenderID string     `json:"last_message_sender_id,omitempty"`
	UnreadCount         int        `json:"unread_count"`
}

type ConversationListResponse struct {
	Conversations []ConversationSummaryResponse `json:"conversations"`
	NextCursor    *time.Time                    `json:"next_cursor,omitempty"`
	NextCursorID  string                        `json:"next_cursor_id,omitempty"`
}

func NewConversationSummaryResponse(s store.ConversationSummary) ConversationSummaryResponse {
	out := ConversationSummaryResponse{
		ID:                 s.ID.String(),
		Type:               s.Type,
		LastMessageAt:      s.LastMessageAt,
		LastMessagePreview: s.LastMessagePreview,
		UnreadCount:        s.UnreadCount,
	}
	if s.CommunityID != nil {
		out.CommunityID = s.CommunityID.String()
	}
	if s.LastMessageSenderID != nil {
		out.LastMessageSenderID = s.LastMessageSenderID.String()
	}
	return out
}
