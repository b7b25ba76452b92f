package httpdto

import (
	"time"

	"commons-chat/internal/domain"
)

type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	CommunityID    string `json:"community_id"`
	Content        string `json:"content"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type ReportMessageRequest struct {
	Reason string `json:"reason"`
}

type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CommunityID    string    `json:"community_id,omitempty"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	IsEdited       bool      `json:"is_edited"`
	IsDeleted      bool      `json:"is_deleted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewMessageResponse(msg *domain.Message) MessageResponse {
	out := MessageResponse{
		ID:        msg.ID.String(),
		SenderID:  msg.SenderID.String(),
		Content:   msg.Content,
		IsEdited:  msg.IsEdited,
		IsDeleted: msg.IsDeleted,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}
	if msg.ConversationID.Valid {
		out.ConversationID = msg.ConversationID.UUID.String()
	}
	if msg.CommunityID.Valid {
		out.CommunityID = msg.CommunityID.UUID.String()
	}
	return out
}
