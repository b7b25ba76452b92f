package events

import (
	"fmt"

	"github.com/google/uuid"
)

// Topic names are a stable contract across client versions.
const (
	topicConversationMessages = "conversation:%s:messages"
	topicCommunityMessages    = "community:%s:messages"
	topicUserConversations    = "user:%s:conversations"
	topicConversationTyping   = "conversation:%s:typing"
)

// ConversationMessagesTopic is the per-conversation message stream.
func ConversationMessagesTopic(conversationID uuid.UUID) string {
	return fmt.Sprintf(topicConversationMessages, conversationID)
}

// CommunityMessagesTopic is the community-wide message stream.
func CommunityMessagesTopic(communityID uuid.UUID) string {
	return fmt.Sprintf(topicCommunityMessages, communityID)
}

// UserConversationsTopic carries conversation-level updates for one user.
func UserConversationsTopic(userID uuid.UUID) string {
	return fmt.Sprintf(topicUserConversations, userID)
}

// ConversationTypingTopic is the ephemeral typing stream for a conversation.
func ConversationTypingTopic(conversationID uuid.UUID) string {
	return fmt.Sprintf(topicConversationTyping, conversationID)
}

// MessageTopic resolves the message stream for a target. Exactly one of the
// ids must be non-nil.
func MessageTopic(conversationID, communityID *uuid.UUID) (string, error) {
	switch {
	case conversationID != nil && communityID == nil:
		return ConversationMessagesTopic(*conversationID), nil
	case communityID != nil && conversationID == nil:
		return CommunityMessagesTopic(*communityID), nil
	default:
		return "", fmt.Errorf("message topic requires exactly one target")
	}
}
