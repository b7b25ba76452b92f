package events_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commons-chat/internal/events"
)

func TestTopicNames(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	assert.Equal(t, fmt.Sprintf("conversation:%s:messages", id), events.ConversationMessagesTopic(id))
	assert.Equal(t, fmt.Sprintf("community:%s:messages", id), events.CommunityMessagesTopic(id))
	assert.Equal(t, fmt.Sprintf("user:%s:conversations", id), events.UserConversationsTopic(id))
	assert.Equal(t, fmt.Sprintf("conversation:%s:typing", id), events.ConversationTypingTopic(id))
}

func TestMessageTopicRequiresExactlyOneTarget(t *testing.T) {
	conversationID := uuid.New()
	communityID := uuid.New()

	topic, err := events.MessageTopic(&conversationID, nil)
	require.NoError(t, err)
	assert.Equal(t, events.ConversationMessagesTopic(conversationID), topic)

	topic, err = events.MessageTopic(nil, &communityID)
	require.NoError(t, err)
	assert.Equal(t, events.CommunityMessagesTopic(communityID), topic)

	_, err = events.MessageTopic(nil, nil)
	assert.Error(t, err)

	_, err = events.MessageTopic(&conversationID, &communityID)
	assert.Error(t, err)
}

func TestDecodeMessageEvent(t *testing.T) {
	conversationID := uuid.New()
	payload := events.MessagePayload{
		MessageID:      uuid.New(),
		SenderID:       uuid.New(),
		Content:        "hi",
		SentAt:         time.Now().UTC().Truncate(time.Millisecond),
		ConversationID: &conversationID,
	}
	frame, err := events.NewMessageEnvelope(events.EventMessageCreated, payload)
	require.NoError(t, err)

	ev, err := events.DecodeMessageEvent(frame)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, events.EventMessageCreated, ev.Event)
	assert.Equal(t, payload.MessageID, ev.Payload.MessageID)
	assert.Equal(t, payload.Content, ev.Payload.Content)
	require.NotNil(t, ev.Payload.ConversationID)
	assert.Equal(t, conversationID, *ev.Payload.ConversationID)
	assert.Nil(t, ev.Payload.CommunityID)
}

func TestDecodeMessageEventIgnoresForeignKinds(t *testing.T) {
	frame, err := events.NewTypingEnvelope(events.EventTypingStarted, events.TypingPayload{
		ConversationID: uuid.New(),
		UserID:         uuid.New(),
		IsTyping:       true,
		Timestamp:      time.Now(),
	})
	require.NoError(t, err)

	ev, err := events.DecodeMessageEvent(frame)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecodeTypingEvent(t *testing.T) {
	payload := events.TypingPayload{
		ConversationID: uuid.New(),
		UserID:         uuid.New(),
		IsTyping:       true,
		Timestamp:      time.Now().UTC().Truncate(time.Millisecond),
	}
	frame, err := events.NewTypingEnvelope(events.EventTypingStarted, payload)
	require.NoError(t, err)

	ev, err := events.DecodeTypingEvent(frame)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, events.EventTypingStarted, ev.Event)
	assert.Equal(t, payload.UserID, ev.Payload.UserID)
	assert.True(t, ev.Payload.IsTyping)
}

func TestDecodeTypingEventIgnoresForeignKinds(t *testing.T) {
	conversationID := uuid.New()
	frame, err := events.NewMessageEnvelope(events.EventMessageCreated, events.MessagePayload{
		MessageID:      uuid.New(),
		SenderID:       uuid.New(),
		Content:        "hi",
		SentAt:         time.Now(),
		ConversationID: &conversationID,
	})
	require.NoError(t, err)

	ev, err := events.DecodeTypingEvent(frame)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	_, err := events.DecodeMessageEvent([]byte("not json"))
	assert.Error(t, err)

	_, err = events.DecodeTypingEvent([]byte(`{"event":"typing.started","payload":"nope"}`))
	assert.Error(t, err)
}
