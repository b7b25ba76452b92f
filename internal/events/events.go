package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event type constants follow the format: domain.action
const (
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventMessageDeleted = "message.deleted"

	EventTypingStarted = "typing.started"
	EventTypingStopped = "typing.stopped"
)

// Envelope is the broadcast wire format. The envelope shape and the topic
// names are a stable contract across client versions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// MessagePayload is the payload for message.* events. Exactly one of
// ConversationID/CommunityID is set, matching the message's target.
type MessagePayload struct {
	MessageID      uuid.UUID  `json:"messageId"`
	SenderID       uuid.UUID  `json:"senderId"`
	Content        string     `json:"content"`
	SentAt         time.Time  `json:"sentAt"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	CommunityID    *uuid.UUID `json:"communityId,omitempty"`
}

// TypingPayload is the payload for typing.* events. Never persisted.
type TypingPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
	IsTyping       bool      `json:"isTyping"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessageEvent is a decoded message.* envelope.
type MessageEvent struct {
	Event   string
	Payload MessagePayload
}

// TypingEvent is a decoded typing.* envelope.
type TypingEvent struct {
	Event   string
	Payload TypingPayload
}

// NewMessageEnvelope encodes a message event for broadcast.
func NewMessageEnvelope(event string, payload MessagePayload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal message payload: %w", err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// NewTypingEnvelope encodes a typing event for broadcast.
func NewTypingEnvelope(event string, payload TypingPayload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal typing payload: %w", err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// DecodeMessageEvent decodes a broadcast frame into a message event.
// Returns (nil, nil) for event kinds that are not message.* so callers can
// ignore wildcard traffic without treating it as an error.
func DecodeMessageEvent(data []byte) (*MessageEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Event {
	case EventMessageCreated, EventMessageUpdated, EventMessageDeleted:
		var payload MessagePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
		return &MessageEvent{Event: env.Event, Payload: payload}, nil
	default:
		return nil, nil
	}
}

// DecodeTypingEvent decodes a broadcast frame into a typing event.
// Returns (nil, nil) for non-typing events.
func DecodeTypingEvent(data []byte) (*TypingEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Event {
	case EventTypingStarted, EventTypingStopped:
		var payload TypingPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
		return &TypingEvent{Event: env.Event, Payload: payload}, nil
	default:
		return nil, nil
	}
}
