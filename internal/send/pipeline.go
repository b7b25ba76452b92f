package send

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commons-chat/internal/auth"
	"commons-chat/internal/channels"
	"commons-chat/internal/domain"
	"commons-chat/internal/events"
	"commons-chat/internal/store"
	chat_errors "commons-chat/pkg/errors"
)

// Status is the tagged state of a send: the optimistic broadcast has fired
// when the durable write is still in flight (pending), then the write
// either confirms or fails. Receivers of a broadcast for a failed send hold
// a provisional message until the next authoritative fetch corrects it.
type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Input names the target and content of a send. Exactly one of
// ConversationID/CommunityID must be set.
type Input struct {
	ConversationID *uuid.UUID
	CommunityID    *uuid.UUID
	Content        string
}

func (in Input) validate() error {
	if (in.ConversationID == nil) == (in.CommunityID == nil) {
		return chat_errors.ErrAmbiguousTarget
	}
	if in.Content == "" {
		return chat_errors.ErrInvalidInput
	}
	return nil
}

// Result reports the outcome of a send.
type Result struct {
	MessageID uuid.UUID
	Status    Status
	Message   *domain.Message
}

// Pipeline makes message creation feel instantaneous: it broadcasts an
// optimistic message.created event fire-and-forget, then performs the
// durable write with the same client-generated id. The durable write is the
// authoritative path; broadcast failures are logged, never surfaced.
type Pipeline struct {
	registry *channels.Registry
	store    store.Store
	log      *zap.Logger
}

func NewPipeline(registry *channels.Registry, st store.Store, log *zap.Logger) *Pipeline {
	return &Pipeline{registry: registry, store: st, log: log}
}

// Send delivers one message on behalf of the authenticated user over the
// given connection. Input and auth violations fail before any I/O.
func (p *Pipeline) Send(ctx context.Context, conn string, in Input) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	senderID, err := auth.UserID(ctx)
	if err != nil {
		return Result{}, err
	}

	messageID := uuid.New()
	sentAt := time.Now()

	topic, err := events.MessageTopic(in.ConversationID, in.CommunityID)
	if err != nil {
		return Result{}, chat_errors.ErrAmbiguousTarget
	}
	handle := p.registry.GetOrCreate(ctx, conn, topic)

	frame, err := events.NewMessageEnvelope(events.EventMessageCreated, events.MessagePayload{
		MessageID:      messageID,
		SenderID:       senderID,
		Content:        in.Content,
		SentAt:         sentAt,
		ConversationID: in.ConversationID,
		CommunityID:    in.CommunityID,
	})
	if err != nil {
		return Result{}, err
	}
	if err := handle.Publish(ctx, frame); err != nil {
		p.log.Warn("optimistic broadcast failed",
			zap.String("topic", topic),
			zap.String("message_id", messageID.String()),
			zap.Error(err))
	}

	msg := &domain.Message{
		ID:       messageID,
		SenderID: senderID,
		Content:  in.Content,
	}
	if in.ConversationID != nil {
		msg.ConversationID = uuid.NullUUID{UUID: *in.ConversationID, Valid: true}
	}
	if in.CommunityID != nil {
		msg.CommunityID = uuid.NullUUID{UUID: *in.CommunityID, Valid: true}
	}

	persisted, err := p.store.CreateMessage(ctx, msg)
	if err != nil {
		// The broadcast may already have reached subscribers; they hold the
		// id as provisional until an authoritative read reconciles it.
		return Result{MessageID: messageID, Status: StatusFailed}, err
	}
	return Result{MessageID: messageID, Status: StatusConfirmed, Message: persisted}, nil
}

// Edit replaces the caller's message content in the store, then broadcasts
// message.updated so subscriber caches replace it in place.
func (p *Pipeline) Edit(ctx context.Context, conn string, messageID uuid.UUID, content string) (*domain.Message, error) {
	if content == "" {
		return nil, chat_errors.ErrInvalidInput
	}
	senderID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := p.store.UpdateMessage(ctx, messageID, senderID, content)
	if err != nil {
		return nil, err
	}

	p.broadcastMutation(ctx, conn, events.EventMessageUpdated, msg)
	return msg, nil
}

// Delete tombstones the caller's message, then broadcasts message.deleted.
func (p *Pipeline) Delete(ctx context.Context, conn string, messageID uuid.UUID) error {
	senderID, err := auth.UserID(ctx)
	if err != nil {
		return err
	}
	msg, err := p.store.SoftDeleteMessage(ctx, messageID, senderID)
	if err != nil {
		return err
	}

	p.broadcastMutation(ctx, conn, events.EventMessageDeleted, msg)
	return nil
}

func (p *Pipeline) broadcastMutation(ctx context.Context, conn, event string, msg *domain.Message) {
	payload := events.MessagePayload{
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		SentAt:    msg.CreatedAt,
	}
	if msg.ConversationID.Valid {
		id := msg.ConversationID.UUID
		payload.ConversationID = &id
	}
	if msg.CommunityID.Valid {
		id := msg.CommunityID.UUID
		payload.CommunityID = &id
	}

	topic, err := events.MessageTopic(payload.ConversationID, payload.CommunityID)
	if err != nil {
		p.log.Warn("mutation broadcast skipped, no target",
			zap.String("message_id", msg.ID.String()))
		return
	}

	frame, err := events.NewMessageEnvelope(event, payload)
	if err != nil {
		p.log.Warn("mutation broadcast encode failed", zap.Error(err))
		return
	}
	handle := p.registry.GetOrCreate(ctx, conn, topic)
	if err := handle.Publish(ctx, frame); err != nil {
		p.log.Warn("mutation broadcast failed",
			zap.String("topic", topic),
			zap.Error(err))
	}
}
