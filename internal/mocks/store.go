package mocks

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"commons-chat/internal/domain"
	"commons-chat/internal/store"
	chat_errors "commons-chat/pkg/errors"
)

// MemoryStore is an in-memory store.Store with the same semantics as the
// Postgres implementation: idempotent message creation, monotonic
// last-message projection, per-participant unread counters.
// CreateMessageErr injects a durable-write failure.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*domain.Conversation
	directKeys    map[string]uuid.UUID
	participants  map[uuid.UUID]map[uuid.UUID]*domain.ConversationParticipant
	messages      map[uuid.UUID]*domain.Message
	order         []uuid.UUID
	reports       []domain.MessageReport

	CreateMessageErr error
	MarkReadCalls    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*domain.Conversation),
		directKeys:    make(map[string]uuid.UUID),
		participants:  make(map[uuid.UUID]map[uuid.UUID]*domain.ConversationParticipant),
		messages:      make(map[uuid.UUID]*domain.Message),
	}
}

// AddCommunityConversation seeds a community conversation.
func (s *MemoryStore) AddCommunityConversation(communityID uuid.UUID, members ...uuid.UUID) *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := &domain.Conversation{
		ID:          uuid.New(),
		Type:        domain.ConversationTypeCommunity,
		CommunityID: uuid.NullUUID{UUID: communityID, Valid: true},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.conversations[conv.ID] = conv
	s.participants[conv.ID] = make(map[uuid.UUID]*domain.ConversationParticipant)
	for _, m := range members {
		s.participants[conv.ID][m] = &domain.ConversationParticipant{
			ConversationID: conv.ID,
			UserID:         m,
			JoinedAt:       now,
		}
	}
	return conv
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateMessageErr != nil {
		return nil, s.CreateMessageErr
	}
	if existing, ok := s.messages[msg.ID]; ok {
		out := *existing
		return &out, nil
	}

	now := time.Now()
	stored := *msg
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.messages[stored.ID] = &stored
	s.order = append(s.order, stored.ID)

	if stored.ConversationID.Valid {
		convID := stored.ConversationID.UUID
		if conv, ok := s.conversations[convID]; ok {
			if !conv.LastMessageAt.Valid || !conv.LastMessageAt.Time.After(now) {
				conv.LastMessageAt = sql.NullTime{Time: now, Valid: true}
				conv.LastMessagePreview = sql.NullString{String: stored.Preview(), Valid: true}
				conv.LastMessageSenderID = uuid.NullUUID{UUID: stored.SenderID, Valid: true}
				conv.UpdatedAt = now
			}
		}
		for userID, p := range s.participants[convID] {
			if userID != stored.SenderID {
				p.UnreadCount++
			}
		}
	}

	out := stored
	return &out, nil
}

func (s *MemoryStore) UpdateMessage(ctx context.Context, messageID, senderID uuid.UUID, content string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, chat_errors.ErrNotFound
	}
	if msg.SenderID != senderID {
		return nil, chat_errors.ErrForbidden
	}
	msg.Content = content
	msg.IsEdited = true
	msg.UpdatedAt = time.Now()
	out := *msg
	return &out, nil
}

func (s *MemoryStore) SoftDeleteMessage(ctx context.Context, messageID, senderID uuid.UUID) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, chat_errors.ErrNotFound
	}
	if msg.SenderID != senderID {
		return nil, chat_errors.ErrForbidden
	}
	if !msg.IsDeleted {
		msg.IsDeleted = true
		msg.DeletedAt = sql.NullTime{Time: time.Now(), Valid: true}
		msg.UpdatedAt = time.Now()
	}
	out := *msg
	return &out, nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, conversationID, communityID *uuid.UUID, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if (conversationID == nil) == (communityID == nil) {
		return nil, chat_errors.ErrAmbiguousTarget
	}
	if limit <= 0 {
		limit = 100
	}

	var out []domain.Message
	for _, id := range s.order {
		msg := s.messages[id]
		switch {
		case conversationID != nil && msg.ConversationID.Valid && msg.ConversationID.UUID == *conversationID:
			out = append(out, *msg)
		case communityID != nil && msg.CommunityID.Valid && msg.CommunityID.UUID == *communityID:
			out = append(out, *msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) GetOrCreateDirectConversation(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.DirectKeyFor(userA, userB)
	if id, ok := s.directKeys[key]; ok {
		out := *s.conversations[id]
		return &out, nil
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationTypeDirect,
		DirectKey: sql.NullString{String: key, Valid: true},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	s.directKeys[key] = conv.ID
	s.participants[conv.ID] = map[uuid.UUID]*domain.ConversationParticipant{
		userA: {ConversationID: conv.ID, UserID: userA, JoinedAt: now},
		userB: {ConversationID: conv.ID, UserID: userB, JoinedAt: now},
	}
	out := *conv
	return &out, nil
}

func (s *MemoryStore) ListDirectConversations(ctx context.Context, userID uuid.UUID) ([]store.ConversationSummary, error) {
	return s.list(userID, domain.ConversationTypeDirect, true)
}

func (s *MemoryStore) ListCommunityConversations(ctx context.Context, userID uuid.UUID) ([]store.ConversationSummary, error) {
	return s.list(userID, domain.ConversationTypeCommunity, false)
}

func (s *MemoryStore) list(userID uuid.UUID, convType string, membersOnly bool) ([]store.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.ConversationSummary
	for id, conv := range s.conversations {
		if conv.Type != convType {
			continue
		}
		p := s.participants[id][userID]
		if membersOnly && p == nil {
			continue
		}

		summary := store.ConversationSummary{ID: id, Type: conv.Type}
		if conv.CommunityID.Valid {
			cid := conv.CommunityID.UUID
			summary.CommunityID = &cid
		}
		if conv.LastMessageAt.Valid {
			t := conv.LastMessageAt.Time
			summary.LastMessageAt = &t
		}
		if conv.LastMessagePreview.Valid {
			summary.LastMessagePreview = conv.LastMessagePreview.String
		}
		if conv.LastMessageSenderID.Valid {
			sid := conv.LastMessageSenderID.UUID
			summary.LastMessageSenderID = &sid
		}
		if p != nil {
			summary.UnreadCount = p.UnreadCount
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *MemoryStore) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.MarkReadCalls++
	if p, ok := s.participants[conversationID][userID]; ok {
		p.LastReadAt = sql.NullTime{Time: time.Now(), Valid: true}
		p.UnreadCount = 0
	}
	return nil
}

func (s *MemoryStore) UnreadCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[uuid.UUID]int)
	for convID, members := range s.participants {
		if p, ok := members[userID]; ok {
			counts[convID] = p.UnreadCount
		}
	}
	return counts, nil
}

func (s *MemoryStore) CreateReport(ctx context.Context, report *domain.MessageReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.Status == "" {
		report.Status = domain.ReportStatusPending
	}
	report.CreatedAt = time.Now()
	s.reports = append(s.reports, *report)
	return nil
}

// Reports returns the appended reports.
func (s *MemoryStore) Reports() []domain.MessageReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MessageReport, len(s.reports))
	copy(out, s.reports)
	return out
}

// Participant returns the participant row for tests.
func (s *MemoryStore) Participant(conversationID, userID uuid.UUID) *domain.ConversationParticipant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[conversationID][userID]; ok {
		out := *p
		return &out
	}
	return nil
}

// Conversation returns a conversation row for tests.
func (s *MemoryStore) Conversation(id uuid.UUID) *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		out := *c
		return &out
	}
	return nil
}
