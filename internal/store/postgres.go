package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"commons-chat/internal/config"
	"commons-chat/internal/domain"
	chat_errors "commons-chat/pkg/errors"
)

// PostgresStore implements Store on GORM/Postgres.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to Postgres and migrates the messaging tables.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(
		&domain.Conversation{},
		&domain.ConversationParticipant{},
		&domain.Message{},
		&domain.MessageReport{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	var out domain.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Message
		err := tx.First(&existing, "id = ?", msg.ID).Error
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now()
		msg.CreatedAt = now
		msg.UpdatedAt = now
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		if msg.ConversationID.Valid {
			if err := bumpConversation(tx, msg); err != nil {
				return err
			}
		}
		out = *msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// bumpConversation advances the conversation's last-message projection and
// the other participants' unread counters. The last_message_at guard keeps
// the column monotonically non-decreasing under concurrent writers.
func bumpConversation(tx *gorm.DB, msg *domain.Message) error {
	err := tx.Model(&domain.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at <= ?)",
			msg.ConversationID.UUID, msg.CreatedAt).
		Updates(map[string]interface{}{
			"last_message_at":        msg.CreatedAt,
			"last_message_preview":   msg.Preview(),
			"last_message_sender_id": msg.SenderID,
			"updated_at":             msg.CreatedAt,
		}).Error
	if err != nil {
		return err
	}

	return tx.Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id <> ?", msg.ConversationID.UUID, msg.SenderID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
}

func (s *PostgresStore) UpdateMessage(ctx context.Context, messageID, senderID uuid.UUID, content string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&msg, "id = ?", messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return chat_errors.ErrNotFound
			}
			return err
		}
		if msg.SenderID != senderID {
			return chat_errors.ErrForbidden
		}
		msg.Content = content
		msg.IsEdited = true
		msg.UpdatedAt = time.Now()
		return tx.Save(&msg).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *PostgresStore) SoftDeleteMessage(ctx context.Context, messageID, senderID uuid.UUID) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&msg, "id = ?", messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return chat_errors.ErrNotFound
			}
			return err
		}
		if msg.SenderID != senderID {
			return chat_errors.ErrForbidden
		}
		if msg.IsDeleted {
			return nil
		}
		msg.IsDeleted = true
		msg.DeletedAt = sql.NullTime{Time: time.Now(), Valid: true}
		msg.UpdatedAt = time.Now()
		return tx.Save(&msg).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, conversationID, communityID *uuid.UUID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&domain.Message{}).Order("created_at ASC").Limit(limit)
	switch {
	case conversationID != nil:
		q = q.Where("conversation_id = ?", *conversationID)
	case communityID != nil:
		q = q.Where("community_id = ?", *communityID)
	default:
		return nil, chat_errors.ErrAmbiguousTarget
	}

	var msgs []domain.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *PostgresStore) GetOrCreateDirectConversation(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	key := domain.DirectKeyFor(userA, userB)
	now := time.Now()
	conv := domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationTypeDirect,
		DirectKey: sql.NullString{String: key, Valid: true},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "direct_key"}},
			DoNothing: true,
		}).Create(&conv)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race or already existed; fetch the winner.
			return tx.First(&conv, "direct_key = ?", key).Error
		}

		for _, userID := range []uuid.UUID{userA, userB} {
			p := domain.ConversationParticipant{
				ConversationID: conv.ID,
				UserID:         userID,
				JoinedAt:       now,
			}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

type summaryRow struct {
	ID                  uuid.UUID
	Type                string
	CommunityID         uuid.NullUUID
	LastMessageAt       sql.NullTime
	LastMessagePreview  sql.NullString
	LastMessageSenderID uuid.NullUUID
	UnreadCount         int
}

func (r summaryRow) toSummary() ConversationSummary {
	out := ConversationSummary{
		ID:          r.ID,
		Type:        r.Type,
		UnreadCount: r.UnreadCount,
	}
	if r.CommunityID.Valid {
		id := r.CommunityID.UUID
		out.CommunityID = &id
	}
	if r.LastMessageAt.Valid {
		t := r.LastMessageAt.Time
		out.LastMessageAt = &t
	}
	if r.LastMessagePreview.Valid {
		out.LastMessagePreview = r.LastMessagePreview.String
	}
	if r.LastMessageSenderID.Valid {
		id := r.LastMessageSenderID.UUID
		out.LastMessageSenderID = &id
	}
	return out
}

func (s *PostgresStore) ListDirectConversations(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	var rows []summaryRow
	err := s.db.WithContext(ctx).Table("conversations").
		Select("conversations.id, conversations.type, conversations.community_id, conversations.last_message_at, conversations.last_message_preview, conversations.last_message_sender_id, conversation_participants.unread_count").
		Joins("JOIN conversation_participants ON conversation_participants.conversation_id = conversations.id AND conversation_participants.user_id = ?", userID).
		Where("conversations.type = ?", domain.ConversationTypeDirect).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, r.toSummary())
	}
	return summaries, nil
}

func (s *PostgresStore) ListCommunityConversations(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	var rows []summaryRow
	err := s.db.WithContext(ctx).Table("conversations").
		Select("conversations.id, conversations.type, conversations.community_id, conversations.last_message_at, conversations.last_message_preview, conversations.last_message_sender_id, COALESCE(conversation_participants.unread_count, 0) AS unread_count").
		Joins("LEFT JOIN conversation_participants ON conversation_participants.conversation_id = conversations.id AND conversation_participants.user_id = ?", userID).
		Where("conversations.type = ?", domain.ConversationTypeCommunity).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, r.toSummary())
	}
	return summaries, nil
}

func (s *PostgresStore) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]interface{}{
			"last_read_at": time.Now(),
			"unread_count": 0,
		}).Error
}

func (s *PostgresStore) UnreadCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		ConversationID uuid.UUID
		UnreadCount    int
	}
	err := s.db.WithContext(ctx).Model(&domain.ConversationParticipant{}).
		Select("conversation_id, unread_count").
		Where("user_id = ?", userID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		counts[r.ConversationID] = r.UnreadCount
	}
	return counts, nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, report *domain.MessageReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.Status == "" {
		report.Status = domain.ReportStatusPending
	}
	report.CreatedAt = time.Now()
	return s.db.WithContext(ctx).Create(report).Error
}
