package conversations

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"commons-chat/internal/auth"
	"commons-chat/internal/domain"
	"commons-chat/internal/store"
	chat_errors "commons-chat/pkg/errors"
)

const defaultPageSize = 50

// Cursor marks the last item of the previous page. The id disambiguates
// conversations whose last messages share a timestamp, so ties on a page
// boundary are neither skipped nor repeated.
type Cursor struct {
	LastMessageAt time.Time
	ID            uuid.UUID
}

// ListOptions controls filtering and cursor pagination of the conversation
// list. Items without any message sort last and are only reachable past
// the timed ones.
type ListOptions struct {
	UnreadOnly bool
	Cursor     *Cursor
	Limit      int
}

// Aggregator merges direct and community conversation summaries into the
// sorted list the conversation views render.
type Aggregator struct {
	store store.Store
}

func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// List returns one page of conversation summaries for the authenticated
// user, sorted by lastMessageAt descending with empty conversations last.
// The second return value is the cursor for the next page, nil when the
// page was not full.
func (a *Aggregator) List(ctx context.Context, opts ListOptions) ([]store.ConversationSummary, *Cursor, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultPageSize
	}

	direct, err := a.store.ListDirectConversations(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	community, err := a.store.ListCommunityConversations(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	merged := append(direct, community...)
	sort.SliceStable(merged, func(i, j int) bool {
		ti, tj := merged[i].LastMessageAt, merged[j].LastMessageAt
		switch {
		case ti == nil && tj == nil:
			return merged[i].ID.String() < merged[j].ID.String()
		case ti == nil:
			return false
		case tj == nil:
			return true
		case ti.Equal(*tj):
			return merged[i].ID.String() < merged[j].ID.String()
		default:
			return ti.After(*tj)
		}
	})

	page := make([]store.ConversationSummary, 0, opts.Limit)
	for _, summary := range merged {
		if opts.UnreadOnly && summary.UnreadCount == 0 {
			continue
		}
		if opts.Cursor != nil && !afterCursor(summary, *opts.Cursor) {
			continue
		}
		page = append(page, summary)
		if len(page) == opts.Limit {
			break
		}
	}

	var next *Cursor
	if last := len(page) - 1; len(page) == opts.Limit && page[last].LastMessageAt != nil {
		next = &Cursor{LastMessageAt: *page[last].LastMessageAt, ID: page[last].ID}
	}
	return page, next, nil
}

// afterCursor reports whether the summary sorts strictly past the cursor
// position: an older last message, or the same timestamp with a greater id
// (matching the equal-timestamp sort order).
func afterCursor(summary store.ConversationSummary, c Cursor) bool {
	t := summary.LastMessageAt
	if t == nil {
		return false
	}
	if t.Equal(c.LastMessageAt) {
		return summary.ID.String() > c.ID.String()
	}
	return t.Before(c.LastMessageAt)
}

// StartDirect returns the conversation between the caller and another user,
// creating it on first use. The same pair always yields the same
// conversation id; a conversation with oneself is rejected before any I/O.
func (a *Aggregator) StartDirect(ctx context.Context, otherUserID uuid.UUID) (*domain.Conversation, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	if otherUserID == uuid.Nil {
		return nil, chat_errors.ErrInvalidInput
	}
	if otherUserID == userID {
		return nil, chat_errors.ErrSelfAddressed
	}
	return a.store.GetOrCreateDirectConversation(ctx, userID, otherUserID)
}
