package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"commons-chat/internal/auth"
	"commons-chat/internal/channels"
	"commons-chat/internal/config"
	"commons-chat/internal/conversations"
	"commons-chat/internal/mocks"
	"commons-chat/internal/send"
	"commons-chat/internal/server"
	"commons-chat/pkg/logger"
)

const testSecret = "test-secret"

type serverFixture struct {
	srv   *server.Server
	store *mocks.MemoryStore
}

func newServerFixture() *serverFixture {
	cfg := &config.Config{
		Server: config.ServerConfig{Environment: logger.DevelopmentMode},
		Auth:   config.AuthConfig{JWTSecret: testSecret},
		Typing: config.TypingConfig{
			DebounceInterval: 2 * time.Second,
			IdleTimeout:      5 * time.Second,
		},
	}
	b := mocks.NewMemoryBroadcaster()
	st := mocks.NewMemoryStore()
	l := &logger.Logger{Logger: zap.NewNop()}
	registry := channels.NewRegistry(b, l.Logger)
	pipeline := send.NewPipeline(registry, st, l.Logger)
	aggregator := conversations.NewAggregator(st)
	verifier := auth.NewTokenVerifier(testSecret)

	return &serverFixture{
		srv:   server.New(cfg, registry, pipeline, aggregator, st, verifier, l),
		store: st,
	}
}

func bearerFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestRequestsWithoutTokenRejected(t *testing.T) {
	f := newServerFixture()

	w := f.do(t, http.MethodGet, "/api/v1/conversations", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"content": "hi"}, "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendMessageEndpoint(t *testing.T) {
	f := newServerFixture()
	userID := uuid.New()
	conversationID := uuid.New()

	w := f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{
		"conversation_id": conversationID.String(),
		"content":         "hello over http",
	}, bearerFor(t, userID))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ID             string `json:"id"`
			ConversationID string `json:"conversation_id"`
			SenderID       string `json:"sender_id"`
			Content        string `json:"content"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, conversationID.String(), resp.Data.ConversationID)
	assert.Equal(t, userID.String(), resp.Data.SenderID)
	assert.Equal(t, "hello over http", resp.Data.Content)
	assert.NotEmpty(t, resp.Data.ID)
}

func TestSendMessageRejectsAmbiguousTarget(t *testing.T) {
	f := newServerFixture()
	userID := uuid.New()

	w := f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{
		"conversation_id": uuid.New().String(),
		"community_id":    uuid.New().String(),
		"content":         "both",
	}, bearerFor(t, userID))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{
		"content": "no target",
	}, bearerFor(t, userID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEditForeignMessageForbidden(t *testing.T) {
	f := newServerFixture()
	owner := uuid.New()
	intruder := uuid.New()
	conversationID := uuid.New()

	w := f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{
		"conversation_id": conversationID.String(),
		"content":         "mine",
	}, bearerFor(t, owner))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = f.do(t, http.MethodPatch, "/api/v1/messages/"+resp.Data.ID, map[string]string{
		"content": "hijacked",
	}, bearerFor(t, intruder))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/messages/"+uuid.New().String(), nil, bearerFor(t, owner))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartDirectConversationEndpoint(t *testing.T) {
	f := newServerFixture()
	userID := uuid.New()
	other := uuid.New()

	w := f.do(t, http.MethodPost, "/api/v1/conversations/direct", map[string]string{
		"user_id": other.String(),
	}, bearerFor(t, userID))
	require.Equal(t, http.StatusOK, w.Code)

	// Talking to oneself is rejected.
	w = f.do(t, http.MethodPost, "/api/v1/conversations/direct", map[string]string{
		"user_id": userID.String(),
	}, bearerFor(t, userID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListConversationsEndpoint(t *testing.T) {
	f := newServerFixture()
	userID := uuid.New()
	other := uuid.New()

	w := f.do(t, http.MethodPost, "/api/v1/conversations/direct", map[string]string{
		"user_id": other.String(),
	}, bearerFor(t, userID))
	require.Equal(t, http.StatusOK, w.Code)

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{
		"conversation_id": created.Data.ID,
		"content":         "ping",
	}, bearerFor(t, other))
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/conversations?unread_only=true", nil, bearerFor(t, userID))
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Data struct {
			Conversations []struct {
				ID          string `json:"id"`
				UnreadCount int    `json:"unread_count"`
			} `json:"conversations"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data.Conversations, 1)
	assert.Equal(t, created.Data.ID, list.Data.Conversations[0].ID)
	assert.Equal(t, 1, list.Data.Conversations[0].UnreadCount)
}

func TestListConversationsRejectsBadCursor(t *testing.T) {
	f := newServerFixture()

	w := f.do(t, http.MethodGet, "/api/v1/conversations?cursor=yesterday", nil, bearerFor(t, uuid.New()))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/conversations?cursor=2026-01-02T15:04:05Z&cursor_id=not-a-uuid", nil, bearerFor(t, uuid.New()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkConversationReadEndpoint(t *testing.T) {
	f := newServerFixture()
	userID := uuid.New()
	other := uuid.New()

	w := f.do(t, http.MethodPost, "/api/v1/conversations/direct", map[string]string{
		"user_id": other.String(),
	}, bearerFor(t, userID))
	require.Equal(t, http.StatusOK, w.Code)

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{
		"conversation_id": created.Data.ID,
		"content":         "unread",
	}, bearerFor(t, other))
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/conversations/%s/read", created.Data.ID), nil, bearerFor(t, userID))
	require.Equal(t, http.StatusOK, w.Code)

	p := f.store.Participant(uuid.MustParse(created.Data.ID), userID)
	require.NotNil(t, p)
	assert.Equal(t, 0, p.UnreadCount)
	assert.True(t, p.LastReadAt.Valid)
}

func TestReportMessageEndpoint(t *testing.T) {
	f := newServerFixture()
	userID := uuid.New()
	conversationID := uuid.New()

	w := f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{
		"conversation_id": conversationID.String(),
		"content":         "rude",
	}, bearerFor(t, userID))
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	reporter := uuid.New()
	w = f.do(t, http.MethodPost, "/api/v1/messages/"+created.Data.ID+"/report", map[string]string{
		"reason": "spam",
	}, bearerFor(t, reporter))
	require.Equal(t, http.StatusCreated, w.Code)

	reports := f.store.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, reporter, reports[0].ReporterID)
	assert.Equal(t, "spam", reports[0].Reason)

	// A reason is required.
	w = f.do(t, http.MethodPost, "/api/v1/messages/"+created.Data.ID+"/report", map[string]string{}, bearerFor(t, reporter))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMessagesEndpoint(t *testing.T) {
	f := newServerFixture()
	userID := uuid.New()
	conversationID := uuid.New()

	for _, content := range []string{"one", "two"} {
		w := f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{
			"conversation_id": conversationID.String(),
			"content":         content,
		}, bearerFor(t, userID))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%s/messages", conversationID), nil, bearerFor(t, userID))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Messages, 2)
	assert.Equal(t, "one", resp.Data.Messages[0].Content)
	assert.Equal(t, "two", resp.Data.Messages[1].Content)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%s/messages?limit=1", conversationID), nil, bearerFor(t, userID))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Messages, 1)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%s/messages?limit=oops", conversationID), nil, bearerFor(t, userID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpointIsPublic(t *testing.T) {
	f := newServerFixture()
	w := f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
