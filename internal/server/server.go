package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"commons-chat/internal/auth"
	"commons-chat/internal/channels"
	"commons-chat/internal/config"
	"commons-chat/internal/conversations"
	"commons-chat/internal/domain"
	"commons-chat/internal/middleware"
	"commons-chat/internal/send"
	"commons-chat/internal/store"
	"commons-chat/internal/transport/httpdto"
	chat_errors "commons-chat/pkg/errors"
	"commons-chat/pkg/logger"
)

// gatewayConn is the channel-registry connection identity used for
// HTTP-originated publishes. REST callers share one set of channels; the
// per-client identities belong to WebSocket sessions.
const gatewayConn = "gateway"

// Server wires the messaging core behind the HTTP and WebSocket surface.
type Server struct {
	router     *gin.Engine
	registry   *channels.Registry
	pipeline   *send.Pipeline
	aggregator *conversations.Aggregator
	store      store.Store
	verifier   *auth.TokenVerifier
	typingCfg  config.TypingConfig
	log        *zap.Logger
}

func New(
	cfg *config.Config,
	registry *channels.Registry,
	pipeline *send.Pipeline,
	aggregator *conversations.Aggregator,
	st store.Store,
	verifier *auth.TokenVerifier,
	l *logger.Logger,
) *Server {
	if cfg.Server.Environment == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:     gin.New(),
		registry:   registry,
		pipeline:   pipeline,
		aggregator: aggregator,
		store:      st,
		verifier:   verifier,
		typingCfg:  cfg.Typing,
		log:        l.Logger,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestIDMiddleware())
	s.router.Use(middleware.LoggingMiddleware(l))

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(verifier))
	{
		api.POST("/messages", s.sendMessage)
		api.PATCH("/messages/:id", s.editMessage)
		api.DELETE("/messages/:id", s.deleteMessage)
		api.POST("/messages/:id/report", s.reportMessage)
		api.GET("/conversations", s.listConversations)
		api.POST("/conversations/direct", s.startDirectConversation)
		api.POST("/conversations/:id/read", s.markConversationRead)
		api.GET("/conversations/:id/messages", s.listConversationMessages)
		api.GET("/communities/:id/messages", s.listCommunityMessages)
	}
	s.router.GET("/ws", s.serveWS)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown releases the gateway's shared channels.
func (s *Server) Shutdown() {
	s.registry.UnsubscribeAll(gatewayConn)
}

func (s *Server) sendMessage(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}

	in := send.Input{Content: req.Content}
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			respondError(c, chat_errors.ErrInvalidInput)
			return
		}
		in.ConversationID = &id
	}
	if req.CommunityID != "" {
		id, err := uuid.Parse(req.CommunityID)
		if err != nil {
			respondError(c, chat_errors.ErrInvalidInput)
			return
		}
		in.CommunityID = &id
	}

	result, err := s.pipeline.Send(c.Request.Context(), gatewayConn, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.NewMessageResponse(result.Message)))
}

func (s *Server) editMessage(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}
	var req httpdto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}

	msg, err := s.pipeline.Edit(c.Request.Context(), gatewayConn, messageID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewMessageResponse(msg)))
}

func (s *Server) deleteMessage(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}

	if err := s.pipeline.Delete(c.Request.Context(), gatewayConn, messageID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"deleted": true}))
}

func (s *Server) reportMessage(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}
	var req httpdto.ReportMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reason == "" {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}
	reporterID, err := auth.UserID(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	report := &domain.MessageReport{
		MessageID:  messageID,
		ReporterID: reporterID,
		Reason:     req.Reason,
	}
	if err := s.store.CreateReport(c.Request.Context(), report); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(gin.H{"id": report.ID.String(), "status": report.Status}))
}

func (s *Server) listConversations(c *gin.Context) {
	opts := conversations.ListOptions{
		UnreadOnly: c.Query("unread_only") == "true",
	}
	if v := c.Query("cursor"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			respondError(c, chat_errors.ErrInvalidInput)
			return
		}
		cursor := conversations.Cursor{LastMessageAt: t}
		if cid := c.Query("cursor_id"); cid != "" {
			id, err := uuid.Parse(cid)
			if err != nil {
				respondError(c, chat_errors.ErrInvalidInput)
				return
			}
			cursor.ID = id
		}
		opts.Cursor = &cursor
	}

	summaries, next, err := s.aggregator.List(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}

	out := httpdto.ConversationListResponse{
		Conversations: make([]httpdto.ConversationSummaryResponse, 0, len(summaries)),
	}
	if next != nil {
		t := next.LastMessageAt
		out.NextCursor = &t
		out.NextCursorID = next.ID.String()
	}
	for _, summary := range summaries {
		out.Conversations = append(out.Conversations, httpdto.NewConversationSummaryResponse(summary))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}

func (s *Server) startDirectConversation(c *gin.Context) {
	var req httpdto.StartDirectConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}
	otherID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}

	conv, err := s.aggregator.StartDirect(c.Request.Context(), otherID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"id": conv.ID.String(), "type": conv.Type}))
}

// listConversationMessages serves the authoritative message history clients
// reconcile their optimistic caches against. Tombstones are included.
func (s *Server) listConversationMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}
	s.serveMessages(c, &conversationID, nil)
}

func (s *Server) listCommunityMessages(c *gin.Context) {
	communityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}
	s.serveMessages(c, nil, &communityID)
}

func (s *Server) serveMessages(c *gin.Context, conversationID, communityID *uuid.UUID) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(c, chat_errors.ErrInvalidInput)
			return
		}
		limit = n
	}

	msgs, err := s.store.GetMessages(c.Request.Context(), conversationID, communityID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]httpdto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, httpdto.NewMessageResponse(&msgs[i]))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"messages": out}))
}

func (s *Server) markConversationRead(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, chat_errors.ErrInvalidInput)
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.store.MarkConversationRead(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"read": true}))
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat_errors.ErrInvalidInput),
		errors.Is(err, chat_errors.ErrAmbiguousTarget),
		errors.Is(err, chat_errors.ErrSelfAddressed):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_INPUT"))
	case errors.Is(err, chat_errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
	case errors.Is(err, chat_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
	case errors.Is(err, chat_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("not found", "NOT_FOUND"))
	case errors.Is(err, chat_errors.ErrConflict):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse("conflict", "CONFLICT"))
	default:
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal error", "INTERNAL"))
	}
}
