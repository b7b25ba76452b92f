package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the connection and starts a session. The token comes in
// as a query parameter because browsers cannot set headers on WebSocket
// dials.
func (s *Server) serveWS(c *gin.Context) {
	token := c.Query("token")
	userID, err := s.verifier.Parse(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	// The request context dies when this handler returns; the session and
	// its subscriptions live as long as the connection does.
	ctx := context.Background()

	session := NewSession(userID, s.registry, s.store, s.typingCfg, s.log)
	session.SubscribeUserFeed(ctx)

	client := NewClient(conn, session, s.log, func(cl *Client) {
		s.log.Info("client disconnected",
			zap.String("session", cl.session.ID),
			zap.String("user_id", cl.session.UserID.String()))
	})

	s.log.Info("client connected",
		zap.String("session", session.ID),
		zap.String("user_id", userID.String()))

	client.Run(ctx)
}
