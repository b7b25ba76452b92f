package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"commons-chat/internal/auth"
	chat_errors "commons-chat/pkg/errors"
)

func errInvalidFrame(frame ClientFrame) error {
	return fmt.Errorf("%q frame: %w", frame.Type, chat_errors.ErrInvalidInput)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client is one WebSocket connection with its session.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	session *Session
	log     *zap.Logger

	onClose func(*Client)
}

// ClientFrame is an inbound control frame from the client.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	CommunityID    string `json:"community_id,omitempty"`
}

func NewClient(conn *websocket.Conn, session *Session, log *zap.Logger, onClose func(*Client)) *Client {
	c := &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		session: session,
		log:     log,
		onClose: onClose,
	}
	session.SetForward(c.push)
	return c
}

// Run starts the read and write pumps.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	go c.readPump(ctx)
}

func (c *Client) push(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.log.Warn("client send buffer full",
			zap.String("session", c.session.ID))
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.session.Close()
		c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket unexpected close",
					zap.String("session", c.session.ID),
					zap.Error(err))
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		if err := c.handleFrame(ctx, message); err != nil {
			c.log.Warn("websocket frame failed",
				zap.String("session", c.session.ID),
				zap.Error(err))
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, message []byte) error {
	var frame ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return err
	}

	ctx = auth.WithUserID(ctx, c.session.UserID)

	switch frame.Type {
	case "subscribe":
		if id, err := uuid.Parse(frame.ConversationID); err == nil {
			c.session.SubscribeConversation(ctx, id)
			return nil
		}
		if id, err := uuid.Parse(frame.CommunityID); err == nil {
			c.session.SubscribeCommunity(ctx, id)
			return nil
		}
		return errInvalidFrame(frame)
	case "unsubscribe":
		if id, err := uuid.Parse(frame.ConversationID); err == nil {
			c.session.UnsubscribeConversation(id)
			return nil
		}
		if id, err := uuid.Parse(frame.CommunityID); err == nil {
			c.session.UnsubscribeCommunity(id)
			return nil
		}
		return errInvalidFrame(frame)
	case "typing:start":
		id, err := uuid.Parse(frame.ConversationID)
		if err != nil {
			return errInvalidFrame(frame)
		}
		c.session.Indicator(id).Touch(ctx)
		return nil
	case "typing:stop":
		id, err := uuid.Parse(frame.ConversationID)
		if err != nil {
			return errInvalidFrame(frame)
		}
		c.session.Indicator(id).Stop(ctx)
		return nil
	case "read":
		id, err := uuid.Parse(frame.ConversationID)
		if err != nil {
			return errInvalidFrame(frame)
		}
		return c.session.Tracker().MarkAsRead(ctx, id)
	case "ping":
		c.push([]byte(`{"type":"pong"}`))
		return nil
	default:
		c.log.Warn("unknown frame type",
			zap.String("session", c.session.ID),
			zap.String("frame_type", frame.Type))
		return nil
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
