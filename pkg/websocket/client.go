package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send small control messages and fixes.
	maxMessageSize = 16 * 1024

	sendBufferSize = 64
)

// MessageTypeError is sent back when a client message cannot be handled.
const MessageTypeError = "error"

// Message is the websocket envelope.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a message with payload encoded as its data.
func NewMessage(msgType, sessionID string, payload interface{}) (*Message, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return &Message{
		Type:      msgType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// ErrorMessage builds an error reply for a client.
func ErrorMessage(sessionID, text string) *Message {
	msg, _ := NewMessage(MessageTypeError, sessionID, map[string]string{"message": text})
	return msg
}

// Client is one websocket connection watching a navigation session.
type Client struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	// Send is closed by the hub only.
	Send   chan *Message
	Hub    *Hub
	logger *zap.Logger
}

// NewClient creates a client for sessionID.
func NewClient(sessionID string, conn *websocket.Conn, hub *Hub) *Client {
	id := uuid.NewString()
	return &Client{
		ID:        id,
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan *Message, sendBufferSize),
		Hub:       hub,
		logger:    hub.logger.With(zap.String("client_id", id), zap.String("session_id", sessionID)),
	}
}

// ReadPump routes client messages to the hub until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		msg.Timestamp = time.Now().UTC()
		msg.SessionID = c.SessionID
		c.Hub.HandleMessage(c, &msg)
	}
}

// WritePump writes queued messages and keepalive pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues msg without blocking. A client that cannot keep up is
// disconnected. Only the hub goroutine calls it; use Hub.Reply elsewhere.
func (c *Client) SendMessage(msg *Message) {
	select {
	case c.Send <- msg:
	default:
		c.logger.Warn("websocket client too slow, disconnecting")
		go c.Hub.unregister(c)
	}
}
