package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageHandler handles a message a client sent.
type MessageHandler func(*Client, *Message)

// Hub tracks the websocket clients watching each navigation session and fans
// session messages out to them.
type Hub struct {
	// Clients grouped by session ID
	sessions map[string]map[*Client]struct{}

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan *BroadcastMessage

	handlers map[string]MessageHandler
	upgrader websocket.Upgrader
	logger   *zap.Logger
	done     chan struct{}

	mu sync.RWMutex
}

// BroadcastMessage is a message addressed to every client of one session, or
// only to Client when set. Disconnect closes the session's clients after
// everything queued before it has been delivered.
type BroadcastMessage struct {
	SessionID  string
	Client     *Client
	Message    *Message
	Disconnect bool
}

// NewHub creates a hub. allowedOrigins is a comma-separated list checked
// against the Origin header on upgrade; "*" or empty accepts any origin.
func NewHub(logger *zap.Logger, allowedOrigins string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		sessions:   make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *BroadcastMessage, 256),
		handlers:   make(map[string]MessageHandler),
		logger:     logger,
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")
	defer func() {
		close(h.done)
		h.closeAll()
		h.logger.Info("websocket hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case broadcast := <-h.Broadcast:
			if broadcast.Disconnect {
				h.disconnectSession(broadcast.SessionID)
				continue
			}
			h.broadcastMessage(broadcast)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[client.SessionID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.sessions[client.SessionID] = clients
	}
	clients[client] = struct{}{}
	h.logger.Debug("websocket client registered",
		zap.String("client_id", client.ID),
		zap.String("session_id", client.SessionID),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[client.SessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.sessions, client.SessionID)
	}
	close(client.Send)
	h.logger.Debug("websocket client unregistered",
		zap.String("client_id", client.ID),
		zap.String("session_id", client.SessionID),
	)
}

func (h *Hub) broadcastMessage(broadcast *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.sessions[broadcast.SessionID]
	if broadcast.Client != nil {
		if _, ok := clients[broadcast.Client]; ok {
			broadcast.Client.SendMessage(broadcast.Message)
		}
		return
	}
	for client := range clients {
		client.SendMessage(broadcast.Message)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID, clients := range h.sessions {
		for client := range clients {
			close(client.Send)
		}
		delete(h.sessions, sessionID)
	}
}

// HandleMessage routes an incoming client message to its handler.
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	h.mu.RLock()
	handler, exists := h.handlers[msg.Type]
	h.mu.RUnlock()

	if !exists {
		h.logger.Debug("no handler for websocket message", zap.String("type", msg.Type))
		h.Reply(client, ErrorMessage(client.SessionID, "unsupported message type: "+msg.Type))
		return
	}
	handler(client, msg)
}

// RegisterHandler registers a message handler for a specific type
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
}

// SendToSession queues msg for every client watching sessionID. It does not
// block once the hub has stopped.
func (h *Hub) SendToSession(sessionID string, msg *Message) {
	select {
	case h.Broadcast <- &BroadcastMessage{SessionID: sessionID, Message: msg}:
	case <-h.done:
	}
}

// Reply queues msg for a single client.
func (h *Hub) Reply(client *Client, msg *Message) {
	select {
	case h.Broadcast <- &BroadcastMessage{SessionID: client.SessionID, Client: client, Message: msg}:
	case <-h.done:
	}
}

// DisconnectSession closes every client of a finished session once the
// messages already queued for it are sent.
func (h *Hub) DisconnectSession(sessionID string) {
	select {
	case h.Broadcast <- &BroadcastMessage{SessionID: sessionID, Disconnect: true}:
	case <-h.done:
	}
}

func (h *Hub) disconnectSession(sessionID string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions[sessionID]))
	for client := range h.sessions[sessionID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.unregisterClient(client)
	}
}

func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of clients watching sessionID.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// SessionCount returns the number of sessions with at least one client.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func originChecker(allowedOrigins string) func(*http.Request) bool {
	allowed := make(map[string]struct{})
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	if _, wildcard := allowed["*"]; wildcard || len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Native clients send no Origin.
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
