package websocket

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleWebSocket upgrades the request and attaches the connection to
// sessionID. The caller checks that the session exists.
func HandleWebSocket(c *gin.Context, hub *Hub, sessionID string) {
	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		hub.logger.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	client := NewClient(sessionID, conn, hub)
	if !hub.register(client) {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
