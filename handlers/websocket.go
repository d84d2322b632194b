package handlers

import (
	"net/http"

	ws "drivesafe/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

// WebSocket upgrader
var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The mobile app connects from app webviews with no fixed origin.
		return true
	},
}

// ListenReports upgrades the connection and subscribes the client to live
// report broadcasts.
func (h *Handler) ListenReports(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// WebSocketStats reports hub statistics.
func (h *Handler) WebSocketStats(c *gin.Context) {
	connected, broadcasts := h.hub.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": connected,
		"broadcasts_sent":   broadcasts,
	})
}
