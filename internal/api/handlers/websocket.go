package handlers

import (
	"net/http"
	"strings"

	"github.com/Veenoway/on-chain-chess-sub001/internal/websocket"
	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
)

// WebSocketHandler match_found push channel
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gws.Upgrader
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		upgrader: websocket.NewUpgrader(allowedOrigins),
	}
}

// HandleWebSocket GET /api/matchmaking/ws?address=...
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errMissingFields})
		return
	}

	h.hub.ServeWs(&h.upgrader, c.Writer, c.Request, address)
}
