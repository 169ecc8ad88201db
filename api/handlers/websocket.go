package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/opencontroller/backend/internal/ws"
)

// WebSocketHandler handles WebSocket connections for controller clients.
type WebSocketHandler struct {
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{
		wsHandler: wsHandler,
	}
}

// Attach handles WS /api/ws - joins as a controller, or as an observer with
// ?role=observer.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request); err != nil {
		// The upgrader already wrote the HTTP error
		return
	}
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.Attach)
}
