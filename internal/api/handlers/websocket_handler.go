package handlers

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/gocomet/afya-transport/pkg/errors"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/gocomet/afya-transport/pkg/websocket"
)

// HandleWebSocket handles GET /v1/ws?user_id=&audience=rider|requester|dashboard&request_id=
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	userID := c.Query("user_id")
	audience := c.Query("audience")
	if userID == "" {
		h.respondError(c, apperrors.BadRequest("user_id is required", nil))
		return
	}
	switch audience {
	case websocket.AudienceRider, websocket.AudienceRequester, websocket.AudienceDashboard:
	default:
		h.respondError(c, apperrors.BadRequest("audience must be rider, requester or dashboard", nil))
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade to WebSocket", logger.Err(err))
		return
	}

	client := websocket.NewClient(h.Hub, conn, userID, audience, h.Logger)
	if requestID := c.Query("request_id"); requestID != "" {
		client.Follow(requestID)
	}
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
