package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/gocomet/afya-transport/pkg/errors"
)

const defaultAuditLimit = 100

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":                "healthy",
		"websocket_connections": h.Hub.ActiveConnections(),
	}
	for name, fn := range h.stats {
		resp[name] = fn()
	}
	c.JSON(http.StatusOK, resp)
}

// GetAuditTrail handles GET /v1/audit/:key?type=a,b&limit=n. The key is a
// request id or a user id.
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	if h.Audit == nil {
		h.respondError(c, apperrors.ServiceUnavailable("Audit trail is not enabled", nil))
		return
	}

	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(c, apperrors.BadRequest("limit must be a positive integer", err))
			return
		}
		limit = n
	}
	var types []string
	if raw := c.Query("type"); raw != "" {
		types = strings.Split(raw, ",")
	}

	records, err := h.Audit.ListByKey(c.Request.Context(), c.Param("key"), types, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": records, "count": len(records)})
}
