package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetCreditProfile handles GET /v1/users/:id/credit-profile
func (h *Handlers) GetCreditProfile(c *gin.Context) {
	p, err := h.Credit.GetCreditProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RefreshCreditProfile handles POST /v1/users/:id/credit-profile/refresh
func (h *Handlers) RefreshCreditProfile(c *gin.Context) {
	p, err := h.Credit.RefreshCreditProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
