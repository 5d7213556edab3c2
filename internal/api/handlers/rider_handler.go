package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/afya-transport/internal/api/dto"
	"github.com/gocomet/afya-transport/internal/domain/geo"
	"github.com/gocomet/afya-transport/internal/domain/rider"
	"github.com/gocomet/afya-transport/internal/service/dispatch"
	apperrors "github.com/gocomet/afya-transport/pkg/errors"
	"github.com/gocomet/afya-transport/pkg/logger"
)

// RegisterRider handles POST /v1/riders
func (h *Handlers) RegisterRider(c *gin.Context) {
	var req dto.RegisterRiderRequest
	if !h.bindJSON(c, &req) {
		return
	}
	r, err := h.Dispatch.RegisterRider(c.Request.Context(), dispatch.RegisterRiderInput{
		ID:       req.ID,
		Name:     req.Name,
		Phone:    req.Phone,
		Location: req.Location,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// GetRider handles GET /v1/riders/:id
func (h *Handlers) GetRider(c *gin.Context) {
	r, err := h.Dispatch.GetRider(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// UpdateRiderLocation handles POST /v1/riders/:id/location
func (h *Handlers) UpdateRiderLocation(c *gin.Context) {
	var req dto.UpdateLocationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	riderID := c.Param("id")

	h.Logger.Debug("Rider location update",
		logger.String("rider_id", riderID),
		logger.Float64("latitude", *req.Latitude),
		logger.Float64("longitude", *req.Longitude),
	)

	r, err := h.Dispatch.UpdateRiderLocation(c.Request.Context(), riderID, geo.Point{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// SetRiderOnline handles POST /v1/riders/:id/status
func (h *Handlers) SetRiderOnline(c *gin.Context) {
	var req dto.SetOnlineRequest
	if !h.bindJSON(c, &req) {
		return
	}
	r, err := h.Dispatch.SetRiderOnline(c.Request.Context(), c.Param("id"), *req.Online)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// GetRiderStats handles GET /v1/riders/:id/stats?window=today|week|month|all
func (h *Handlers) GetRiderStats(c *gin.Context) {
	stats, err := h.Dispatch.GetRiderStats(c.Request.Context(), c.Param("id"), rider.Window(c.DefaultQuery("window", string(rider.WindowAll))))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListNearbyRiders handles GET /v1/riders/nearby?lat=&lng=&radius_km=
func (h *Handlers) ListNearbyRiders(c *gin.Context) {
	loc, err := queryPoint(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if loc == nil {
		h.respondError(c, apperrors.BadRequest("lat and lng are required", nil))
		return
	}
	radius, err := queryRadius(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	candidates, err := h.Dispatch.ListCandidateRiders(c.Request.Context(), *loc, radius)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"riders": candidates, "count": len(candidates)})
}
