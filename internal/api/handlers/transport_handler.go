package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/afya-transport/internal/api/dto"
	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/gocomet/afya-transport/internal/service/dispatch"
	"github.com/gocomet/afya-transport/pkg/logger"
)

// CreateRequest handles POST /v1/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	var req dto.CreateTransportRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.Logger.Info("Transport request received",
		logger.String("requester_id", req.RequesterID),
		logger.String("urgency", req.Urgency),
		logger.String("service_type", req.ServiceType),
	)

	created, err := h.Dispatch.CreateRequest(c.Request.Context(), dispatch.CreateRequestInput{
		RequesterID:       req.RequesterID,
		RequesterRole:     transport.RequesterRole(req.RequesterRole),
		Patient:           req.Patient,
		Pickup:            req.Pickup,
		Destination:       req.Destination,
		ServiceType:       transport.ServiceType(req.ServiceType),
		Urgency:           transport.Urgency(req.Urgency),
		Notes:             req.Notes,
		PaymentMethod:     transport.PaymentMethod(req.PaymentMethod),
		EstimatedDistance: req.EstimatedDistance,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetRequest handles GET /v1/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.Dispatch.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ListOpenRequests handles GET /v1/requests/open?rider_id=&lat=&lng=
func (h *Handlers) ListOpenRequests(c *gin.Context) {
	loc, err := queryPoint(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	open, err := h.Dispatch.ListOpenRequests(c.Request.Context(), dispatch.OpenRequestQuery{
		RiderID:  c.Query("rider_id"),
		Location: loc,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": open, "count": len(open)})
}

// ListRequestCandidates handles GET /v1/requests/:id/candidates?radius_km=
func (h *Handlers) ListRequestCandidates(c *gin.Context) {
	radius, err := queryRadius(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	candidates, err := h.Dispatch.ListCandidatesForRequest(c.Request.Context(), c.Param("id"), radius)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates, "count": len(candidates)})
}

// ListUserRequests handles GET /v1/users/:id/requests
func (h *Handlers) ListUserRequests(c *gin.Context) {
	reqs, err := h.Dispatch.ListRequestsByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs, "count": len(reqs)})
}

// AutoAssign handles POST /v1/requests/:id/auto-assign
func (h *Handlers) AutoAssign(c *gin.Context) {
	req, err := h.Dispatch.AutoAssign(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// AcceptRequest handles POST /v1/requests/:id/accept
func (h *Handlers) AcceptRequest(c *gin.Context) {
	var body dto.RiderActionRequest
	if !h.bindJSON(c, &body) {
		return
	}
	req, err := h.Dispatch.AcceptRequest(c.Request.Context(), c.Param("id"), body.RiderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RejectRequest handles POST /v1/requests/:id/reject
func (h *Handlers) RejectRequest(c *gin.Context) {
	var body dto.RiderActionRequest
	if !h.bindJSON(c, &body) {
		return
	}
	requestID := c.Param("id")
	if err := h.Dispatch.RejectRequest(c.Request.Context(), requestID, body.RiderID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Request declined",
		Data:    gin.H{"request_id": requestID, "rider_id": body.RiderID},
	})
}

// StartRide handles POST /v1/requests/:id/start
func (h *Handlers) StartRide(c *gin.Context) {
	req, err := h.Dispatch.StartRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// CompleteRide handles POST /v1/requests/:id/complete. An empty body bills
// the estimate.
func (h *Handlers) CompleteRide(c *gin.Context) {
	var body dto.CompleteRideRequest
	if !h.bindOptionalJSON(c, &body) {
		return
	}
	req, err := h.Dispatch.CompleteRide(c.Request.Context(), c.Param("id"), body.ActualCost)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// CancelRequest handles POST /v1/requests/:id/cancel
func (h *Handlers) CancelRequest(c *gin.Context) {
	var body dto.CancelRequest
	if !h.bindOptionalJSON(c, &body) {
		return
	}
	req, err := h.Dispatch.CancelRequest(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RateRide handles POST /v1/requests/:id/rating
func (h *Handlers) RateRide(c *gin.Context) {
	var body dto.RateRideRequest
	if !h.bindJSON(c, &body) {
		return
	}
	r, err := h.Dispatch.RateRide(c.Request.Context(), c.Param("id"), body.Rating)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
