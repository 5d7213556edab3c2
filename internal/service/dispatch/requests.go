package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocomet/afya-transport/internal/domain/geo"
	"github.com/gocomet/afya-transport/internal/domain/rider"
	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/gocomet/afya-transport/internal/events"
	"github.com/gocomet/afya-transport/internal/service/matching"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/gocomet/afya-transport/pkg/metrics"
	"github.com/google/uuid"
)

// Assignment modes
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// CreateRequestInput is what a requester submits
type CreateRequestInput struct {
	RequesterID   string
	RequesterRole transport.RequesterRole
	Patient       transport.Patient
	Pickup        transport.Pickup
	Destination   transport.Destination
	ServiceType   transport.ServiceType
	Urgency       transport.Urgency
	Notes         string
	PaymentMethod transport.PaymentMethod
	// EstimatedDistance is used when either endpoint lacks GPS coordinates.
	EstimatedDistance float64
}

func (in *CreateRequestInput) normalize() error {
	in.Pickup.Address = strings.TrimSpace(in.Pickup.Address)
	in.Destination.Address = strings.TrimSpace(in.Destination.Address)
	if in.Pickup.Address == "" || in.Destination.Address == "" {
		return transport.ErrMissingEndpoint
	}
	if in.RequesterID == "" {
		return fmt.Errorf("%w: requester id is required", transport.ErrInvalidRequest)
	}

	if in.RequesterRole == "" {
		in.RequesterRole = transport.RoleCaregiver
	}
	if in.ServiceType == "" {
		in.ServiceType = transport.ServiceRoutine
	}
	if in.Urgency == "" {
		in.Urgency = transport.UrgencyNormal
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = transport.PaymentWallet
	}

	switch {
	case !in.RequesterRole.IsValid():
		return fmt.Errorf("%w: unknown requester role %q", transport.ErrInvalidRequest, in.RequesterRole)
	case !in.ServiceType.IsValid():
		return fmt.Errorf("%w: unknown service type %q", transport.ErrInvalidRequest, in.ServiceType)
	case !in.Urgency.IsValid():
		return fmt.Errorf("%w: unknown urgency %q", transport.ErrInvalidRequest, in.Urgency)
	case !in.PaymentMethod.IsValid():
		return fmt.Errorf("%w: unknown payment method %q", transport.ErrInvalidRequest, in.PaymentMethod)
	case in.EstimatedDistance < 0:
		return fmt.Errorf("%w: distance must not be negative", transport.ErrInvalidRequest)
	}

	for _, p := range []*geo.Point{in.Pickup.Location, in.Destination.Location} {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", transport.ErrInvalidRequest, err)
		}
	}
	return nil
}

// CreateRequest prices and stores a new pending request. An emergency with
// a pickup position is offered to the nearest rider straight away; when no
// rider is in range it stays pending for manual pickup.
func (e *Engine) CreateRequest(ctx context.Context, in CreateRequestInput) (*transport.Request, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	distance := in.EstimatedDistance
	if in.Pickup.Location != nil && in.Destination.Location != nil {
		distance = matching.CalculateDistance(*in.Pickup.Location, *in.Destination.Location)
	}

	req := &transport.Request{
		ID:                uuid.NewString(),
		RequesterID:       in.RequesterID,
		RequesterRole:     in.RequesterRole,
		Patient:           in.Patient,
		Pickup:            in.Pickup,
		Destination:       in.Destination,
		ServiceType:       in.ServiceType,
		Urgency:           in.Urgency,
		Notes:             in.Notes,
		EstimatedDistance: distance,
		EstimatedCost:     e.pricing.EstimateCost(in.Urgency, in.ServiceType, distance),
		EstimatedTime:     e.pricing.EstimateMinutes(distance),
		Status:            transport.StatusPending,
		RequestedAt:       e.now(),
		PaymentMethod:     in.PaymentMethod,
		PaymentStatus:     transport.PaymentPending,
	}

	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("store request: %w", err)
	}

	e.logger.Info("Transport request created",
		logger.String("request_id", req.ID),
		logger.String("requester_id", req.RequesterID),
		logger.String("urgency", string(req.Urgency)),
		logger.String("service_type", string(req.ServiceType)),
		logger.Float64("distance_km", req.EstimatedDistance),
		logger.Float64("estimated_cost", req.EstimatedCost),
	)
	metrics.RequestsCreated.WithLabelValues(string(req.Urgency), string(req.ServiceType)).Inc()
	e.nr.RecordRequestCreated(string(req.Urgency), string(req.ServiceType), req.EstimatedCost)
	e.emit(events.RequestCreated, req.ID, req.Clone())

	if !req.IsEmergency() || req.Pickup.Location == nil || !e.autoAssign {
		e.announce(req)
		return req, nil
	}

	assigned, err := e.AutoAssign(ctx, req.ID)
	switch {
	case err == nil:
		return assigned, nil
	case errors.Is(err, transport.ErrNoRiderAvailable):
		e.logger.Warn("No rider in range for emergency, left pending",
			logger.String("request_id", req.ID),
			logger.Float64("radius_km", e.matcher.EmergencyRadius()),
		)
		e.announce(req)
		return req, nil
	case errors.Is(err, transport.ErrInvalidState):
		// Accepted or cancelled by someone else in the meantime.
		return e.store.GetRequest(ctx, req.ID)
	default:
		return nil, err
	}
}

// AutoAssign gives a pending emergency to the nearest online, available
// rider within the emergency radius who has not declined it.
func (e *Engine) AutoAssign(ctx context.Context, requestID string) (*transport.Request, error) {
	start := time.Now()
	var (
		out      *transport.Request
		distance float64
	)

	err := e.store.Update(ctx, func(tx transport.Tx) error {
		req, err := tx.Request(requestID)
		if err != nil {
			return err
		}
		if !req.IsEmergency() || !req.CanAccept() {
			return transport.ErrInvalidState
		}
		if req.Pickup.Location == nil {
			return fmt.Errorf("%w: pickup position is required", transport.ErrInvalidRequest)
		}

		best, ok := e.matcher.Nearest(tx.Riders(), *req.Pickup.Location, e.matcher.EmergencyRadius(), req.Declined())
		if !ok {
			return transport.ErrNoRiderAvailable
		}
		r, err := tx.Rider(best.Rider.ID)
		if err != nil {
			return err
		}
		assign(req, r, transport.StatusRiderAssigned, e.now())

		out = req.Clone()
		distance = best.DistanceKM
		return nil
	})
	if err != nil {
		return nil, err
	}

	latency := time.Since(start)
	e.logger.Info("Emergency auto-assigned",
		logger.String("request_id", out.ID),
		logger.String("rider_id", out.RiderID),
		logger.Float64("distance_km", distance),
		logger.Duration("latency", latency),
	)
	metrics.Assignments.WithLabelValues(ModeAuto).Inc()
	metrics.AssignmentLatency.Observe(latency.Seconds())
	metrics.RideTransitions.WithLabelValues(string(out.Status)).Inc()
	e.nr.RecordAssignment(ModeAuto, distance, float64(latency.Milliseconds()))
	e.offerEmergency(out)
	e.notifyStatus(out)
	e.emit(events.RiderAssigned, out.ID, out)
	return out, nil
}

// AcceptRequest lets a rider take a pending request. When several riders
// race for one request exactly one wins; the others get ErrInvalidState.
func (e *Engine) AcceptRequest(ctx context.Context, requestID, riderID string) (*transport.Request, error) {
	var out *transport.Request

	err := e.store.Update(ctx, func(tx transport.Tx) error {
		req, err := tx.Request(requestID)
		if err != nil {
			return err
		}
		r, err := tx.Rider(riderID)
		if err != nil {
			return err
		}
		if !req.CanAccept() {
			return transport.ErrInvalidState
		}
		if !r.CanTakeRequests() {
			return rider.ErrRiderUnavailable
		}
		assign(req, r, transport.StatusAccepted, e.now())
		out = req.Clone()
		return nil
	})
	if err != nil {
		if errors.Is(err, transport.ErrInvalidState) {
			metrics.AssignmentConflicts.Inc()
		}
		return nil, err
	}

	e.logger.Info("Request accepted",
		logger.String("request_id", out.ID),
		logger.String("rider_id", out.RiderID),
	)
	metrics.Assignments.WithLabelValues(ModeManual).Inc()
	metrics.RideTransitions.WithLabelValues(string(out.Status)).Inc()
	e.nr.RecordAssignment(ModeManual, 0, 0)
	e.notifyStatus(out)
	e.emit(events.RequestAccepted, out.ID, out)
	return out, nil
}

// RejectRequest records that a rider declined a pending request. The rider
// is no longer offered it by auto-assignment or candidate listings.
func (e *Engine) RejectRequest(ctx context.Context, requestID, riderID string) error {
	err := e.store.Update(ctx, func(tx transport.Tx) error {
		req, err := tx.Request(requestID)
		if err != nil {
			return err
		}
		if _, err := tx.Rider(riderID); err != nil {
			return err
		}
		if !req.CanAccept() {
			return transport.ErrInvalidState
		}
		if !req.DeclinedByRider(riderID) {
			req.DeclinedBy = append(req.DeclinedBy, riderID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("Request declined",
		logger.String("request_id", requestID),
		logger.String("rider_id", riderID),
	)
	e.emit(events.RequestRejected, requestID, map[string]string{"request_id": requestID, "rider_id": riderID})
	return nil
}

// StartRide moves an accepted or auto-assigned request to in_progress
func (e *Engine) StartRide(ctx context.Context, requestID string) (*transport.Request, error) {
	out, err := e.transition(ctx, requestID, func(tx transport.Tx, req *transport.Request) error {
		if !req.CanStart() {
			return transport.ErrInvalidState
		}
		at := e.now()
		req.Status = transport.StatusInProgress
		req.StartedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Ride started",
		logger.String("request_id", out.ID),
		logger.String("rider_id", out.RiderID),
	)
	e.notifyStatus(out)
	e.emit(events.RideStarted, out.ID, out)
	return out, nil
}

// CompleteRide finishes an in-progress ride, frees the rider and records the
// ride in the rider's history. actualCost overrides the estimate when set.
// Completing twice fails with ErrInvalidState and changes nothing.
func (e *Engine) CompleteRide(ctx context.Context, requestID string, actualCost *float64) (*transport.Request, error) {
	if actualCost != nil && *actualCost < 0 {
		return nil, transport.ErrInvalidCost
	}

	out, err := e.transition(ctx, requestID, func(tx transport.Tx, req *transport.Request) error {
		if !req.CanComplete() {
			return transport.ErrInvalidState
		}
		r, err := tx.Rider(req.RiderID)
		if err != nil {
			return err
		}

		at := e.now()
		cost := req.EstimatedCost
		if actualCost != nil {
			cost = *actualCost
		}
		req.Status = transport.StatusCompleted
		req.CompletedAt = &at
		req.ActualCost = &cost
		req.PaymentStatus = transport.PaymentPaid

		r.Release(req.ID, at)
		r.CompletedRides++

		tx.RecordRide(rider.CompletedRide{
			RequestID:   req.ID,
			RiderID:     r.ID,
			Earnings:    cost,
			DistanceKM:  req.EstimatedDistance,
			Emergency:   req.IsEmergency(),
			CompletedAt: at,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Ride completed",
		logger.String("request_id", out.ID),
		logger.String("rider_id", out.RiderID),
		logger.Float64("cost", out.FinalCost()),
	)
	e.nr.RecordRideCompleted(out.ID, out.FinalCost(), out.EstimatedDistance, out.IsEmergency())
	e.settle(ctx, out)
	e.notifyStatus(out)
	e.emit(events.RideCompleted, out.ID, out)
	return out, nil
}

// settle hands the completed ride to the wallet. A settlement failure does
// not undo the completion.
func (e *Engine) settle(ctx context.Context, req *transport.Request) {
	if e.settler == nil {
		return
	}
	err := e.settler.SettleRide(ctx, transport.Settlement{
		RequestID:     req.ID,
		RiderID:       req.RiderID,
		RequesterID:   req.RequesterID,
		Amount:        req.FinalCost(),
		PaymentMethod: req.PaymentMethod,
		Emergency:     req.IsEmergency(),
		CompletedAt:   *req.CompletedAt,
	})
	if err != nil {
		e.logger.Warn("Failed to settle ride",
			logger.String("request_id", req.ID),
			logger.String("rider_id", req.RiderID),
			logger.Err(err),
		)
	}
}

// CancelRequest cancels a non-terminal request and frees its rider.
// Cancelling a completed or already cancelled request is ErrInvalidState.
func (e *Engine) CancelRequest(ctx context.Context, requestID, reason string) (*transport.Request, error) {
	out, err := e.transition(ctx, requestID, func(tx transport.Tx, req *transport.Request) error {
		if !req.CanCancel() {
			return transport.ErrInvalidState
		}
		at := e.now()
		if req.Status.HoldsRider() && req.RiderID != "" {
			r, err := tx.Rider(req.RiderID)
			if err != nil {
				return err
			}
			r.Release(req.ID, at)
		}
		req.Status = transport.StatusCancelled
		req.CancelledAt = &at
		req.CancellationReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Request cancelled",
		logger.String("request_id", out.ID),
		logger.String("rider_id", out.RiderID),
		logger.String("reason", reason),
	)
	e.notifyStatus(out)
	e.emit(events.RequestCancelled, out.ID, out)
	return out, nil
}

// transition applies fn to one request inside a store update
func (e *Engine) transition(ctx context.Context, requestID string, fn func(tx transport.Tx, req *transport.Request) error) (*transport.Request, error) {
	var out *transport.Request
	err := e.store.Update(ctx, func(tx transport.Tx) error {
		req, err := tx.Request(requestID)
		if err != nil {
			return err
		}
		if err := fn(tx, req); err != nil {
			return err
		}
		out = req.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RideTransitions.WithLabelValues(string(out.Status)).Inc()
	return out, nil
}

// assign attaches r to req in the given status
func assign(req *transport.Request, r *rider.Rider, status transport.Status, at time.Time) {
	req.Status = status
	req.AcceptedAt = &at
	req.RiderID = r.ID
	req.RiderName = r.Name
	req.RiderPhone = r.Phone
	r.Occupy(req.ID, at)
}

// GetRequest returns one request
func (e *Engine) GetRequest(ctx context.Context, requestID string) (*transport.Request, error) {
	return e.store.GetRequest(ctx, requestID)
}

// ListRequestsByUser returns the requests a user made or rode, newest first
func (e *Engine) ListRequestsByUser(ctx context.Context, userID string) ([]*transport.Request, error) {
	all, err := e.store.ListRequests(ctx)
	if err != nil {
		return nil, err
	}
	var out []*transport.Request
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].RequesterID == userID || all[i].RiderID == userID {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// OpenRequestQuery filters the open request listing
type OpenRequestQuery struct {
	// RiderID hides requests this rider declined.
	RiderID string
	// Location orders non-emergencies by pickup distance instead of age.
	Location *geo.Point
}

// ListOpenRequests returns pending requests, emergencies first
func (e *Engine) ListOpenRequests(ctx context.Context, q OpenRequestQuery) ([]matching.OpenRequest, error) {
	if q.Location != nil {
		if err := q.Location.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", transport.ErrInvalidRequest, err)
		}
	}

	all, err := e.store.ListRequests(ctx)
	if err != nil {
		return nil, err
	}
	var open []*transport.Request
	for _, req := range all {
		if req.Status != transport.StatusPending {
			continue
		}
		if q.RiderID != "" && req.DeclinedByRider(q.RiderID) {
			continue
		}
		open = append(open, req)
	}
	return matching.SortForBrowsing(open, q.Location), nil
}

// ListCandidateRiders returns available riders within radiusKM of loc,
// nearest first. A radius of zero uses the browse radius.
func (e *Engine) ListCandidateRiders(ctx context.Context, loc geo.Point, radiusKM float64) ([]matching.Candidate, error) {
	return e.candidates(ctx, loc, radiusKM, nil)
}

// ListCandidatesForRequest ranks riders around the pickup of a request,
// leaving out riders who declined it.
func (e *Engine) ListCandidatesForRequest(ctx context.Context, requestID string, radiusKM float64) ([]matching.Candidate, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Pickup.Location == nil {
		return nil, fmt.Errorf("%w: pickup position is required", transport.ErrInvalidRequest)
	}
	if radiusKM <= 0 && req.IsEmergency() {
		radiusKM = e.matcher.EmergencyRadius()
	}
	return e.candidates(ctx, *req.Pickup.Location, radiusKM, req.Declined())
}

func (e *Engine) candidates(ctx context.Context, loc geo.Point, radiusKM float64, exclude map[string]bool) ([]matching.Candidate, error) {
	if err := loc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrInvalidRequest, err)
	}
	if radiusKM <= 0 {
		radiusKM = e.matcher.BrowseRadius()
	}

	riders, err := e.store.ListRiders(ctx)
	if err != nil {
		return nil, err
	}
	riders = e.narrow(ctx, riders, loc, radiusKM)
	return e.matcher.Rank(riders, loc, radiusKM, exclude), nil
}

// indexRadius widens a search radius for the location index. Redis measures
// on a slightly larger sphere, so riders on the edge would otherwise drop out
// before Rank applies the exact radius.
func indexRadius(radiusKM float64) float64 {
	return radiusKM*1.001 + 0.01
}

// narrow keeps the riders the location index reports near loc, plus riders
// the index could not hold. The store stays authoritative, so an index
// failure falls back to the full fleet.
func (e *Engine) narrow(ctx context.Context, riders []*rider.Rider, loc geo.Point, radiusKM float64) []*rider.Rider {
	if e.locations == nil {
		return riders
	}
	ids, err := e.locations.Nearby(ctx, loc, indexRadius(radiusKM), 0)
	if err != nil {
		e.logger.Warn("Location index unavailable, scanning all riders", logger.Err(err))
		return riders
	}
	near := make(map[string]bool, len(ids))
	for _, id := range ids {
		near[id] = true
	}
	out := riders[:0]
	for _, r := range riders {
		if near[r.ID] || e.isUnindexed(r.ID) {
			out = append(out, r)
		}
	}
	return out
}
