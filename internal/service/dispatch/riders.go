package dispatch

import (
	"context"
	"strings"

	"github.com/gocomet/afya-transport/internal/domain/geo"
	"github.com/gocomet/afya-transport/internal/domain/rider"
	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/gocomet/afya-transport/internal/events"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/google/uuid"
)

// RegisterRiderInput describes a rider joining the fleet
type RegisterRiderInput struct {
	ID       string
	Name     string
	Phone    string
	Location geo.Point
}

// RegisterRider adds a rider, offline and available. Registering an existing
// id updates the profile and location but leaves availability alone.
func (e *Engine) RegisterRider(ctx context.Context, in RegisterRiderInput) (*rider.Rider, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	candidate := &rider.Rider{
		ID:              in.ID,
		Name:            strings.TrimSpace(in.Name),
		Phone:           strings.TrimSpace(in.Phone),
		CurrentLocation: in.Location,
	}
	if err := candidate.IsValid(); err != nil {
		return nil, err
	}

	var out *rider.Rider
	err := e.store.Update(ctx, func(tx transport.Tx) error {
		at := e.now()
		r, err := tx.Rider(in.ID)
		if err != nil {
			candidate.IsAvailable = true
			candidate.UpdatedAt = at
			tx.PutRider(candidate)
			out = candidate.Clone()
			return nil
		}
		r.Name = candidate.Name
		r.Phone = candidate.Phone
		r.CurrentLocation = candidate.CurrentLocation
		r.UpdatedAt = at
		out = r.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.IsOnline {
		e.trackRider(ctx, out.ID, out.CurrentLocation, true)
	}
	e.logger.Info("Rider registered", logger.String("rider_id", out.ID))
	return out, nil
}

// GetRider returns one rider
func (e *Engine) GetRider(ctx context.Context, riderID string) (*rider.Rider, error) {
	return e.store.GetRider(ctx, riderID)
}

// UpdateRiderLocation records the rider's current position
func (e *Engine) UpdateRiderLocation(ctx context.Context, riderID string, p geo.Point) (*rider.Rider, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out, err := e.updateRider(ctx, riderID, func(r *rider.Rider) error {
		r.CurrentLocation = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.IsOnline {
		e.trackRider(ctx, out.ID, out.CurrentLocation, true)
	}
	return out, nil
}

// SetRiderOnline toggles whether the rider receives offers. A rider with an
// active request cannot go offline.
func (e *Engine) SetRiderOnline(ctx context.Context, riderID string, online bool) (*rider.Rider, error) {
	out, err := e.updateRider(ctx, riderID, func(r *rider.Rider) error {
		if !online && r.ActiveRequestID != "" {
			return rider.ErrRiderBusy
		}
		r.IsOnline = online
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.trackRider(ctx, out.ID, out.CurrentLocation, online)
	e.logger.Info("Rider presence changed",
		logger.String("rider_id", out.ID),
		logger.Bool("online", online),
	)
	return out, nil
}

func (e *Engine) updateRider(ctx context.Context, riderID string, fn func(r *rider.Rider) error) (*rider.Rider, error) {
	var out *rider.Rider
	err := e.store.Update(ctx, func(tx transport.Tx) error {
		r, err := tx.Rider(riderID)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		r.UpdatedAt = e.now()
		out = r.Clone()
		return nil
	})
	return out, err
}

// RateRide stores the requester's rating of a completed ride and refreshes
// the rider's mean rating. Rating again replaces the earlier score.
func (e *Engine) RateRide(ctx context.Context, requestID string, score float64) (*rider.Rider, error) {
	if score < 1 || score > 5 {
		return nil, rider.ErrInvalidRating
	}

	var out *rider.Rider
	err := e.store.Update(ctx, func(tx transport.Tx) error {
		req, err := tx.Request(requestID)
		if err != nil {
			return err
		}
		if req.Status != transport.StatusCompleted || req.RiderID == "" {
			return transport.ErrInvalidState
		}
		r, err := tx.Rider(req.RiderID)
		if err != nil {
			return err
		}

		rides := tx.CompletedRides(r.ID)
		for _, ride := range rides {
			if ride.RequestID != req.ID {
				continue
			}
			v := score
			ride.Rating = &v
			tx.RecordRide(ride)
			break
		}
		if mean, ok := rider.MeanRating(tx.CompletedRides(r.ID)); ok {
			r.Rating = mean
		}
		r.UpdatedAt = e.now()
		out = r.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(events.RideRated, requestID, map[string]interface{}{
		"request_id": requestID,
		"rider_id":   out.ID,
		"rating":     score,
	})
	return out, nil
}

// GetRiderStats summarises a rider's completed rides in the window
func (e *Engine) GetRiderStats(ctx context.Context, riderID string, window rider.Window) (rider.Stats, error) {
	if _, err := e.store.GetRider(ctx, riderID); err != nil {
		return rider.Stats{}, err
	}
	rides, err := e.store.CompletedRides(ctx, riderID)
	if err != nil {
		return rider.Stats{}, err
	}
	return rider.Summarize(riderID, rides, window, e.now())
}
