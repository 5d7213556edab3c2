package rider

import (
	"errors"
	"time"

	"github.com/gocomet/afya-transport/internal/domain/geo"
)

var (
	ErrRiderNotFound    = errors.New("rider not found")
	ErrInvalidRider     = errors.New("invalid rider data")
	ErrRiderUnavailable = errors.New("rider is not available")
	ErrRiderBusy        = errors.New("rider has an active request")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
)

// Rider is a motorbike rider with live availability and location
type Rider struct {
	ID              string    `json:"rider_id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	CurrentLocation geo.Point `json:"current_location"`
	IsOnline        bool      `json:"is_online"`
	IsAvailable     bool      `json:"is_available"`
	Rating          float64   `json:"rating"`
	CompletedRides  int       `json:"completed_rides"`
	// ActiveRequestID is set while IsAvailable is false.
	ActiveRequestID string    `json:"active_request_id,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsValid validates the rider entity
func (r *Rider) IsValid() error {
	if r.ID == "" || r.Name == "" || r.Phone == "" {
		return ErrInvalidRider
	}
	if r.Rating < 0 || r.Rating > 5 {
		return ErrInvalidRider
	}
	return r.CurrentLocation.Validate()
}

// CanTakeRequests reports whether the rider may be matched to a request
func (r *Rider) CanTakeRequests() bool {
	return r.IsOnline && r.IsAvailable
}

// Occupy marks the rider as assigned to requestID
func (r *Rider) Occupy(requestID string, at time.Time) {
	r.IsAvailable = false
	r.ActiveRequestID = requestID
	r.UpdatedAt = at
}

// Release frees the rider from requestID. It is a no-op when the rider is
// attached to a different request.
func (r *Rider) Release(requestID string, at time.Time) bool {
	if r.ActiveRequestID != requestID {
		return false
	}
	r.IsAvailable = true
	r.ActiveRequestID = ""
	r.UpdatedAt = at
	return true
}

// Clone returns a copy safe to mutate
func (r *Rider) Clone() *Rider {
	c := *r
	return &c
}
