package transport

import (
	"errors"
	"time"

	"github.com/gocomet/afya-transport/internal/domain/geo"
)

// Errors
var (
	ErrRequestNotFound  = errors.New("transport request not found")
	ErrInvalidState     = errors.New("invalid status transition")
	ErrMissingEndpoint  = errors.New("pickup and destination addresses are required")
	ErrInvalidRequest   = errors.New("invalid transport request")
	ErrInvalidCost      = errors.New("cost must not be negative")
	ErrNoRiderAvailable = errors.New("no rider available in the search radius")
)

// Status represents the lifecycle state of a request
type Status string

const (
	StatusPending       Status = "pending"
	StatusAccepted      Status = "accepted"
	StatusRiderAssigned Status = "rider_assigned"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// IsValid validates the status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRiderAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HoldsRider reports whether a request in this state owns its rider
func (s Status) HoldsRider() bool {
	switch s {
	case StatusAccepted, StatusRiderAssigned, StatusInProgress:
		return true
	}
	return false
}

// Urgency classifies how fast the patient must be moved
type Urgency string

const (
	UrgencyNormal     Urgency = "normal"
	UrgencySemiUrgent Urgency = "semi_urgent"
	UrgencyEmergency  Urgency = "emergency"
)

// IsValid validates the urgency
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyNormal, UrgencySemiUrgent, UrgencyEmergency:
		return true
	}
	return false
}

// ServiceType is the kind of care the trip is for
type ServiceType string

const (
	ServiceANC          ServiceType = "anc"
	ServiceVaccination  ServiceType = "vaccination"
	ServiceEmergency    ServiceType = "emergency"
	ServiceConsultation ServiceType = "consultation"
	ServiceRoutine      ServiceType = "routine"
)

// IsValid validates the service type
func (s ServiceType) IsValid() bool {
	switch s {
	case ServiceANC, ServiceVaccination, ServiceEmergency, ServiceConsultation, ServiceRoutine:
		return true
	}
	return false
}

// RequesterRole is the role of the user who asked for transport
type RequesterRole string

const (
	RoleCaregiver    RequesterRole = "caregiver"
	RoleCHV          RequesterRole = "chv"
	RoleHealthWorker RequesterRole = "health_worker"
)

// IsValid validates the role
func (r RequesterRole) IsValid() bool {
	switch r {
	case RoleCaregiver, RoleCHV, RoleHealthWorker:
		return true
	}
	return false
}

// PaymentMethod is how the trip is paid for
type PaymentMethod string

const (
	PaymentWallet    PaymentMethod = "wallet"
	PaymentSHALoan   PaymentMethod = "sha_loan"
	PaymentCash      PaymentMethod = "cash"
	PaymentInsurance PaymentMethod = "insurance"
)

// IsValid validates the payment method
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentWallet, PaymentSHALoan, PaymentCash, PaymentInsurance:
		return true
	}
	return false
}

// PaymentStatus tracks settlement of the trip fare
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Patient describes who is being transported
type Patient struct {
	Name      string `json:"name"`
	Age       int    `json:"age,omitempty"`
	Condition string `json:"condition,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Pickup is where the rider collects the patient
type Pickup struct {
	Address  string     `json:"address"`
	Location *geo.Point `json:"location,omitempty"`
}

// Destination is the facility the patient is taken to
type Destination struct {
	Address      string     `json:"address"`
	FacilityType string     `json:"facility_type,omitempty"`
	Location     *geo.Point `json:"location,omitempty"`
}

// Request is a transport request and its dispatch state
type Request struct {
	ID            string        `json:"id"`
	RequesterID   string        `json:"requester_id"`
	RequesterRole RequesterRole `json:"requester_role"`
	Patient       Patient       `json:"patient"`
	Pickup        Pickup        `json:"pickup"`
	Destination   Destination   `json:"destination"`
	ServiceType   ServiceType   `json:"service_type"`
	Urgency       Urgency       `json:"urgency"`
	Notes         string        `json:"notes,omitempty"`

	EstimatedDistance float64  `json:"estimated_distance_km"`
	EstimatedCost     float64  `json:"estimated_cost"`
	EstimatedTime     int      `json:"estimated_time_minutes"`
	ActualCost        *float64 `json:"actual_cost,omitempty"`

	Status             Status     `json:"status"`
	RequestedAt        time.Time  `json:"requested_at"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`

	RiderID    string `json:"rider_id,omitempty"`
	RiderName  string `json:"rider_name,omitempty"`
	RiderPhone string `json:"rider_phone,omitempty"`

	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	// DeclinedBy lists riders who rejected the request; they are not offered it again.
	DeclinedBy []string `json:"declined_by,omitempty"`
}

// CanAccept checks if a rider can take the request
func (r *Request) CanAccept() bool {
	return r.Status == StatusPending
}

// CanStart checks if the ride can begin. An auto-assigned emergency starts
// straight from rider_assigned.
func (r *Request) CanStart() bool {
	return r.Status == StatusAccepted || r.Status == StatusRiderAssigned
}

// CanComplete checks if the ride can be completed
func (r *Request) CanComplete() bool {
	return r.Status == StatusInProgress
}

// CanCancel checks if the request can still be cancelled
func (r *Request) CanCancel() bool {
	return !r.Status.IsTerminal()
}

// IsEmergency reports whether the request is an emergency
func (r *Request) IsEmergency() bool {
	return r.Urgency == UrgencyEmergency
}

// DeclinedByRider reports whether riderID rejected the request
func (r *Request) DeclinedByRider(riderID string) bool {
	for _, id := range r.DeclinedBy {
		if id == riderID {
			return true
		}
	}
	return false
}

// Declined returns the decliners as a set
func (r *Request) Declined() map[string]bool {
	set := make(map[string]bool, len(r.DeclinedBy))
	for _, id := range r.DeclinedBy {
		set[id] = true
	}
	return set
}

// FinalCost is the actual cost when recorded, else the estimate
func (r *Request) FinalCost() float64 {
	if r.ActualCost != nil {
		return *r.ActualCost
	}
	return r.EstimatedCost
}

// Clone returns a deep copy safe to mutate
func (r *Request) Clone() *Request {
	c := *r
	c.Pickup.Location = clonePoint(r.Pickup.Location)
	c.Destination.Location = clonePoint(r.Destination.Location)
	c.ActualCost = cloneFloat(r.ActualCost)
	c.AcceptedAt = cloneTime(r.AcceptedAt)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	if r.DeclinedBy != nil {
		c.DeclinedBy = append([]string(nil), r.DeclinedBy...)
	}
	return &c
}

func clonePoint(p *geo.Point) *geo.Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Settlement describes a completed ride for the wallet
type Settlement struct {
	RequestID     string        `json:"request_id"`
	RiderID       string        `json:"rider_id"`
	RequesterID   string        `json:"requester_id"`
	Amount        float64       `json:"amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Emergency     bool          `json:"emergency"`
	CompletedAt   time.Time     `json:"completed_at"`
}
