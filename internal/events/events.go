package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	RequestCreated     = "transport.request_created"
	RiderAssigned      = "transport.rider_assigned"
	RequestAccepted    = "transport.request_accepted"
	RequestRejected    = "transport.request_rejected"
	RideStarted        = "transport.ride_started"
	RideCompleted      = "transport.ride_completed"
	RequestCancelled   = "transport.request_cancelled"
	RideRated          = "transport.ride_rated"
	TransactionCreated = "wallet.transaction_created"
	TransactionSettled = "wallet.transaction_settled"
	LoanUpdated        = "wallet.loan_updated"
)

// Event is a fact emitted after a state change has been committed
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// New stamps an event with a fresh id
func New(eventType, key string, at time.Time, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: at,
		Payload:    payload,
	}
}

// Publisher delivers events to an external sink
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(ctx context.Context, evt Event) error { return nil }

// Fanout publishes every event to all sinks and joins their errors
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
