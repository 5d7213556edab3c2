package transport

import (
	"context"

	"github.com/gocomet/afya-transport/internal/domain/rider"
)

// Tx is the view of the store inside one atomic update. Values returned by
// Request and Rider are staged copies; every change made to them commits
// together when the update function returns nil and is discarded otherwise.
type Tx interface {
	// Request returns the staged request or ErrRequestNotFound
	Request(id string) (*Request, error)

	// Rider returns the staged rider or rider.ErrRiderNotFound
	Rider(id string) (*rider.Rider, error)

	// PutRider stages a new or replaced rider
	PutRider(r *rider.Rider)

	// Riders returns read-only copies of every rider, staged changes included
	Riders() []*rider.Rider

	// CompletedRides returns the ride history of a rider
	CompletedRides(riderID string) []rider.CompletedRide

	// RecordRide inserts or replaces a history record keyed by request id
	RecordRide(ride rider.CompletedRide)
}

// Store holds requests, riders and ride history for the dispatch engine
type Store interface {
	// CreateRequest stores a new request
	CreateRequest(ctx context.Context, req *Request) error

	// GetRequest returns a copy of a request
	GetRequest(ctx context.Context, id string) (*Request, error)

	// ListRequests returns copies of every request ordered by RequestedAt
	ListRequests(ctx context.Context) ([]*Request, error)

	// SaveRider creates or replaces a rider
	SaveRider(ctx context.Context, r *rider.Rider) error

	// GetRider returns a copy of a rider
	GetRider(ctx context.Context, id string) (*rider.Rider, error)

	// ListRiders returns copies of every rider
	ListRiders(ctx context.Context) ([]*rider.Rider, error)

	// CompletedRides returns the ride history of a rider
	CompletedRides(ctx context.Context, riderID string) ([]rider.CompletedRide, error)

	// Update runs fn atomically against a consistent view of the store
	Update(ctx context.Context, fn func(tx Tx) error) error
}
