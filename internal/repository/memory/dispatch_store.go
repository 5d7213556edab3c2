package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gocomet/afya-transport/internal/domain/rider"
	"github.com/gocomet/afya-transport/internal/domain/transport"
)

// DispatchStore keeps requests, riders and ride history in memory. All
// mutations of existing records go through Update, which holds the write
// lock for the whole function so a request and its rider always change
// together.
type DispatchStore struct {
	mu       sync.RWMutex
	requests map[string]*transport.Request
	riders   map[string]*rider.Rider
	rides    map[string][]rider.CompletedRide // by rider id
}

// NewDispatchStore creates an empty store
func NewDispatchStore() *DispatchStore {
	return &DispatchStore{
		requests: make(map[string]*transport.Request),
		riders:   make(map[string]*rider.Rider),
		rides:    make(map[string][]rider.CompletedRide),
	}
}

func (s *DispatchStore) CreateRequest(ctx context.Context, req *transport.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return transport.ErrInvalidRequest
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

func (s *DispatchStore) GetRequest(ctx context.Context, id string) (*transport.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, transport.ErrRequestNotFound
	}
	return req.Clone(), nil
}

func (s *DispatchStore) ListRequests(ctx context.Context) ([]*transport.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*transport.Request, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out, nil
}

func (s *DispatchStore) SaveRider(ctx context.Context, r *rider.Rider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.riders[r.ID] = r.Clone()
	return nil
}

func (s *DispatchStore) GetRider(ctx context.Context, id string) (*rider.Rider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.riders[id]
	if !ok {
		return nil, rider.ErrRiderNotFound
	}
	return r.Clone(), nil
}

func (s *DispatchStore) ListRiders(ctx context.Context) ([]*rider.Rider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedRiders(s.riders, nil), nil
}

func (s *DispatchStore) CompletedRides(ctx context.Context, riderID string) ([]rider.CompletedRide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyRides(s.rides[riderID]), nil
}

// Update stages every change fn makes and applies them only when fn
// returns nil.
func (s *DispatchStore) Update(ctx context.Context, fn func(tx transport.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &dispatchTx{
		store:    s,
		requests: make(map[string]*transport.Request),
		riders:   make(map[string]*rider.Rider),
		rides:    make(map[string][]rider.CompletedRide),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, req := range tx.requests {
		s.requests[id] = req
	}
	for id, r := range tx.riders {
		s.riders[id] = r
	}
	for id, rides := range tx.rides {
		s.rides[id] = rides
	}
	return nil
}

// dispatchTx hands out copies on first access and keeps them until commit.
type dispatchTx struct {
	store    *DispatchStore
	requests map[string]*transport.Request
	riders   map[string]*rider.Rider
	rides    map[string][]rider.CompletedRide
}

func (tx *dispatchTx) Request(id string) (*transport.Request, error) {
	if req, ok := tx.requests[id]; ok {
		return req, nil
	}
	req, ok := tx.store.requests[id]
	if !ok {
		return nil, transport.ErrRequestNotFound
	}
	staged := req.Clone()
	tx.requests[id] = staged
	return staged, nil
}

func (tx *dispatchTx) Rider(id string) (*rider.Rider, error) {
	if r, ok := tx.riders[id]; ok {
		return r, nil
	}
	r, ok := tx.store.riders[id]
	if !ok {
		return nil, rider.ErrRiderNotFound
	}
	staged := r.Clone()
	tx.riders[id] = staged
	return staged, nil
}

func (tx *dispatchTx) PutRider(r *rider.Rider) {
	tx.riders[r.ID] = r.Clone()
}

func (tx *dispatchTx) Riders() []*rider.Rider {
	return sortedRiders(tx.store.riders, tx.riders)
}

func (tx *dispatchTx) CompletedRides(riderID string) []rider.CompletedRide {
	if rides, ok := tx.rides[riderID]; ok {
		return copyRides(rides)
	}
	return copyRides(tx.store.rides[riderID])
}

func (tx *dispatchTx) RecordRide(ride rider.CompletedRide) {
	rides, ok := tx.rides[ride.RiderID]
	if !ok {
		rides = copyRides(tx.store.rides[ride.RiderID])
	}
	for i := range rides {
		if rides[i].RequestID == ride.RequestID {
			rides[i] = ride
			tx.rides[ride.RiderID] = rides
			return
		}
	}
	tx.rides[ride.RiderID] = append(rides, ride)
}

// sortedRiders merges committed riders with staged ones, ordered by id.
func sortedRiders(committed, staged map[string]*rider.Rider) []*rider.Rider {
	out := make([]*rider.Rider, 0, len(committed)+len(staged))
	for id, r := range committed {
		if s, ok := staged[id]; ok {
			r = s
		}
		out = append(out, r.Clone())
	}
	for id, r := range staged {
		if _, ok := committed[id]; !ok {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyRides(rides []rider.CompletedRide) []rider.CompletedRide {
	if len(rides) == 0 {
		return nil
	}
	out := make([]rider.CompletedRide, len(rides))
	for i, ride := range rides {
		out[i] = ride
		if ride.Rating != nil {
			v := *ride.Rating
			out[i].Rating = &v
		}
	}
	return out
}
