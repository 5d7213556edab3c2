package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gocomet/afya-transport/internal/domain/geo"
	"github.com/gocomet/afya-transport/internal/domain/rider"
	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/gocomet/afya-transport/internal/events"
	"github.com/gocomet/afya-transport/internal/repository/memory"
	"github.com/gocomet/afya-transport/internal/service/matching"
	"github.com/gocomet/afya-transport/internal/service/pricing"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/gocomet/afya-transport/pkg/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pickup = geo.Point{Latitude: -1.1743, Longitude: 36.8356}

// north returns a point km kilometres north of p
func north(p geo.Point, km float64) geo.Point {
	return geo.Point{Latitude: p.Latitude + km/111.195, Longitude: p.Longitude}
}

type fakeNotifier struct {
	mu        sync.Mutex
	direct    map[string][]websocket.Message
	followed  map[string][]websocket.Message
	audiences map[string][]websocket.Message
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		direct:    make(map[string][]websocket.Message),
		followed:  make(map[string][]websocket.Message),
		audiences: make(map[string][]websocket.Message),
	}
}

func (n *fakeNotifier) SendToUser(userID string, message interface{}) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct[userID] = append(n.direct[userID], message.(websocket.Message))
	return true
}

func (n *fakeNotifier) BroadcastToRequest(requestID string, message websocket.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.followed[requestID] = append(n.followed[requestID], message)
}

func (n *fakeNotifier) BroadcastToAudience(audience string, message interface{}) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.audiences[audience] = append(n.audiences[audience], message.(websocket.Message))
	return 1
}

func (n *fakeNotifier) types(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.direct[userID] {
		out = append(out, m.Type)
	}
	return out
}

type fakeSettler struct {
	mu    sync.Mutex
	calls []transport.Settlement
}

func (s *fakeSettler) SettleRide(ctx context.Context, st transport.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, st)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine    *Engine
	store     *memory.DispatchStore
	notifier  *fakeNotifier
	settler   *fakeSettler
	publisher *recordingPublisher
	clock     *testClock
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:     memory.NewDispatchStore(),
		notifier:  newFakeNotifier(),
		settler:   &fakeSettler{},
		publisher: &recordingPublisher{},
		clock:     &testClock{now: time.Date(2026, 4, 14, 9, 30, 0, 0, time.UTC)},
	}
	base := []Option{
		WithNotifier(h.notifier),
		WithSettler(h.settler),
		WithEventPublisher(h.publisher),
		WithClock(h.clock.Now),
	}
	h.engine = NewEngine(
		h.store,
		matching.NewService(logger.NewNop(), matching.Config{}),
		pricing.NewService(pricing.DefaultConfig()),
		logger.NewNop(),
		append(base, opts...)...,
	)
	t.Cleanup(h.engine.Wait)
	return h
}

// addRider registers an online rider km north of the pickup
func (h *harness) addRider(t *testing.T, id string, km float64, available bool) {
	t.Helper()
	ctx := context.Background()
	_, err := h.engine.RegisterRider(ctx, RegisterRiderInput{
		ID:       id,
		Name:     "Rider " + id,
		Phone:    "+2547000" + id,
		Location: north(pickup, km),
	})
	require.NoError(t, err)
	_, err = h.engine.SetRiderOnline(ctx, id, true)
	require.NoError(t, err)

	if !available {
		// Park the rider on an unrelated accepted request so availability
		// stays consistent with an assignment.
		req := h.create(t, transport.UrgencyNormal, nil)
		_, err := h.engine.AcceptRequest(ctx, req.ID, id)
		require.NoError(t, err)
	}
}

func (h *harness) create(t *testing.T, urgency transport.Urgency, at *geo.Point) *transport.Request {
	t.Helper()
	req, err := h.engine.CreateRequest(context.Background(), CreateRequestInput{
		RequesterID:       "chv-1",
		RequesterRole:     transport.RoleCHV,
		Patient:           transport.Patient{Name: "Achieng", Age: 27},
		Pickup:            transport.Pickup{Address: "Githurai 45", Location: at},
		Destination:       transport.Destination{Address: "Kiambu Level 5", FacilityType: "hospital"},
		ServiceType:       transport.ServiceConsultation,
		Urgency:           urgency,
		EstimatedDistance: 5,
	})
	require.NoError(t, err)
	return req
}

// assertConservation checks that every unavailable rider holds exactly one
// live request and every live request holds an unavailable rider.
func (h *harness) assertConservation(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	riders, err := h.store.ListRiders(ctx)
	require.NoError(t, err)
	requests, err := h.store.ListRequests(ctx)
	require.NoError(t, err)

	holders := make(map[string][]string)
	for _, req := range requests {
		if req.Status.HoldsRider() {
			require.NotEmpty(t, req.RiderID, "request %s holds no rider", req.ID)
			holders[req.RiderID] = append(holders[req.RiderID], req.ID)
		}
	}
	for _, r := range riders {
		if r.IsAvailable {
			assert.Empty(t, holders[r.ID], "available rider %s is assigned", r.ID)
			assert.Empty(t, r.ActiveRequestID)
			continue
		}
		require.Len(t, holders[r.ID], 1, "unavailable rider %s", r.ID)
		assert.Equal(t, holders[r.ID][0], r.ActiveRequestID)
	}
}

func TestCreateRequest_EmergencyPricing(t *testing.T) {
	h := newHarness(t)
	dest := north(pickup, 8)

	req, err := h.engine.CreateRequest(context.Background(), CreateRequestInput{
		RequesterID: "caregiver-1",
		Pickup:      transport.Pickup{Address: "Kasarani", Location: &pickup},
		Destination: transport.Destination{Address: "Kenyatta National Hospital", Location: &dest},
		ServiceType: transport.ServiceEmergency,
		Urgency:     transport.UrgencyEmergency,
	})
	require.NoError(t, err)

	assert.InDelta(t, 8.0, req.EstimatedDistance, 0.001)
	assert.Equal(t, 866.0, req.EstimatedCost)
	assert.Equal(t, 16, req.EstimatedTime)
	assert.Equal(t, transport.StatusPending, req.Status, "no rider registered")
	assert.Equal(t, transport.PaymentWallet, req.PaymentMethod)
	assert.Equal(t, transport.RoleCaregiver, req.RequesterRole)
}

func TestCreateRequest_Validation(t *testing.T) {
	h := newHarness(t)
	bad := geo.Point{Latitude: 95, Longitude: 0}

	tests := []struct {
		name string
		in   CreateRequestInput
		want error
	}{
		{
			name: "Missing pickup",
			in:   CreateRequestInput{RequesterID: "u", Destination: transport.Destination{Address: "x"}},
			want: transport.ErrMissingEndpoint,
		},
		{
			name: "Blank destination",
			in:   CreateRequestInput{RequesterID: "u", Pickup: transport.Pickup{Address: "x"}, Destination: transport.Destination{Address: "  "}},
			want: transport.ErrMissingEndpoint,
		},
		{
			name: "Unknown urgency",
			in: CreateRequestInput{
				RequesterID: "u",
				Pickup:      transport.Pickup{Address: "a"},
				Destination: transport.Destination{Address: "b"},
				Urgency:     "whenever",
			},
			want: transport.ErrInvalidRequest,
		},
		{
			name: "Bad coordinates",
			in: CreateRequestInput{
				RequesterID: "u",
				Pickup:      transport.Pickup{Address: "a", Location: &bad},
				Destination: transport.Destination{Address: "b"},
			},
			want: transport.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateRequest(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateRequest_FallsBackToCallerDistance(t *testing.T) {
	h := newHarness(t)
	req := h.create(t, transport.UrgencyNormal, &pickup)

	assert.Equal(t, 5.0, req.EstimatedDistance, "destination has no coordinates")
	assert.Equal(t, 500.0, req.EstimatedCost)
}

func TestAutoAssign_PicksNearestAvailableRider(t *testing.T) {
	h := newHarness(t)
	h.addRider(t, "a", 2.5, true)
	h.addRider(t, "b", 3.2, false)

	req := h.create(t, transport.UrgencyEmergency, &pickup)

	assert.Equal(t, transport.StatusRiderAssigned, req.Status)
	assert.Equal(t, "a", req.RiderID)
	assert.Equal(t, "Rider a", req.RiderName)
	require.NotNil(t, req.AcceptedAt)

	r, err := h.engine.GetRider(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, r.IsAvailable)
	assert.Equal(t, req.ID, r.ActiveRequestID)

	assert.Contains(t, h.notifier.types("a"), MsgEmergencyAssignment)
	h.assertConservation(t)
}

func TestAutoAssign_NoRiderInRangeStaysPending(t *testing.T) {
	h := newHarness(t)
	h.addRider(t, "far", 20, true)

	req := h.create(t, transport.UrgencyEmergency, &pickup)
	assert.Equal(t, transport.StatusPending, req.Status)
	assert.Empty(t, req.RiderID)

	r, _ := h.engine.GetRider(context.Background(), "far")
	assert.True(t, r.IsAvailable)
}

func TestAutoAssign_Disabled(t *testing.T) {
	h := newHarness(t, WithAutoAssign(false))
	h.addRider(t, "a", 1, true)

	req := h.create(t, transport.UrgencyEmergency, &pickup)
	assert.Equal(t, transport.StatusPending, req.Status)
}

func TestAutoAssign_NonEmergencyRejected(t *testing.T) {
	h := newHarness(t)
	h.addRider(t, "a", 1, true)
	req := h.create(t, transport.UrgencySemiUrgent, &pickup)

	_, err := h.engine.AutoAssign(context.Background(), req.ID)
	assert.ErrorIs(t, err, transport.ErrInvalidState)
}

func TestAcceptRequest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addRider(t, "a", 1, true)
	h.addRider(t, "b", 1, true)
	req := h.create(t, transport.UrgencyNormal, &pickup)

	t.Run("Unknown request", func(t *testing.T) {
		_, err := h.engine.AcceptRequest(ctx, "missing", "a")
		assert.ErrorIs(t, err, transport.ErrRequestNotFound)
	})

	t.Run("Unknown rider", func(t *testing.T) {
		_, err := h.engine.AcceptRequest(ctx, req.ID, "ghost")
		assert.ErrorIs(t, err, rider.ErrRiderNotFound)
	})

	t.Run("Accepted", func(t *testing.T) {
		got, err := h.engine.AcceptRequest(ctx, req.ID, "a")
		require.NoError(t, err)
		assert.Equal(t, transport.StatusAccepted, got.Status)
		assert.Equal(t, "a", got.RiderID)
		assert.NotNil(t, got.AcceptedAt)
	})

	t.Run("Second rider loses", func(t *testing.T) {
		_, err := h.engine.AcceptRequest(ctx, req.ID, "b")
		assert.ErrorIs(t, err, transport.ErrInvalidState)

		r, _ := h.engine.GetRider(ctx, "b")
		assert.True(t, r.IsAvailable)
	})

	t.Run("Busy rider cannot take another", func(t *testing.T) {
		other := h.create(t, transport.UrgencyNormal, &pickup)
		_, err := h.engine.AcceptRequest(ctx, other.ID, "a")
		assert.ErrorIs(t, err, rider.ErrRiderUnavailable)
	})

	h.assertConservation(t)
}

func TestAcceptRequest_OfflineRider(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.engine.RegisterRider(ctx, RegisterRiderInput{ID: "z", Name: "Z", Phone: "1", Location: pickup})
	require.NoError(t, err)
	req := h.create(t, transport.UrgencyNormal, &pickup)

	_, err = h.engine.AcceptRequest(ctx, req.ID, "z")
	assert.ErrorIs(t, err, rider.ErrRiderUnavailable)
}

func TestAcceptRequest_ConcurrentExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	const n = 25
	for i := 0; i < n; i++ {
		h.addRider(t, fmt.Sprintf("r%02d", i), float64(i)/10, true)
	}
	req := h.create(t, transport.UrgencyNormal, &pickup)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.engine.AcceptRequest(ctx, req.ID, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, id)
				return
			}
			assert.ErrorIs(t, err, transport.ErrInvalidState)
			conflicts++
		}(fmt.Sprintf("r%02d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, n-1, conflicts)

	got, err := h.engine.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], got.RiderID)
	h.assertConservation(t)
}

func TestAutoAssignAndAcceptRace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithAutoAssign(false))
	h.addRider(t, "a", 1, true)
	h.addRider(t, "b", 2, true)
	req := h.create(t, transport.UrgencyEmergency, &pickup)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = h.engine.AutoAssign(ctx, req.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = h.engine.AcceptRequest(ctx, req.ID, "b")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, transport.ErrInvalidState)
		}
	}
	assert.Equal(t, 1, succeeded)
	h.assertConservation(t)
}

func TestRejectRequest_ExcludesRider(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithAutoAssign(false))
	h.addRider(t, "near", 1, true)
	h.addRider(t, "far", 4, true)
	req := h.create(t, transport.UrgencyEmergency, &pickup)

	require.NoError(t, h.engine.RejectRequest(ctx, req.ID, "near"))
	require.NoError(t, h.engine.RejectRequest(ctx, req.ID, "near"), "repeat decline is harmless")

	got, _ := h.engine.GetRequest(ctx, req.ID)
	assert.Equal(t, []string{"near"}, got.DeclinedBy)
	assert.Equal(t, transport.StatusPending, got.Status)

	candidates, err := h.engine.ListCandidatesForRequest(ctx, req.ID, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "far", candidates[0].Rider.ID)

	open, err := h.engine.ListOpenRequests(ctx, OpenRequestQuery{RiderID: "near"})
	require.NoError(t, err)
	assert.Empty(t, open)

	assigned, err := h.engine.AutoAssign(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "far", assigned.RiderID)

	err = h.engine.RejectRequest(ctx, req.ID, "near")
	assert.ErrorIs(t, err, transport.ErrInvalidState, "only pending requests can be declined")
}

func TestRideLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addRider(t, "a", 1, true)
	req := h.create(t, transport.UrgencyNormal, &pickup)

	_, err := h.engine.StartRide(ctx, req.ID)
	assert.ErrorIs(t, err, transport.ErrInvalidState, "cannot start before acceptance")

	_, err = h.engine.CompleteRide(ctx, req.ID, nil)
	assert.ErrorIs(t, err, transport.ErrInvalidState)

	_, err = h.engine.AcceptRequest(ctx, req.ID, "a")
	require.NoError(t, err)

	started, err := h.engine.StartRide(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, transport.StatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)

	h.clock.Advance(20 * time.Minute)
	cost := 650.0
	done, err := h.engine.CompleteRide(ctx, req.ID, &cost)
	require.NoError(t, err)
	assert.Equal(t, transport.StatusCompleted, done.Status)
	assert.Equal(t, transport.PaymentPaid, done.PaymentStatus)
	require.NotNil(t, done.ActualCost)
	assert.Equal(t, 650.0, *done.ActualCost)

	r, _ := h.engine.GetRider(ctx, "a")
	assert.True(t, r.IsAvailable)
	assert.Equal(t, 1, r.CompletedRides)

	require.Len(t, h.settler.calls, 1)
	assert.Equal(t, "a", h.settler.calls[0].RiderID)
	assert.Equal(t, 650.0, h.settler.calls[0].Amount)

	h.engine.Wait()
	assert.ElementsMatch(t, []string{
		events.RequestCreated,
		events.RequestAccepted,
		events.RideStarted,
		events.RideCompleted,
	}, h.publisher.types())

	h.assertConservation(t)
}

func TestCompleteRide_Twice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addRider(t, "a", 1, true)
	req := h.create(t, transport.UrgencyEmergency, &pickup)
	require.Equal(t, transport.StatusRiderAssigned, req.Status)

	_, err := h.engine.StartRide(ctx, req.ID)
	require.NoError(t, err, "auto-assigned rides start directly")

	_, err = h.engine.CompleteRide(ctx, req.ID, nil)
	require.NoError(t, err)

	_, err = h.engine.CompleteRide(ctx, req.ID, nil)
	assert.ErrorIs(t, err, transport.ErrInvalidState)

	r, _ := h.engine.GetRider(ctx, "a")
	assert.Equal(t, 1, r.CompletedRides, "rider credited once")
	assert.True(t, r.IsAvailable)
	assert.Len(t, h.settler.calls, 1, "paid once")

	rides, _ := h.store.CompletedRides(ctx, "a")
	assert.Len(t, rides, 1)
}

func TestCompleteRide_DefaultsToEstimate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addRider(t, "a", 1, true)
	req := h.create(t, transport.UrgencyEmergency, &pickup)
	_, err := h.engine.StartRide(ctx, req.ID)
	require.NoError(t, err)

	negative := -1.0
	_, err = h.engine.CompleteRide(ctx, req.ID, &negative)
	assert.ErrorIs(t, err, transport.ErrInvalidCost)

	done, err := h.engine.CompleteRide(ctx, req.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, req.EstimatedCost, *done.ActualCost)
}

func TestCancelRequest(t *testing.T) {
	ctx := context.Background()

	states := []struct {
		name    string
		prepare func(t *testing.T, h *harness, id string)
	}{
		{"Pending", func(t *testing.T, h *harness, id string) {}},
		{"Accepted", func(t *testing.T, h *harness, id string) {
			_, err := h.engine.AcceptRequest(ctx, id, "a")
			require.NoError(t, err)
		}},
		{"In progress", func(t *testing.T, h *harness, id string) {
			_, err := h.engine.AcceptRequest(ctx, id, "a")
			require.NoError(t, err)
			_, err = h.engine.StartRide(ctx, id)
			require.NoError(t, err)
		}},
	}

	for _, tt := range states {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addRider(t, "a", 1, true)
			req := h.create(t, transport.UrgencyNormal, &pickup)
			tt.prepare(t, h, req.ID)

			got, err := h.engine.CancelRequest(ctx, req.ID, "patient recovered")
			require.NoError(t, err)
			assert.Equal(t, transport.StatusCancelled, got.Status)
			assert.Equal(t, "patient recovered", got.CancellationReason)
			require.NotNil(t, got.CancelledAt)

			r, _ := h.engine.GetRider(ctx, "a")
			assert.True(t, r.IsAvailable)
			h.assertConservation(t)

			_, err = h.engine.CancelRequest(ctx, req.ID, "again")
			assert.ErrorIs(t, err, transport.ErrInvalidState, "cancelling twice is rejected")
		})
	}

	t.Run("Completed", func(t *testing.T) {
		h := newHarness(t)
		h.addRider(t, "a", 1, true)
		req := h.create(t, transport.UrgencyEmergency, &pickup)
		_, err := h.engine.StartRide(ctx, req.ID)
		require.NoError(t, err)
		_, err = h.engine.CompleteRide(ctx, req.ID, nil)
		require.NoError(t, err)

		_, err = h.engine.CancelRequest(ctx, req.ID, "")
		assert.ErrorIs(t, err, transport.ErrInvalidState)
	})

	t.Run("Unknown", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.CancelRequest(ctx, "missing", "")
		assert.ErrorIs(t, err, transport.ErrRequestNotFound)
	})
}

func TestListOpenRequests_EmergencyFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithAutoAssign(false))

	normal := h.create(t, transport.UrgencyNormal, &pickup)
	h.clock.Advance(time.Minute)
	emergency := h.create(t, transport.UrgencyEmergency, &pickup)
	h.clock.Advance(time.Minute)
	newer := h.create(t, transport.UrgencySemiUrgent, &pickup)

	open, err := h.engine.ListOpenRequests(ctx, OpenRequestQuery{})
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, emergency.ID, open[0].Request.ID)
	assert.Equal(t, newer.ID, open[1].Request.ID)
	assert.Equal(t, normal.ID, open[2].Request.ID)
}

func TestListCandidateRiders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addRider(t, "a", 3, true)
	h.addRider(t, "b", 1, true)
	h.addRider(t, "c", 12, true)

	got, err := h.engine.ListCandidateRiders(ctx, pickup, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Rider.ID)
	assert.Equal(t, "a", got[1].Rider.ID)

	got, err = h.engine.ListCandidateRiders(ctx, pickup, 15)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSetRiderOnline_BusyRiderCannotLeave(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addRider(t, "a", 1, true)
	req := h.create(t, transport.UrgencyNormal, &pickup)
	_, err := h.engine.AcceptRequest(ctx, req.ID, "a")
	require.NoError(t, err)

	_, err = h.engine.SetRiderOnline(ctx, "a", false)
	assert.ErrorIs(t, err, rider.ErrRiderBusy)

	_, err = h.engine.CancelRequest(ctx, req.ID, "")
	require.NoError(t, err)

	r, err := h.engine.SetRiderOnline(ctx, "a", false)
	require.NoError(t, err)
	assert.False(t, r.IsOnline)
}

func TestRateRideAndStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addRider(t, "a", 1, true)

	complete := func(urgency transport.Urgency, cost float64) string {
		req := h.create(t, urgency, &pickup)
		if req.Status == transport.StatusPending {
			_, err := h.engine.AcceptRequest(ctx, req.ID, "a")
			require.NoError(t, err)
		}
		_, err := h.engine.StartRide(ctx, req.ID)
		require.NoError(t, err)
		_, err = h.engine.CompleteRide(ctx, req.ID, &cost)
		require.NoError(t, err)
		return req.ID
	}

	first := complete(transport.UrgencyEmergency, 900)
	h.clock.Advance(10 * 24 * time.Hour)
	second := complete(transport.UrgencyNormal, 400)
	h.clock.Advance(2 * time.Hour)
	third := complete(transport.UrgencyNormal, 350)

	_, err := h.engine.RateRide(ctx, first, 5)
	require.NoError(t, err)
	_, err = h.engine.RateRide(ctx, second, 3)
	require.NoError(t, err)
	r, err := h.engine.RateRide(ctx, second, 4)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, r.Rating, 1e-9, "re-rating replaces the earlier score")

	_, err = h.engine.RateRide(ctx, third, 6)
	assert.ErrorIs(t, err, rider.ErrInvalidRating)

	pending := h.create(t, transport.UrgencyNormal, nil)
	_, err = h.engine.RateRide(ctx, pending.ID, 4)
	assert.ErrorIs(t, err, transport.ErrInvalidState)

	all, err := h.engine.GetRiderStats(ctx, "a", rider.WindowAll)
	require.NoError(t, err)
	assert.Equal(t, 3, all.CompletedRides)
	assert.Equal(t, 1650.0, all.Earnings)
	assert.Equal(t, 1, all.EmergencyRides)
	assert.InDelta(t, 4.5, all.Rating, 1e-9)
	assert.InDelta(t, 15.0, all.TotalDistance, 1e-9)

	week, err := h.engine.GetRiderStats(ctx, "a", rider.WindowWeek)
	require.NoError(t, err)
	assert.Equal(t, 2, week.CompletedRides)
	assert.Equal(t, 750.0, week.Earnings)
	assert.Equal(t, 0, week.EmergencyRides)

	_, err = h.engine.GetRiderStats(ctx, "a", "decade")
	assert.ErrorIs(t, err, rider.ErrInvalidWindow)

	_, err = h.engine.GetRiderStats(ctx, "ghost", rider.WindowAll)
	assert.ErrorIs(t, err, rider.ErrRiderNotFound)
}

func TestListRequestsByUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addRider(t, "a", 1, true)

	first := h.create(t, transport.UrgencyNormal, &pickup)
	h.clock.Advance(time.Minute)
	second := h.create(t, transport.UrgencyNormal, &pickup)
	_, err := h.engine.AcceptRequest(ctx, second.ID, "a")
	require.NoError(t, err)

	mine, err := h.engine.ListRequestsByUser(ctx, "chv-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	ridden, err := h.engine.ListRequestsByUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, ridden, 1)
	assert.Equal(t, second.ID, ridden[0].ID)
}

type fakeIndex struct {
	mu      sync.Mutex
	tracked map[string]geo.Point
	fail    bool
	refuse  map[string]bool
	scale   float64 // distance skew of the index against haversine
}

func (f *fakeIndex) Track(ctx context.Context, id string, p geo.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse[id] {
		return fmt.Errorf("invalid longitude,latitude pair")
	}
	f.tracked[id] = p
	return nil
}

func (f *fakeIndex) Untrack(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracked, id)
	return nil
}

func (f *fakeIndex) Nearby(ctx context.Context, p geo.Point, radiusKM float64, count int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("index down")
	}
	scale := f.scale
	if scale == 0 {
		scale = 1
	}
	var ids []string
	for id, loc := range f.tracked {
		if matching.CalculateDistance(p, loc)*scale <= radiusKM {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func TestLocationIndex_TracksPresence(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndex{tracked: make(map[string]geo.Point)}
	h := newHarness(t, WithLocationIndex(idx))
	h.addRider(t, "a", 1, true)
	h.addRider(t, "b", 2, true)

	assert.Len(t, idx.tracked, 2)

	_, err := h.engine.UpdateRiderLocation(ctx, "b", north(pickup, 3))
	require.NoError(t, err)
	assert.InDelta(t, north(pickup, 3).Latitude, idx.tracked["b"].Latitude, 1e-9)

	_, err = h.engine.SetRiderOnline(ctx, "a", false)
	require.NoError(t, err)
	assert.NotContains(t, idx.tracked, "a")

	got, err := h.engine.ListCandidateRiders(ctx, pickup, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Rider.ID)

	idx.fail = true
	got, err = h.engine.ListCandidateRiders(ctx, pickup, 10)
	require.NoError(t, err, "falls back to the store")
	assert.Len(t, got, 1)
}

// TestLocationIndex_EdgeAndUntracked tests riders on the radius edge and
// riders the index refused
func TestLocationIndex_EdgeAndUntracked(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndex{
		tracked: make(map[string]geo.Point),
		refuse:  map[string]bool{"polar": true},
		scale:   6372.797 / 6371,
	}
	h := newHarness(t, WithLocationIndex(idx))
	h.addRider(t, "edge", 9.999, true)
	h.addRider(t, "polar", 2, true)
	h.addRider(t, "far", 10.5, true)

	assert.NotContains(t, idx.tracked, "polar")

	got, err := h.engine.ListCandidateRiders(ctx, pickup, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.Rider.ID)
	}
	assert.Equal(t, []string{"polar", "edge"}, ids)

	idx.mu.Lock()
	delete(idx.refuse, "polar")
	idx.mu.Unlock()
	_, err = h.engine.UpdateRiderLocation(ctx, "polar", north(pickup, 12))
	require.NoError(t, err)
	assert.Contains(t, idx.tracked, "polar")

	got, err = h.engine.ListCandidateRiders(ctx, pickup, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "edge", got[0].Rider.ID)
}

func TestNotifications_StatusUpdates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addRider(t, "a", 1, true)
	req := h.create(t, transport.UrgencyNormal, &pickup)

	_, err := h.engine.AcceptRequest(ctx, req.ID, "a")
	require.NoError(t, err)

	assert.Contains(t, h.notifier.types("chv-1"), MsgRequestStatus)
	h.notifier.mu.Lock()
	followed := h.notifier.followed[req.ID]
	h.notifier.mu.Unlock()
	require.NotEmpty(t, followed)
	update := followed[len(followed)-1].Data.(StatusUpdate)
	assert.Equal(t, transport.StatusAccepted, update.Status)
	assert.Equal(t, "a", update.RiderID)
}

func TestNotifications_AnnounceOpenRequests(t *testing.T) {
	h := newHarness(t)
	h.addRider(t, "a", 1, true)

	h.create(t, transport.UrgencyNormal, &pickup)
	h.create(t, transport.UrgencyEmergency, &pickup)

	h.notifier.mu.Lock()
	announced := h.notifier.audiences[websocket.AudienceRider]
	h.notifier.mu.Unlock()
	require.Len(t, announced, 1, "the auto-assigned emergency is not announced")
	assert.Equal(t, MsgNewRequest, announced[0].Type)
	assert.Equal(t, transport.UrgencyNormal, announced[0].Data.(*transport.Request).Urgency)
}
