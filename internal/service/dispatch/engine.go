package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/gocomet/afya-transport/internal/domain/geo"
	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/gocomet/afya-transport/internal/events"
	"github.com/gocomet/afya-transport/internal/service/matching"
	"github.com/gocomet/afya-transport/internal/service/pricing"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/gocomet/afya-transport/pkg/monitoring"
	"github.com/gocomet/afya-transport/pkg/websocket"
)

// Notifier pushes real-time messages to connected users
type Notifier interface {
	SendToUser(userID string, message interface{}) bool
	BroadcastToRequest(requestID string, message websocket.Message)
	BroadcastToAudience(audience string, message interface{}) int
}

// Settler books the money side of a completed ride
type Settler interface {
	SettleRide(ctx context.Context, s transport.Settlement) error
}

// LocationIndex is an external geo index of online riders
type LocationIndex interface {
	Track(ctx context.Context, riderID string, p geo.Point) error
	Untrack(ctx context.Context, riderID string) error
	Nearby(ctx context.Context, p geo.Point, radiusKM float64, count int) ([]string, error)
}

// Engine coordinates transport requests and rider availability. Every state
// transition is one store update so a request and its rider never diverge;
// notifications, settlement and event delivery run after the update commits.
type Engine struct {
	store     transport.Store
	matcher   *matching.Service
	pricing   *pricing.Service
	logger    *logger.Logger
	notifier  Notifier
	settler   Settler
	publisher events.Publisher
	locations LocationIndex
	nr        *monitoring.NewRelicApp
	now       func() time.Time

	autoAssign     bool
	publishTimeout time.Duration

	// riders the location index failed to hold; candidate search keeps them
	indexMu   sync.Mutex
	unindexed map[string]bool

	background sync.WaitGroup
}

// Option configures an Engine
type Option func(*Engine)

// WithNotifier sends status changes to riders and requesters
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithSettler books completed rides in the wallet
func WithSettler(s Settler) Option {
	return func(e *Engine) { e.settler = s }
}

// WithEventPublisher mirrors committed transitions to p
func WithEventPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLocationIndex keeps rider positions in an external geo index and
// uses it to narrow candidate searches
func WithLocationIndex(idx LocationIndex) Option {
	return func(e *Engine) { e.locations = idx }
}

// WithMonitoring records custom events in New Relic
func WithMonitoring(nr *monitoring.NewRelicApp) Option {
	return func(e *Engine) { e.nr = nr }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAutoAssign toggles emergency auto-assignment on creation
func WithAutoAssign(enabled bool) Option {
	return func(e *Engine) { e.autoAssign = enabled }
}

// NewEngine creates a dispatch engine
func NewEngine(store transport.Store, matcher *matching.Service, prices *pricing.Service, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		matcher:        matcher,
		pricing:        prices,
		logger:         log.Named("dispatch"),
		publisher:      events.Nop{},
		nr:             monitoring.Disabled(),
		now:            time.Now,
		autoAssign:     true,
		publishTimeout: 5 * time.Second,
		unindexed:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Wait blocks until background deliveries have finished
func (e *Engine) Wait() {
	e.background.Wait()
}

// emit publishes evt without blocking the caller
func (e *Engine) emit(eventType, key string, payload interface{}) {
	evt := events.New(eventType, key, e.now(), payload)
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.publishTimeout)
		defer cancel()
		if err := e.publisher.Publish(ctx, evt); err != nil {
			e.logger.Warn("Failed to publish dispatch event",
				logger.String("event_type", evt.Type),
				logger.String("key", evt.Key),
				logger.Err(err),
			)
		}
	}()
}

// trackRider mirrors rider presence into the location index
func (e *Engine) trackRider(ctx context.Context, riderID string, p geo.Point, online bool) {
	if e.locations == nil {
		return
	}
	var err error
	if online {
		err = e.locations.Track(ctx, riderID, p)
	} else {
		err = e.locations.Untrack(ctx, riderID)
	}
	e.indexMu.Lock()
	if err != nil && online {
		e.unindexed[riderID] = true
	} else {
		delete(e.unindexed, riderID)
	}
	e.indexMu.Unlock()

	if err != nil {
		e.logger.Warn("Failed to update rider location index",
			logger.String("rider_id", riderID),
			logger.Err(err),
		)
	}
}

func (e *Engine) isUnindexed(riderID string) bool {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()
	return e.unindexed[riderID]
}
