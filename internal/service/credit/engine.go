package credit

import (
	"context"
	"sync"
	"time"

	domain "github.com/gocomet/afya-transport/internal/domain/credit"
	"github.com/gocomet/afya-transport/internal/domain/wallet"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/gocomet/afya-transport/pkg/metrics"
	"github.com/gocomet/afya-transport/pkg/monitoring"
)

// HistorySource returns a consistent copy of a user's financial history
type HistorySource interface {
	Snapshot(ctx context.Context, userID string) (*wallet.History, error)
}

// ProfileStore is a shared cache of computed profiles
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*domain.Profile, bool, error)
	Set(ctx context.Context, p *domain.Profile) error
	Invalidate(ctx context.Context, userID string) error
}

// Engine serves credit profiles, recomputing them when the history changes
type Engine struct {
	source HistorySource
	shared ProfileStore
	config Config
	logger *logger.Logger
	nr     *monitoring.NewRelicApp
	now    func() time.Time

	mu          sync.Mutex
	profiles    map[string]domain.Profile
	generations map[string]uint64
}

// Option configures an Engine
type Option func(*Engine)

// WithProfileStore shares computed profiles across instances
func WithProfileStore(s ProfileStore) Option {
	return func(e *Engine) { e.shared = s }
}

// WithConfig overrides the scoring weights
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithMonitoring records assessments in New Relic
func WithMonitoring(nr *monitoring.NewRelicApp) Option {
	return func(e *Engine) { e.nr = nr }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a credit engine
func NewEngine(source HistorySource, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:      source,
		config:      DefaultConfig(),
		logger:      log.Named("credit"),
		nr:          monitoring.Disabled(),
		now:         time.Now,
		profiles:    make(map[string]domain.Profile),
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetCreditProfile returns the cached profile or computes a fresh one
func (e *Engine) GetCreditProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	now := e.now()
	e.mu.Lock()
	p, ok := e.profiles[userID]
	e.mu.Unlock()
	if ok && !p.Stale(now) {
		return &p, nil
	}

	if e.shared != nil {
		p, ok, err := e.shared.Get(ctx, userID)
		if err != nil {
			e.logger.Warn("Profile cache read failed", logger.String("user_id", userID), logger.Err(err))
		} else if ok && !p.Stale(now) {
			e.remember(*p, e.generation(userID))
			return p, nil
		}
	}
	return e.RefreshCreditProfile(ctx, userID)
}

// RefreshCreditProfile recomputes the profile from the user's history
func (e *Engine) RefreshCreditProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	gen := e.generation(userID)
	h, err := e.source.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := Score(userID, h, e.now(), e.config)
	if e.remember(p, gen) && e.shared != nil {
		if err := e.shared.Set(ctx, &p); err != nil {
			e.logger.Warn("Profile cache write failed", logger.String("user_id", userID), logger.Err(err))
		}
	}

	e.logger.Info("Credit profile assessed",
		logger.String("user_id", userID),
		logger.Int("score", p.Score),
		logger.String("trust_level", string(p.TrustLevel)),
		logger.String("sha_eligibility", string(p.SHAEligibility)),
	)
	metrics.CreditScores.Observe(float64(p.Score))
	e.nr.RecordCreditAssessment(p.Score, string(p.TrustLevel))
	return &p, nil
}

// InvalidateProfile drops the cached profile of userID. A refresh that read
// the history before the invalidation does not repopulate the cache.
func (e *Engine) InvalidateProfile(ctx context.Context, userID string) {
	e.mu.Lock()
	e.generations[userID]++
	delete(e.profiles, userID)
	e.mu.Unlock()

	if e.shared != nil {
		if err := e.shared.Invalidate(ctx, userID); err != nil {
			e.logger.Warn("Profile cache invalidation failed", logger.String("user_id", userID), logger.Err(err))
		}
	}
}

func (e *Engine) generation(userID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generations[userID]
}

// remember caches p unless the history changed since generation gen
func (e *Engine) remember(p domain.Profile, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generations[p.UserID] != gen {
		return false
	}
	e.profiles[p.UserID] = p
	return true
}
