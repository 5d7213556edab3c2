package wallet

import (
	"context"
	"sync"
	"time"

	domain "github.com/gocomet/afya-transport/internal/domain/wallet"
	"github.com/gocomet/afya-transport/internal/events"
	"github.com/gocomet/afya-transport/internal/service/payment"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/gocomet/afya-transport/pkg/monitoring"
)

// HistoryListener is told when a user's financial history changed
type HistoryListener interface {
	InvalidateProfile(ctx context.Context, userID string)
}

// HistoryListenerFunc adapts a function to HistoryListener
type HistoryListenerFunc func(ctx context.Context, userID string)

func (f HistoryListenerFunc) InvalidateProfile(ctx context.Context, userID string) {
	f(ctx, userID)
}

// LoanConfig holds loan policy
type LoanConfig struct {
	PaymentInterval time.Duration
	DefaultLoanType string
}

// DefaultLoanConfig returns the monthly repayment schedule
func DefaultLoanConfig() LoanConfig {
	return LoanConfig{
		PaymentInterval: 30 * 24 * time.Hour,
		DefaultLoanType: "micro_loan",
	}
}

// Service records wallet transactions and manages loans. Processor calls run
// outside the ledger lock; their outcome is applied in a second update.
type Service struct {
	ledger    domain.Ledger
	provider  payment.Provider
	logger    *logger.Logger
	listener  HistoryListener
	publisher events.Publisher
	nr        *monitoring.NewRelicApp
	now       func() time.Time
	loans     LoanConfig

	chargeTimeout  time.Duration
	publishTimeout time.Duration

	background sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithHistoryListener registers l to hear about settled transactions
func WithHistoryListener(l HistoryListener) Option {
	return func(s *Service) { s.listener = l }
}

// WithEventPublisher mirrors transactions and loan changes to p
func WithEventPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMonitoring records payments in New Relic
func WithMonitoring(nr *monitoring.NewRelicApp) Option {
	return func(s *Service) { s.nr = nr }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLoanConfig overrides the loan policy
func WithLoanConfig(cfg LoanConfig) Option {
	return func(s *Service) {
		if cfg.PaymentInterval > 0 {
			s.loans.PaymentInterval = cfg.PaymentInterval
		}
		if cfg.DefaultLoanType != "" {
			s.loans.DefaultLoanType = cfg.DefaultLoanType
		}
	}
}

// WithChargeTimeout bounds a single processor call
func WithChargeTimeout(d time.Duration) Option {
	return func(s *Service) { s.chargeTimeout = d }
}

// NewService creates a wallet service
func NewService(ledger domain.Ledger, provider payment.Provider, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:         ledger,
		provider:       provider,
		logger:         log.Named("wallet"),
		publisher:      events.Nop{},
		nr:             monitoring.Disabled(),
		now:            time.Now,
		loans:          DefaultLoanConfig(),
		chargeTimeout:  30 * time.Second,
		publishTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until in-flight settlements and event deliveries finish
func (s *Service) Wait() {
	s.background.Wait()
}

// OpenAccount returns the account of userID, creating it when missing
func (s *Service) OpenAccount(ctx context.Context, userID string) (*domain.Account, error) {
	if userID == "" {
		return nil, domain.ErrInvalidTransaction
	}
	var out *domain.Account
	err := s.ledger.Update(ctx, func(tx domain.LedgerTx) error {
		out = tx.OpenAccount(userID, s.now()).Clone()
		return nil
	})
	return out, err
}

// GetAccount returns the balances of userID
func (s *Service) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	return s.ledger.GetAccount(ctx, userID)
}

// Snapshot returns a consistent copy of everything recorded for userID
func (s *Service) Snapshot(ctx context.Context, userID string) (*domain.History, error) {
	return s.ledger.History(ctx, userID)
}

func (s *Service) emit(eventType, key string, payload interface{}) {
	evt := events.New(eventType, key, s.now(), payload)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn("Failed to publish wallet event",
				logger.String("event_type", evt.Type),
				logger.String("key", evt.Key),
				logger.Err(err),
			)
		}
	}()
}

func (s *Service) historyChanged(ctx context.Context, userID string) {
	if s.listener != nil {
		s.listener.InvalidateProfile(ctx, userID)
	}
}
