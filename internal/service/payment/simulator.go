package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gocomet/afya-transport/pkg/logger"
)

// SimulatorConfig holds mobile money simulator configuration
type SimulatorConfig struct {
	Delay       time.Duration
	SuccessRate float64 // 0..1
	Seed        int64
}

// MobileMoneySimulator stands in for M-Pesa and Airtel Money. It waits for
// the configured delay and then succeeds with the configured probability.
type MobileMoneySimulator struct {
	config SimulatorConfig
	logger *logger.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewMobileMoneySimulator creates a simulator
func NewMobileMoneySimulator(log *logger.Logger, config SimulatorConfig) *MobileMoneySimulator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MobileMoneySimulator{
		config: config,
		logger: log,
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

func (s *MobileMoneySimulator) Name() string {
	return "mobile_money"
}

// Charge simulates the processor round trip
func (s *MobileMoneySimulator) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	if s.config.Delay > 0 {
		timer := time.NewTimer(s.config.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Receipt{}, &Failure{Provider: s.Name(), Reason: ctx.Err().Error(), Retryable: true}
		}
	}

	s.mu.Lock()
	roll := s.rnd.Float64()
	s.mu.Unlock()

	if roll >= s.config.SuccessRate {
		s.logger.Warn("Simulated mobile money charge declined",
			logger.String("transaction_id", req.TransactionID),
			logger.String("method", string(req.Method)),
		)
		return Receipt{}, &Failure{Provider: s.Name(), Reason: "declined by processor", Retryable: true}
	}

	ref := fmt.Sprintf("txn_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
	return Receipt{Reference: ref, Provider: s.Name()}, nil
}
