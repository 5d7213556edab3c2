package credit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	domain "github.com/gocomet/afya-transport/internal/domain/credit"
	"github.com/gocomet/afya-transport/internal/domain/wallet"
	"github.com/gocomet/afya-transport/internal/repository/memory"
	walletsvc "github.com/gocomet/afya-transport/internal/service/wallet"
	"github.com/gocomet/afya-transport/internal/service/payment"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func txn(typ wallet.TransactionType, status wallet.TransactionStatus, age time.Duration) *wallet.Transaction {
	return &wallet.Transaction{
		ID:            fmt.Sprintf("%s-%d", typ, age),
		Type:          typ,
		Amount:        decimal.NewFromInt(100),
		PaymentMethod: wallet.MethodWallet,
		Status:        status,
		Timestamp:     now.Add(-age),
	}
}

func loan(status wallet.LoanStatus) *wallet.Loan {
	return &wallet.Loan{ID: string(status), Status: status}
}

// TestScore_EmptyHistory tests that a user with no history gets the floor
func TestScore_EmptyHistory(t *testing.T) {
	p := Score("new-user", &wallet.History{}, now, DefaultConfig())

	assert.Equal(t, 300, p.Score)
	assert.Equal(t, domain.TrustBronze, p.TrustLevel)
	assert.Equal(t, domain.EligibilityDenied, p.SHAEligibility)
	assert.Equal(t, 0.0, p.LoanReadiness)
	assert.Equal(t, 0.0, p.Factors.CommunityParticipation)
	assert.Equal(t, now, p.LastUpdated)
}

// TestScore_Factors tests each additive component
func TestScore_Factors(t *testing.T) {
	day := 24 * time.Hour
	h := &wallet.History{
		Account: wallet.Account{
			Balance:        decimal.NewFromInt(1200),
			SavingsBalance: decimal.NewFromInt(5000),
		},
		Transactions: []*wallet.Transaction{
			txn(wallet.TxContribution, wallet.TxCompleted, 1*day),
			txn(wallet.TxContribution, wallet.TxCompleted, 2*day),
			txn(wallet.TxSHAPayment, wallet.TxCompleted, 3*day),
			txn(wallet.TxDeposit, wallet.TxCompleted, 4*day),
			txn(wallet.TxDeposit, wallet.TxPending, 5*day),
			txn(wallet.TxDeposit, wallet.TxFailed, 6*day),
			txn(wallet.TxDeposit, wallet.TxCompleted, 100*day),
		},
		Loans: []*wallet.Loan{
			loan(wallet.LoanCompleted),
			loan(wallet.LoanCompleted),
			loan(wallet.LoanActive),
		},
	}

	p := Score("u", h, now, DefaultConfig())

	assert.Equal(t, 100.0, p.Factors.PaymentHistory)
	assert.Equal(t, 50.0, p.Factors.SavingsConsistency)
	assert.Equal(t, 50.0, p.Factors.RecentActivity, "failed and old transactions do not count")
	assert.Equal(t, 30.0, p.Factors.CommunityParticipation)
	assert.Equal(t, 530, p.Score)
	assert.Equal(t, domain.TrustBronze, p.TrustLevel)
	assert.Equal(t, domain.EligibilityPending, p.SHAEligibility)
	assert.InDelta(t, 41.8, p.LoanReadiness, 1e-9)
	assert.Equal(t, 100.0, p.PaymentHistory)
	assert.Equal(t, 7, p.TransactionCount)
	assert.Equal(t, 1, p.ActiveLoans)
	assert.Equal(t, 1200.0, p.WalletBalance)
}

// TestScore_Caps tests that every component saturates
func TestScore_Caps(t *testing.T) {
	h := &wallet.History{Account: wallet.Account{SavingsBalance: decimal.NewFromInt(1_000_000)}}
	for i := 0; i < 10; i++ {
		h.Loans = append(h.Loans, loan(wallet.LoanCompleted))
	}
	for i := 0; i < 30; i++ {
		h.Transactions = append(h.Transactions, txn(wallet.TxContribution, wallet.TxCompleted, time.Duration(i)*time.Hour))
	}

	p := Score("u", h, now, DefaultConfig())
	assert.Equal(t, 200.0, p.Factors.PaymentHistory)
	assert.Equal(t, 150.0, p.Factors.SavingsConsistency)
	assert.Equal(t, 100.0, p.Factors.RecentActivity)
	assert.Equal(t, 50.0, p.Factors.CommunityParticipation)
	assert.Equal(t, 800, p.Score)
	assert.Equal(t, domain.TrustPlatinum, p.TrustLevel)
	assert.InDelta(t, 90.9, p.LoanReadiness, 0.01)
}

// TestLoanReadiness tests the readiness percentage across the score range
func TestLoanReadiness(t *testing.T) {
	tests := []struct {
		score    int
		expected float64
	}{
		{300, 0},
		{575, 50},
		{800, 90.9},
		{850, 100},
		{900, 100},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("score %d", tt.score), func(t *testing.T) {
			assert.InDelta(t, tt.expected, loanReadiness(tt.score), 0.01)
		})
	}
}

// TestScore_OverduePenaltyClamped tests that penalties never go below the floor
func TestScore_OverduePenaltyClamped(t *testing.T) {
	h := &wallet.History{Loans: []*wallet.Loan{
		loan(wallet.LoanOverdue),
		loan(wallet.LoanOverdue),
		loan(wallet.LoanCompleted),
	}}

	p := Score("u", h, now, DefaultConfig())
	assert.Equal(t, -150.0, p.Factors.PaymentHistory)
	assert.Equal(t, 300, p.Score)
	assert.Equal(t, 2, p.ActiveLoans)
	assert.Equal(t, 33.0, p.PaymentHistory)
}

// TestScore_Bounds tests arbitrary histories stay within range
func TestScore_Bounds(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	statuses := []wallet.LoanStatus{wallet.LoanPending, wallet.LoanActive, wallet.LoanCompleted, wallet.LoanOverdue, wallet.LoanRejected}
	types := []wallet.TransactionType{wallet.TxDeposit, wallet.TxContribution, wallet.TxSHAPayment, wallet.TxReward}

	for i := 0; i < 500; i++ {
		h := &wallet.History{Account: wallet.Account{SavingsBalance: decimal.NewFromInt(rnd.Int63n(100_000))}}
		for j := rnd.Intn(8); j > 0; j-- {
			h.Loans = append(h.Loans, loan(statuses[rnd.Intn(len(statuses))]))
		}
		for j := rnd.Intn(40); j > 0; j-- {
			age := time.Duration(rnd.Intn(200*24)) * time.Hour
			h.Transactions = append(h.Transactions, txn(types[rnd.Intn(len(types))], wallet.TxCompleted, age))
		}

		p := Score("u", h, now, DefaultConfig())
		require.GreaterOrEqual(t, p.Score, domain.MinScore)
		require.LessOrEqual(t, p.Score, domain.MaxScore)
		require.GreaterOrEqual(t, p.LoanReadiness, 0.0)
		require.LessOrEqual(t, p.LoanReadiness, 100.0)
		require.Equal(t, domain.TrustLevelFor(p.Score), p.TrustLevel)
	}
}

// TestTiers tests the score boundaries of trust levels and eligibility
func TestTiers(t *testing.T) {
	tests := []struct {
		score       int
		trust       domain.TrustLevel
		eligibility domain.EligibilityStatus
	}{
		{300, domain.TrustBronze, domain.EligibilityDenied},
		{499, domain.TrustBronze, domain.EligibilityDenied},
		{500, domain.TrustBronze, domain.EligibilityPending},
		{549, domain.TrustBronze, domain.EligibilityPending},
		{550, domain.TrustSilver, domain.EligibilityPending},
		{600, domain.TrustSilver, domain.EligibilityApproved},
		{650, domain.TrustGold, domain.EligibilityApproved},
		{749, domain.TrustGold, domain.EligibilityApproved},
		{750, domain.TrustPlatinum, domain.EligibilityApproved},
		{850, domain.TrustPlatinum, domain.EligibilityApproved},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("score %d", tt.score), func(t *testing.T) {
			assert.Equal(t, tt.trust, domain.TrustLevelFor(tt.score))
			assert.Equal(t, tt.eligibility, domain.EligibilityFor(tt.score))
			assert.NotEqual(t, domain.EligibilityNotAssessed, domain.EligibilityFor(tt.score))
		})
	}
}

type fakeSource struct {
	mu        sync.Mutex
	histories map[string]*wallet.History
	reads     int
}

func (s *fakeSource) Snapshot(ctx context.Context, userID string) (*wallet.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	h, ok := s.histories[userID]
	if !ok {
		return nil, wallet.ErrAccountNotFound
	}
	return h, nil
}

type fakeStore struct {
	profiles map[string]domain.Profile
}

func (s *fakeStore) Get(ctx context.Context, userID string) (*domain.Profile, bool, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (s *fakeStore) Set(ctx context.Context, p *domain.Profile) error {
	s.profiles[p.UserID] = *p
	return nil
}

func (s *fakeStore) Invalidate(ctx context.Context, userID string) error {
	delete(s.profiles, userID)
	return nil
}

func TestEngine_CachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{histories: map[string]*wallet.History{"u": {}}}
	store := &fakeStore{profiles: make(map[string]domain.Profile)}
	engine := NewEngine(source, logger.NewNop(), WithProfileStore(store), WithClock(func() time.Time { return now }))

	first, err := engine.GetCreditProfile(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 300, first.Score)
	assert.Contains(t, store.profiles, "u")

	_, err = engine.GetCreditProfile(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, source.reads)

	source.histories["u"] = &wallet.History{Loans: []*wallet.Loan{loan(wallet.LoanCompleted)}}
	engine.InvalidateProfile(ctx, "u")
	assert.NotContains(t, store.profiles, "u")

	refreshed, err := engine.GetCreditProfile(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 350, refreshed.Score)
	assert.Equal(t, 2, source.reads)

	forced, err := engine.RefreshCreditProfile(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 350, forced.Score)
	assert.Equal(t, 3, source.reads)
}

// TestEngine_ExpiresAgedActivity tests that cached profiles are recomputed
// once recent activity leaves the window
func TestEngine_ExpiresAgedActivity(t *testing.T) {
	ctx := context.Background()
	clock := now
	source := &fakeSource{histories: map[string]*wallet.History{
		"u": {Transactions: []*wallet.Transaction{txn(wallet.TxDeposit, wallet.TxCompleted, 0)}},
	}}
	store := &fakeStore{profiles: make(map[string]domain.Profile)}
	engine := NewEngine(source, logger.NewNop(), WithProfileStore(store), WithClock(func() time.Time { return clock }))

	first, err := engine.GetCreditProfile(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 310, first.Score)
	assert.Equal(t, 10.0, first.Factors.RecentActivity)
	require.NotNil(t, first.ValidUntil)
	assert.Equal(t, now.Add(90*24*time.Hour), *first.ValidUntil)

	clock = now.Add(89 * 24 * time.Hour)
	cached, err := engine.GetCreditProfile(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 310, cached.Score)
	assert.Equal(t, 1, source.reads)

	clock = now.Add(120 * 24 * time.Hour)
	aged, err := engine.GetCreditProfile(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 300, aged.Score)
	assert.Equal(t, 0.0, aged.Factors.RecentActivity)
	assert.Nil(t, aged.ValidUntil)
	assert.Equal(t, 2, source.reads)
	assert.Equal(t, 300, store.profiles["u"].Score)
}

// TestEngine_SkipsStaleSharedProfile tests that an aged shared entry is recomputed
func TestEngine_SkipsStaleSharedProfile(t *testing.T) {
	ctx := context.Background()
	expired := now.Add(-time.Hour)
	source := &fakeSource{histories: map[string]*wallet.History{"u": {}}}
	store := &fakeStore{profiles: map[string]domain.Profile{
		"u": {UserID: "u", Score: 310, ValidUntil: &expired},
	}}
	engine := NewEngine(source, logger.NewNop(), WithProfileStore(store), WithClock(func() time.Time { return now }))

	p, err := engine.GetCreditProfile(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 300, p.Score)
	assert.Equal(t, 1, source.reads)
}

func TestEngine_ReadsSharedStore(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{histories: map[string]*wallet.History{}}
	store := &fakeStore{profiles: map[string]domain.Profile{
		"u": {UserID: "u", Score: 612, TrustLevel: domain.TrustSilver},
	}}
	engine := NewEngine(source, logger.NewNop(), WithProfileStore(store))

	p, err := engine.GetCreditProfile(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 612, p.Score)
	assert.Equal(t, 0, source.reads)
}

func TestEngine_UnknownUser(t *testing.T) {
	engine := NewEngine(&fakeSource{histories: map[string]*wallet.History{}}, logger.NewNop())

	_, err := engine.GetCreditProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, wallet.ErrAccountNotFound)
}

type instantProvider struct{}

func (instantProvider) Name() string { return "instant" }

func (instantProvider) Charge(ctx context.Context, req payment.ChargeRequest) (payment.Receipt, error) {
	return payment.Receipt{Reference: "ok", Provider: "instant"}, nil
}

// TestEngine_FollowsWallet tests that settled transactions refresh the score
func TestEngine_FollowsWallet(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()

	var engine *Engine
	svc := walletsvc.NewService(ledger, instantProvider{}, logger.NewNop(),
		walletsvc.WithHistoryListener(walletsvc.HistoryListenerFunc(func(ctx context.Context, userID string) {
			engine.InvalidateProfile(ctx, userID)
		})),
	)
	engine = NewEngine(svc, logger.NewNop())

	_, err := svc.OpenAccount(ctx, "mama-1")
	require.NoError(t, err)
	before, err := engine.GetCreditProfile(ctx, "mama-1")
	require.NoError(t, err)
	assert.Equal(t, 300, before.Score)

	_, err = svc.RecordTransaction(ctx, walletsvc.RecordInput{
		UserID: "mama-1",
		Type:   wallet.TxDeposit,
		Amount: decimal.NewFromInt(2000),
		Method: wallet.MethodMpesa,
	})
	require.NoError(t, err)
	svc.Wait()

	_, err = svc.RecordTransaction(ctx, walletsvc.RecordInput{
		UserID: "mama-1",
		Type:   wallet.TxSavings,
		Amount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	svc.Wait()

	after, err := engine.GetCreditProfile(ctx, "mama-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, after.Factors.SavingsConsistency)
	assert.Equal(t, 20.0, after.Factors.RecentActivity)
	assert.Equal(t, 330, after.Score)
}

func BenchmarkScore(b *testing.B) {
	h := &wallet.History{Account: wallet.Account{SavingsBalance: decimal.NewFromInt(4200)}}
	for i := 0; i < 200; i++ {
		h.Transactions = append(h.Transactions, txn(wallet.TxContribution, wallet.TxCompleted, time.Duration(i)*time.Hour))
	}
	cfg := DefaultConfig()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Score("u", h, now, cfg)
	}
}
