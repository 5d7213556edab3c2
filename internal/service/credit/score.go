package credit

import (
	"math"
	"time"

	domain "github.com/gocomet/afya-transport/internal/domain/credit"
	"github.com/gocomet/afya-transport/internal/domain/wallet"
)

// Config holds the scoring weights
type Config struct {
	BaseScore float64

	LoanCompletedPoints float64
	LoanOverduePenalty  float64
	PaymentHistoryCap   float64

	SavingsUnit float64
	SavingsCap  float64

	RecentWindow         time.Duration
	RecentActivityPoints float64
	RecentActivityCap    float64

	// Community participation counts completed contributions and SHA
	// payments.
	CommunityPoints float64
	CommunityCap    float64
}

// DefaultConfig returns the standard scoring weights
func DefaultConfig() Config {
	return Config{
		BaseScore:            domain.MinScore,
		LoanCompletedPoints:  50,
		LoanOverduePenalty:   100,
		PaymentHistoryCap:    200,
		SavingsUnit:          100,
		SavingsCap:           150,
		RecentWindow:         90 * 24 * time.Hour,
		RecentActivityPoints: 10,
		RecentActivityCap:    100,
		CommunityPoints:      10,
		CommunityCap:         50,
	}
}

// Score derives a credit profile from a user's history. It depends only on
// its inputs.
func Score(userID string, h *wallet.History, now time.Time, cfg Config) domain.Profile {
	var (
		completedLoans, overdueLoans, activeLoans int
		recent, community                         int
	)
	for _, l := range h.Loans {
		switch l.Status {
		case wallet.LoanCompleted:
			completedLoans++
		case wallet.LoanOverdue:
			overdueLoans++
			activeLoans++
		case wallet.LoanActive:
			activeLoans++
		}
	}

	// the profile holds until a counted transaction ages out of the recent
	// window or a future-dated one enters it
	var validUntil time.Time
	until := func(at time.Time) {
		if validUntil.IsZero() || at.Before(validUntil) {
			validUntil = at
		}
	}
	since := now.Add(-cfg.RecentWindow)
	for _, t := range h.Transactions {
		if t.Status == wallet.TxFailed {
			continue
		}
		switch {
		case t.Timestamp.After(now):
			until(t.Timestamp)
		case !t.Timestamp.Before(since):
			recent++
			until(t.Timestamp.Add(cfg.RecentWindow))
		}
		if t.Status == wallet.TxCompleted && (t.Type == wallet.TxContribution || t.Type == wallet.TxSHAPayment) {
			community++
		}
	}

	savings := h.Account.SavingsBalance.InexactFloat64()
	factors := domain.Factors{
		Base:                   cfg.BaseScore,
		PaymentHistory:         math.Min(cfg.PaymentHistoryCap, float64(completedLoans)*cfg.LoanCompletedPoints-float64(overdueLoans)*cfg.LoanOverduePenalty),
		SavingsConsistency:     math.Min(cfg.SavingsCap, math.Max(0, savings/cfg.SavingsUnit)),
		CommunityParticipation: math.Min(cfg.CommunityCap, float64(community)*cfg.CommunityPoints),
		RecentActivity:         math.Min(cfg.RecentActivityCap, float64(recent)*cfg.RecentActivityPoints),
	}

	score := clampScore(factors.Total())
	return domain.Profile{
		UserID:           userID,
		Score:            score,
		TrustLevel:       domain.TrustLevelFor(score),
		SHAEligibility:   domain.EligibilityFor(score),
		LoanReadiness:    loanReadiness(score),
		PaymentHistory:   paymentHistoryPercent(completedLoans, overdueLoans),
		SavingsBalance:   savings,
		WalletBalance:    h.Account.Balance.InexactFloat64(),
		TransactionCount: len(h.Transactions),
		ActiveLoans:      activeLoans,
		Factors:          factors,
		LastUpdated:      now,
		ValidUntil:       optionalTime(validUntil),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func clampScore(total float64) int {
	score := int(math.Round(total))
	if score < domain.MinScore {
		return domain.MinScore
	}
	if score > domain.MaxScore {
		return domain.MaxScore
	}
	return score
}

// loanReadiness is the distance from the floor to full eligibility, in percent
func loanReadiness(score int) float64 {
	r := float64(score-domain.MinScore) / 5.5
	r = math.Max(0, math.Min(100, r))
	return math.Round(r*10) / 10
}

func paymentHistoryPercent(completed, overdue int) float64 {
	if completed+overdue == 0 {
		return 0
	}
	return math.Round(float64(completed) / float64(completed+overdue) * 100)
}
