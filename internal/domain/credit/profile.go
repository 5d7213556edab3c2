package credit

import "time"

// Score bounds
const (
	MinScore = 300
	MaxScore = 850
)

// TrustLevel is the tier derived from the score
type TrustLevel string

const (
	TrustBronze   TrustLevel = "bronze"
	TrustSilver   TrustLevel = "silver"
	TrustGold     TrustLevel = "gold"
	TrustPlatinum TrustLevel = "platinum"
)

// TrustLevelFor maps a score to its tier
func TrustLevelFor(score int) TrustLevel {
	switch {
	case score >= 750:
		return TrustPlatinum
	case score >= 650:
		return TrustGold
	case score >= 550:
		return TrustSilver
	default:
		return TrustBronze
	}
}

// EligibilityStatus is the SHA loan decision
type EligibilityStatus string

const (
	EligibilityApproved EligibilityStatus = "approved"
	EligibilityPending  EligibilityStatus = "pending"
	EligibilityDenied   EligibilityStatus = "denied"

	// EligibilityNotAssessed marks a user no score has been computed for
	EligibilityNotAssessed EligibilityStatus = "not_assessed"
)

// EligibilityFor maps a score to an SHA loan decision
func EligibilityFor(score int) EligibilityStatus {
	switch {
	case score >= 600:
		return EligibilityApproved
	case score >= 500:
		return EligibilityPending
	default:
		return EligibilityDenied
	}
}

// Factors are the weighted components summed into the score
type Factors struct {
	Base                   float64 `json:"base"`
	PaymentHistory         float64 `json:"payment_history"`
	SavingsConsistency     float64 `json:"savings_consistency"`
	CommunityParticipation float64 `json:"community_participation"`
	RecentActivity         float64 `json:"recent_activity"`
}

// Total sums the factors
func (f Factors) Total() float64 {
	return f.Base + f.PaymentHistory + f.SavingsConsistency + f.CommunityParticipation + f.RecentActivity
}

// Profile is the credit standing of one user
type Profile struct {
	UserID           string            `json:"user_id"`
	Score            int               `json:"credit_score"`
	TrustLevel       TrustLevel        `json:"trust_level"`
	SHAEligibility   EligibilityStatus `json:"sha_eligibility"`
	LoanReadiness    float64           `json:"loan_readiness"`
	PaymentHistory   float64           `json:"payment_history_percent"`
	SavingsBalance   float64           `json:"savings_balance"`
	WalletBalance    float64           `json:"wallet_balance"`
	TransactionCount int               `json:"transaction_count"`
	ActiveLoans      int               `json:"active_loans"`
	Factors          Factors           `json:"factors"`
	LastUpdated      time.Time         `json:"last_updated"`
	ValidUntil       *time.Time        `json:"valid_until,omitempty"`
}

// Stale reports whether the time-dependent factors may have changed by now
func (p *Profile) Stale(now time.Time) bool {
	return p.ValidUntil != nil && !now.Before(*p.ValidUntil)
}
