package wallet

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the loan lifecycle state
type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanActive    LoanStatus = "active"
	LoanCompleted LoanStatus = "completed"
	LoanOverdue   LoanStatus = "overdue"
	LoanRejected  LoanStatus = "rejected"
)

// settlementDust is the residual below which a balance counts as repaid.
var settlementDust = decimal.New(5, -3)

// Loan is a micro-loan or SHA premium loan
type Loan struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	LoanType         string          `json:"loan_type"`
	Purpose          string          `json:"purpose,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	InterestRate     float64         `json:"interest_rate"`
	TermMonths       int             `json:"term_months"`
	MonthlyPayment   decimal.Decimal `json:"monthly_payment"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	PaymentsMade     int             `json:"payments_made"`
	Status           LoanStatus      `json:"status"`
	AppliedAt        time.Time       `json:"applied_at"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	DisbursedAt      *time.Time      `json:"disbursed_at,omitempty"`
	NextPaymentDate  *time.Time      `json:"next_payment_date,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// MonthlyPayment computes the level payment M = P·r·(1+r)^n / ((1+r)^n − 1)
// with r the monthly rate, or P/n when the rate is zero. The result is
// rounded up to the cent so that n payments always clear the principal.
func MonthlyPayment(principal decimal.Decimal, annualRate float64, termMonths int) decimal.Decimal {
	if termMonths <= 0 {
		return decimal.Zero
	}
	p := principal.InexactFloat64()
	n := float64(termMonths)
	r := annualRate / 100 / 12

	var m float64
	if r == 0 {
		m = p / n
	} else {
		f := math.Pow(1+r, n)
		m = p * r * f / (f - 1)
	}
	return decimal.NewFromFloat(m).RoundCeil(2)
}

// NewLoan builds a pending loan with its amortized monthly payment
func NewLoan(id, userID string, amount decimal.Decimal, annualRate float64, termMonths int, at time.Time) (*Loan, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if termMonths <= 0 || annualRate < 0 {
		return nil, ErrInvalidLoanTerms
	}
	return &Loan{
		ID:               id,
		UserID:           userID,
		Amount:           amount,
		InterestRate:     annualRate,
		TermMonths:       termMonths,
		MonthlyPayment:   MonthlyPayment(amount, annualRate, termMonths),
		RemainingBalance: amount,
		TotalPaid:        decimal.Zero,
		Status:           LoanPending,
		AppliedAt:        at,
	}, nil
}

// MonthlyRate is the periodic interest rate as a fraction
func (l *Loan) MonthlyRate() decimal.Decimal {
	return decimal.NewFromFloat(l.InterestRate).Div(decimal.NewFromInt(1200))
}

// TotalRepayable is the sum of all scheduled payments
func (l *Loan) TotalRepayable() decimal.Decimal {
	return l.MonthlyPayment.Mul(decimal.NewFromInt(int64(l.TermMonths)))
}

// Approve moves a pending loan to approved
func (l *Loan) Approve(at time.Time) error {
	if l.Status != LoanPending {
		return ErrInvalidState
	}
	l.Status = LoanApproved
	l.ApprovedAt = &at
	return nil
}

// Reject moves a pending loan to rejected
func (l *Loan) Reject() error {
	if l.Status != LoanPending {
		return ErrInvalidState
	}
	l.Status = LoanRejected
	return nil
}

// Disburse activates an approved loan and schedules the first payment
func (l *Loan) Disburse(at time.Time, interval time.Duration) error {
	if l.Status != LoanApproved {
		return ErrInvalidState
	}
	next := at.Add(interval)
	l.Status = LoanActive
	l.DisbursedAt = &at
	l.NextPaymentDate = &next
	return nil
}

// AcceptsPayments reports whether payments can be booked
func (l *Loan) AcceptsPayments() bool {
	return l.Status == LoanActive || l.Status == LoanOverdue
}

// PaymentSplit describes how a payment was applied
type PaymentSplit struct {
	Interest  decimal.Decimal `json:"interest"`
	Principal decimal.Decimal `json:"principal"`
}

// ApplyPayment books amount against the loan. Interest accrued on the
// remaining principal for one period is covered first and the rest reduces
// the principal, capped at what is still owed. An overdue loan returns to
// active; a fully repaid loan completes and clears its next payment date.
func (l *Loan) ApplyPayment(amount decimal.Decimal, interval time.Duration, at time.Time) (PaymentSplit, error) {
	if !l.AcceptsPayments() {
		return PaymentSplit{}, ErrInvalidState
	}
	if !amount.IsPositive() {
		return PaymentSplit{}, ErrInvalidAmount
	}

	interest := l.RemainingBalance.Mul(l.MonthlyRate())
	if interest.GreaterThan(amount) {
		interest = amount
	}
	principal := decimal.Min(amount.Sub(interest), l.RemainingBalance)

	l.RemainingBalance = l.RemainingBalance.Sub(principal)
	if l.RemainingBalance.LessThan(settlementDust) {
		l.RemainingBalance = decimal.Zero
	}
	l.TotalPaid = l.TotalPaid.Add(interest).Add(principal)
	l.PaymentsMade++

	if l.RemainingBalance.IsZero() {
		l.Status = LoanCompleted
		l.NextPaymentDate = nil
		l.CompletedAt = &at
	} else {
		l.Status = LoanActive
		base := at
		if l.NextPaymentDate != nil {
			base = *l.NextPaymentDate
		}
		next := base.Add(interval)
		l.NextPaymentDate = &next
	}
	return PaymentSplit{Interest: interest, Principal: principal}, nil
}

// MarkOverdue flags an active loan whose payment date has passed
func (l *Loan) MarkOverdue(now time.Time) bool {
	if l.Status != LoanActive || l.NextPaymentDate == nil || !now.After(*l.NextPaymentDate) {
		return false
	}
	l.Status = LoanOverdue
	return true
}

// Clone returns a copy safe to mutate
func (l *Loan) Clone() *Loan {
	c := *l
	c.ApprovedAt = cloneTime(l.ApprovedAt)
	c.DisbursedAt = cloneTime(l.DisbursedAt)
	c.NextPaymentDate = cloneTime(l.NextPaymentDate)
	c.CompletedAt = cloneTime(l.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
