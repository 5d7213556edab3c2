package wallet

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/gocomet/afya-transport/internal/domain/wallet"
	"github.com/gocomet/afya-transport/internal/events"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanApplication is a user's request for credit
type LoanApplication struct {
	UserID       string
	LoanType     string
	Amount       decimal.Decimal
	Purpose      string
	InterestRate float64
	TermMonths   int
}

// ApplyForLoan records a pending loan with its amortized monthly payment
func (s *Service) ApplyForLoan(ctx context.Context, in LoanApplication) (*domain.Loan, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidLoanTerms)
	}
	loan, err := domain.NewLoan(uuid.NewString(), in.UserID, in.Amount, in.InterestRate, in.TermMonths, s.now())
	if err != nil {
		return nil, err
	}
	loan.LoanType = strings.TrimSpace(in.LoanType)
	if loan.LoanType == "" {
		loan.LoanType = s.loans.DefaultLoanType
	}
	loan.Purpose = strings.TrimSpace(in.Purpose)

	err = s.ledger.Update(ctx, func(tx domain.LedgerTx) error {
		tx.OpenAccount(in.UserID, loan.AppliedAt)
		tx.AddLoan(loan)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loan application received",
		logger.String("loan_id", loan.ID),
		logger.String("user_id", loan.UserID),
		logger.String("amount", loan.Amount.StringFixed(2)),
		logger.String("monthly_payment", loan.MonthlyPayment.StringFixed(2)),
		logger.Int("term_months", loan.TermMonths),
	)
	out := loan.Clone()
	s.emit(events.LoanUpdated, out.UserID, out)
	s.historyChanged(ctx, out.UserID)
	return out, nil
}

// ApproveLoan moves a pending loan to approved
func (s *Service) ApproveLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	return s.updateLoan(ctx, loanID, "Loan approved", func(l *domain.Loan) error {
		return l.Approve(s.now())
	})
}

// RejectLoan moves a pending loan to rejected
func (s *Service) RejectLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	return s.updateLoan(ctx, loanID, "Loan rejected", func(l *domain.Loan) error {
		return l.Reject()
	})
}

func (s *Service) updateLoan(ctx context.Context, loanID, msg string, fn func(l *domain.Loan) error) (*domain.Loan, error) {
	var out *domain.Loan
	err := s.ledger.Update(ctx, func(tx domain.LedgerTx) error {
		loan, err := tx.Loan(loanID)
		if err != nil {
			return err
		}
		if err := fn(loan); err != nil {
			return err
		}
		out = loan.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(msg,
		logger.String("loan_id", out.ID),
		logger.String("user_id", out.UserID),
		logger.String("status", string(out.Status)),
	)
	s.emit(events.LoanUpdated, out.UserID, out)
	s.historyChanged(ctx, out.UserID)
	return out, nil
}

// DisburseLoan activates an approved loan, credits the principal to the
// borrower's wallet and schedules the first payment one interval out.
func (s *Service) DisburseLoan(ctx context.Context, loanID string) (*domain.Loan, *domain.Transaction, error) {
	var (
		loan *domain.Loan
		t    *domain.Transaction
	)
	err := s.ledger.Update(ctx, func(tx domain.LedgerTx) error {
		l, err := tx.Loan(loanID)
		if err != nil {
			return err
		}
		at := s.now()
		if err := l.Disburse(at, s.loans.PaymentInterval); err != nil {
			return err
		}

		disbursal := &domain.Transaction{
			ID:            uuid.NewString(),
			UserID:        l.UserID,
			Type:          domain.TxLoanDisbursement,
			Amount:        l.Amount,
			Currency:      domain.DefaultCurrency,
			PaymentMethod: domain.MethodWallet,
			Status:        domain.TxPending,
			Description:   fmt.Sprintf("Disbursement of %s", l.LoanType),
			LoanID:        l.ID,
			Timestamp:     at,
		}
		acc := tx.OpenAccount(l.UserID, at)
		if err := acc.Apply(disbursal); err != nil {
			return err
		}
		if err := disbursal.Complete("", at); err != nil {
			return err
		}
		tx.AddTransaction(disbursal)

		loan = l.Clone()
		t = disbursal.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Loan disbursed",
		logger.String("loan_id", loan.ID),
		logger.String("user_id", loan.UserID),
		logger.String("transaction_id", t.ID),
		logger.Time("next_payment_date", *loan.NextPaymentDate),
	)
	s.emit(events.TransactionCreated, t.UserID, t)
	s.settled(ctx, t)
	return loan, t, nil
}

// MakeLoanPayment books a repayment against an active or overdue loan. The
// amount is capped at what is still owed including this period's interest.
// Wallet payments settle immediately; other methods go through the
// processor and return a pending transaction. source is the processor
// reference of the payer's card and is required for card payments.
func (s *Service) MakeLoanPayment(ctx context.Context, loanID string, amount decimal.Decimal, method domain.Method, source string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if method == "" {
		method = domain.MethodWallet
	}
	if !method.IsValid() || method == domain.MethodCash {
		return nil, fmt.Errorf("%w: cannot repay a loan with %q", domain.ErrInvalidTransaction, method)
	}
	if method == domain.MethodCard && source == "" {
		return nil, errMissingSource
	}

	loan, err := s.ledger.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	t := &domain.Transaction{
		ID:            uuid.NewString(),
		UserID:        loan.UserID,
		Type:          domain.TxLoanPayment,
		Currency:      domain.DefaultCurrency,
		PaymentMethod: method,
		PaymentSource: source,
		Status:        domain.TxPending,
		Description:   fmt.Sprintf("Repayment of %s", loan.LoanType),
		LoanID:        loan.ID,
	}

	return s.book(ctx, t, func(tx domain.LedgerTx) error {
		l, err := tx.Loan(loanID)
		if err != nil {
			return err
		}
		if !l.AcceptsPayments() {
			return domain.ErrInvalidState
		}
		t.Amount = decimal.Min(amount, amountOwed(l))
		return nil
	})
}

// amountOwed is the remaining principal plus one period of interest
func amountOwed(l *domain.Loan) decimal.Decimal {
	interest := l.RemainingBalance.Mul(l.MonthlyRate())
	return l.RemainingBalance.Add(interest).RoundCeil(2)
}

// MarkOverdueLoans flags active loans whose payment date has passed
func (s *Service) MarkOverdueLoans(ctx context.Context) ([]*domain.Loan, error) {
	var marked []*domain.Loan
	err := s.ledger.Update(ctx, func(tx domain.LedgerTx) error {
		now := s.now()
		for _, l := range tx.Loans() {
			if l.MarkOverdue(now) {
				marked = append(marked, l.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, l := range marked {
		s.logger.Warn("Loan overdue",
			logger.String("loan_id", l.ID),
			logger.String("user_id", l.UserID),
		)
		s.emit(events.LoanUpdated, l.UserID, l)
		s.historyChanged(ctx, l.UserID)
	}
	return marked, nil
}

// GetLoan returns one loan
func (s *Service) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	return s.ledger.GetLoan(ctx, loanID)
}

// ListLoans returns the loans of userID, newest first
func (s *Service) ListLoans(ctx context.Context, userID string) ([]*domain.Loan, error) {
	return s.ledger.ListLoans(ctx, userID)
}
