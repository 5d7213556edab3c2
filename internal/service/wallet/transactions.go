package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gocomet/afya-transport/internal/domain/transport"
	domain "github.com/gocomet/afya-transport/internal/domain/wallet"
	"github.com/gocomet/afya-transport/internal/events"
	"github.com/gocomet/afya-transport/internal/service/payment"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/gocomet/afya-transport/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errMissingSource = fmt.Errorf("%w: a card payment needs a payment source", domain.ErrInvalidTransaction)

// RecordInput describes a transaction a user initiates
type RecordInput struct {
	UserID      string
	Type        domain.TransactionType
	Amount      decimal.Decimal
	Currency    string
	Method      domain.Method
	Source      string // processor reference for the payer's card
	Description string
	RequestID   string
}

func (in *RecordInput) normalize() error {
	in.Description = strings.TrimSpace(in.Description)
	if in.Currency == "" {
		in.Currency = domain.DefaultCurrency
	}
	if in.Method == "" {
		in.Method = domain.MethodWallet
	}
	switch {
	case in.UserID == "":
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidTransaction)
	case !in.Type.IsValid():
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidTransaction, in.Type)
	case in.Type == domain.TxLoanPayment || in.Type == domain.TxLoanDisbursement:
		return fmt.Errorf("%w: %s is booked through the loan operations", domain.ErrInvalidTransaction, in.Type)
	case !in.Method.IsValid():
		return fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidTransaction, in.Method)
	case in.Type == domain.TxDeposit && in.Method == domain.MethodWallet:
		return fmt.Errorf("%w: a deposit needs an external payment method", domain.ErrInvalidTransaction)
	case in.Method == domain.MethodCard && in.Source == "":
		return errMissingSource
	case !in.Amount.IsPositive():
		return domain.ErrInvalidAmount
	}
	return nil
}

// settlesInternally reports whether no processor is involved
func settlesInternally(t *domain.Transaction) bool {
	return t.Type.IsInternal() || t.PaymentMethod == domain.MethodWallet || t.PaymentMethod == domain.MethodCash
}

// RecordTransaction books a transaction for a user. Internal movements settle
// immediately; anything that needs a processor is returned pending and
// settles in the background, ending completed or failed.
func (s *Service) RecordTransaction(ctx context.Context, in RecordInput) (*domain.Transaction, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	t := &domain.Transaction{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Type:          in.Type,
		Amount:        in.Amount,
		Currency:      in.Currency,
		PaymentMethod: in.Method,
		PaymentSource: in.Source,
		Status:        domain.TxPending,
		Description:   in.Description,
		RequestID:     in.RequestID,
	}
	return s.book(ctx, t, nil)
}

// book stores a pending transaction. prepare runs inside the same update for
// extra checks against the staged ledger.
func (s *Service) book(ctx context.Context, t *domain.Transaction, prepare func(tx domain.LedgerTx) error) (*domain.Transaction, error) {
	internal := settlesInternally(t)

	var out *domain.Transaction
	err := s.ledger.Update(ctx, func(tx domain.LedgerTx) error {
		at := s.now()
		acc := tx.OpenAccount(t.UserID, at)
		if prepare != nil {
			if err := prepare(tx); err != nil {
				return err
			}
		}
		if t.Debits() && acc.Balance.LessThan(t.Amount) {
			return domain.ErrInsufficientFunds
		}

		t.Timestamp = at
		if internal {
			if err := s.apply(tx, acc, t); err != nil {
				return err
			}
			if err := t.Complete("", at); err != nil {
				return err
			}
		}
		tx.AddTransaction(t)
		out = t.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transaction recorded",
		logger.String("transaction_id", out.ID),
		logger.String("user_id", out.UserID),
		logger.String("type", string(out.Type)),
		logger.String("method", string(out.PaymentMethod)),
		logger.String("amount", out.Amount.StringFixed(2)),
		logger.String("status", string(out.Status)),
	)
	s.emit(events.TransactionCreated, out.UserID, out)

	if internal {
		s.settled(ctx, out)
		return out, nil
	}

	pending := out.Clone()
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.charge(pending)
	}()
	return out, nil
}

// apply books a completed transaction against the account and, for a loan
// payment, against the loan.
// Nothing is modified when it returns an error.
func (s *Service) apply(tx domain.LedgerTx, acc *domain.Account, t *domain.Transaction) error {
	if t.Type != domain.TxLoanPayment {
		return acc.Apply(t)
	}

	loan, err := tx.Loan(t.LoanID)
	if err != nil {
		return err
	}
	if !loan.AcceptsPayments() {
		return domain.ErrInvalidState
	}
	if err := acc.Apply(t); err != nil {
		return err
	}
	_, err = loan.ApplyPayment(t.Amount, s.loans.PaymentInterval, s.now())
	return err
}

// charge asks the processor to move the money, then settles the outcome
func (s *Service) charge(t *domain.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), s.chargeTimeout)
	defer cancel()

	receipt, err := s.provider.Charge(ctx, payment.ChargeRequest{
		TransactionID: t.ID,
		UserID:        t.UserID,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Method:        t.PaymentMethod,
		Source:        t.PaymentSource,
		Description:   t.Description,
	})
	if err != nil {
		s.logger.Warn("Payment processor rejected transaction",
			logger.String("transaction_id", t.ID),
			logger.String("user_id", t.UserID),
			logger.Err(err),
		)
	}

	out, settleErr := s.Settle(context.Background(), t.ID, receipt.Reference, err)
	if settleErr != nil {
		s.logger.Error("Failed to settle transaction",
			logger.String("transaction_id", t.ID),
			logger.Err(settleErr),
		)
		return
	}
	if out != nil {
		s.settled(context.Background(), out)
	}
}

// Settle applies a processor outcome to a pending transaction. A nil
// chargeErr completes it; the balance and loan are re-checked at this point
// and a transaction that no longer fits fails instead. Settling twice is a
// no-op that returns nil.
func (s *Service) Settle(ctx context.Context, transactionID, reference string, chargeErr error) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := s.ledger.Update(ctx, func(tx domain.LedgerTx) error {
		t, err := tx.Transaction(transactionID)
		if err != nil {
			return err
		}
		if t.Status != domain.TxPending {
			return nil
		}

		at := s.now()
		if chargeErr != nil {
			_ = t.Fail(chargeErr.Error(), at)
			out = t.Clone()
			return nil
		}

		acc, err := tx.Account(t.UserID)
		if err != nil {
			return err
		}
		switch err := s.apply(tx, acc, t); {
		case err == nil:
			_ = t.Complete(reference, at)
		case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrInvalidState):
			_ = t.Fail(err.Error(), at)
		default:
			return err
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

// settled runs the side effects of a transaction reaching a final state
func (s *Service) settled(ctx context.Context, t *domain.Transaction) {
	metrics.Transactions.WithLabelValues(string(t.Type), string(t.Status)).Inc()
	s.nr.RecordPaymentProcessed(t.Amount.InexactFloat64(), string(t.PaymentMethod), string(t.Status))

	if t.Status == domain.TxFailed {
		s.logger.Warn("Transaction failed",
			logger.String("transaction_id", t.ID),
			logger.String("user_id", t.UserID),
			logger.String("reason", t.FailureReason),
		)
	} else {
		s.logger.Info("Transaction settled",
			logger.String("transaction_id", t.ID),
			logger.String("user_id", t.UserID),
			logger.String("reference", t.ExternalRef),
		)
	}

	s.emit(events.TransactionSettled, t.UserID, t)
	if t.LoanID != "" {
		if loan, err := s.ledger.GetLoan(ctx, t.LoanID); err == nil {
			s.emit(events.LoanUpdated, loan.UserID, loan)
		}
	}
	s.historyChanged(ctx, t.UserID)
}

// GetTransaction returns one transaction
func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.ledger.GetTransaction(ctx, id)
}

// ListTransactions returns the transactions of userID, newest first
func (s *Service) ListTransactions(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	return s.ledger.ListTransactions(ctx, userID)
}

// SettleRide credits the rider's wallet with the fare of a completed ride
func (s *Service) SettleRide(ctx context.Context, st transport.Settlement) error {
	if st.Amount <= 0 {
		return nil
	}
	_, err := s.book(ctx, &domain.Transaction{
		ID:            uuid.NewString(),
		UserID:        st.RiderID,
		Type:          domain.TxReward,
		Amount:        decimal.NewFromFloat(st.Amount).Round(2),
		Currency:      domain.DefaultCurrency,
		PaymentMethod: domain.MethodWallet,
		Status:        domain.TxPending,
		Description:   fmt.Sprintf("Ride fare for request %s", st.RequestID),
		RequestID:     st.RequestID,
	}, nil)
	return err
}
