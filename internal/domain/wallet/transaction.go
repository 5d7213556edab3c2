package wallet

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound     = errors.New("wallet account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrInvalidState        = errors.New("invalid state for this operation")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrInvalidLoanTerms    = errors.New("invalid loan terms")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrPaymentFailed       = errors.New("payment failed")
)

// DefaultCurrency is used when a caller leaves the currency empty
const DefaultCurrency = "KES"

// TransactionType is the business reason for a transaction
type TransactionType string

const (
	TxDeposit          TransactionType = "deposit"
	TxWithdrawal       TransactionType = "withdrawal"
	TxLoanPayment      TransactionType = "loan_payment"
	TxLoanDisbursement TransactionType = "loan_disbursement"
	TxSavings          TransactionType = "savings"
	TxContribution     TransactionType = "contribution"
	TxReward           TransactionType = "reward"
	TxSHAPayment       TransactionType = "sha_payment"
)

// IsValid validates the transaction type
func (t TransactionType) IsValid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxLoanPayment, TxLoanDisbursement, TxSavings, TxContribution, TxReward, TxSHAPayment:
		return true
	}
	return false
}

// IsInternal reports whether the transaction is settled by the platform
// itself rather than by an external payment processor.
func (t TransactionType) IsInternal() bool {
	return t == TxReward || t == TxLoanDisbursement
}

// TransactionStatus tracks settlement
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

// Method is the payment channel of a transaction
type Method string

const (
	MethodWallet      Method = "wallet"
	MethodMpesa       Method = "mpesa"
	MethodAirtelMoney Method = "airtel_money"
	MethodBank        Method = "bank"
	MethodCard        Method = "card"
	MethodCash        Method = "cash"
	MethodSHALoan     Method = "sha_loan"
	MethodInsurance   Method = "insurance"
)

// IsValid validates the method
func (m Method) IsValid() bool {
	switch m {
	case MethodWallet, MethodMpesa, MethodAirtelMoney, MethodBank, MethodCard, MethodCash, MethodSHALoan, MethodInsurance:
		return true
	}
	return false
}

// Transaction is a movement of money owned by one user
type Transaction struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod Method            `json:"payment_method"`
	PaymentSource string            `json:"payment_source,omitempty"`
	Status        TransactionStatus `json:"status"`
	Description   string            `json:"description,omitempty"`
	LoanID        string            `json:"loan_id,omitempty"`
	RequestID     string            `json:"request_id,omitempty"`
	ExternalRef   string            `json:"external_ref,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	SettledAt     *time.Time        `json:"settled_at,omitempty"`
}

// Debits reports whether the transaction draws from the wallet balance
func (t *Transaction) Debits() bool {
	if t.Type == TxWithdrawal {
		return true
	}
	switch t.Type {
	case TxLoanPayment, TxSHAPayment, TxContribution, TxSavings:
		return t.PaymentMethod == MethodWallet
	}
	return false
}

// Credits reports whether the transaction adds to the wallet balance
func (t *Transaction) Credits() bool {
	switch t.Type {
	case TxDeposit, TxReward, TxLoanDisbursement:
		return true
	}
	return false
}

// Complete moves a pending transaction to completed
func (t *Transaction) Complete(ref string, at time.Time) error {
	if t.Status != TxPending {
		return ErrInvalidState
	}
	t.Status = TxCompleted
	t.ExternalRef = ref
	t.SettledAt = &at
	return nil
}

// Fail moves a pending transaction to failed
func (t *Transaction) Fail(reason string, at time.Time) error {
	if t.Status != TxPending {
		return ErrInvalidState
	}
	t.Status = TxFailed
	t.FailureReason = reason
	t.SettledAt = &at
	return nil
}

// Clone returns a copy safe to mutate
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.SettledAt != nil {
		at := *t.SettledAt
		c.SettledAt = &at
	}
	return &c
}

// Account holds a user's wallet and savings balances
type Account struct {
	UserID         string          `json:"user_id"`
	Balance        decimal.Decimal `json:"balance"`
	SavingsBalance decimal.Decimal `json:"savings_balance"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Apply books a completed transaction against the balances
func (a *Account) Apply(t *Transaction) error {
	if t.Debits() {
		if a.Balance.LessThan(t.Amount) {
			return ErrInsufficientFunds
		}
		a.Balance = a.Balance.Sub(t.Amount)
	}
	if t.Credits() {
		a.Balance = a.Balance.Add(t.Amount)
	}
	if t.Type == TxSavings {
		a.SavingsBalance = a.SavingsBalance.Add(t.Amount)
	}
	return nil
}

// Clone returns a copy safe to mutate
func (a *Account) Clone() *Account {
	c := *a
	return &c
}
