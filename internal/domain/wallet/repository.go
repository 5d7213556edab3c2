package wallet

import (
	"context"
	"time"
)

// History is a point-in-time copy of everything recorded for one user
type History struct {
	Account      Account
	Transactions []*Transaction
	Loans        []*Loan
}

// LedgerTx is the view of the ledger inside one atomic update
type LedgerTx interface {
	// Account returns the staged account or ErrAccountNotFound
	Account(userID string) (*Account, error)

	// OpenAccount returns the account of userID, creating an empty one if needed
	OpenAccount(userID string, at time.Time) *Account

	// Transaction returns the staged transaction or ErrTransactionNotFound
	Transaction(id string) (*Transaction, error)

	// AddTransaction stores a new transaction
	AddTransaction(t *Transaction)

	// Loan returns the staged loan or ErrLoanNotFound
	Loan(id string) (*Loan, error)

	// AddLoan stores a new loan
	AddLoan(l *Loan)

	// Loans returns staged copies of every loan
	Loans() []*Loan
}

// Ledger persists accounts, transactions and loans
type Ledger interface {
	// GetAccount returns a copy of the account of userID
	GetAccount(ctx context.Context, userID string) (*Account, error)

	// ListTransactions returns the transactions of userID, newest first
	ListTransactions(ctx context.Context, userID string) ([]*Transaction, error)

	// GetTransaction returns a copy of a transaction
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	// ListLoans returns the loans of userID, newest first
	ListLoans(ctx context.Context, userID string) ([]*Loan, error)

	// GetLoan returns a copy of a loan
	GetLoan(ctx context.Context, id string) (*Loan, error)

	// History returns the account with all its transactions and loans
	History(ctx context.Context, userID string) (*History, error)

	// Update runs fn atomically
	Update(ctx context.Context, fn func(tx LedgerTx) error) error
}
