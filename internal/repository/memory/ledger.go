package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gocomet/afya-transport/internal/domain/wallet"
	"github.com/shopspring/decimal"
)

// Ledger stores accounts, transactions and loans in memory. Reads take the
// read lock so a history snapshot never observes half of an update.
type Ledger struct {
	mu           sync.RWMutex
	accounts     map[string]*wallet.Account
	transactions map[string]*wallet.Transaction
	loans        map[string]*wallet.Loan
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		accounts:     make(map[string]*wallet.Account),
		transactions: make(map[string]*wallet.Transaction),
		loans:        make(map[string]*wallet.Loan),
	}
}

func (l *Ledger) GetAccount(ctx context.Context, userID string) (*wallet.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[userID]
	if !ok {
		return nil, wallet.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (l *Ledger) ListTransactions(ctx context.Context, userID string) ([]*wallet.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.transactionsOf(userID), nil
}

func (l *Ledger) GetTransaction(ctx context.Context, id string) (*wallet.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.transactions[id]
	if !ok {
		return nil, wallet.ErrTransactionNotFound
	}
	return t.Clone(), nil
}

func (l *Ledger) ListLoans(ctx context.Context, userID string) ([]*wallet.Loan, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.loansOf(userID), nil
}

func (l *Ledger) GetLoan(ctx context.Context, id string) (*wallet.Loan, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	loan, ok := l.loans[id]
	if !ok {
		return nil, wallet.ErrLoanNotFound
	}
	return loan.Clone(), nil
}

func (l *Ledger) History(ctx context.Context, userID string) (*wallet.History, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[userID]
	if !ok {
		return nil, wallet.ErrAccountNotFound
	}
	return &wallet.History{
		Account:      *acc.Clone(),
		Transactions: l.transactionsOf(userID),
		Loans:        l.loansOf(userID),
	}, nil
}

// Update stages changes made through the LedgerTx and applies them only
// when fn returns nil.
func (l *Ledger) Update(ctx context.Context, fn func(tx wallet.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &ledgerTx{
		ledger:       l,
		accounts:     make(map[string]*wallet.Account),
		transactions: make(map[string]*wallet.Transaction),
		loans:        make(map[string]*wallet.Loan),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, acc := range tx.accounts {
		l.accounts[id] = acc
	}
	for id, t := range tx.transactions {
		l.transactions[id] = t
	}
	for id, loan := range tx.loans {
		l.loans[id] = loan
	}
	return nil
}

func (l *Ledger) transactionsOf(userID string) []*wallet.Transaction {
	var out []*wallet.Transaction
	for _, t := range l.transactions {
		if t.UserID == userID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (l *Ledger) loansOf(userID string) []*wallet.Loan {
	var out []*wallet.Loan
	for _, loan := range l.loans {
		if loan.UserID == userID {
			out = append(out, loan.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].AppliedAt.After(out[j].AppliedAt)
	})
	return out
}

type ledgerTx struct {
	ledger       *Ledger
	accounts     map[string]*wallet.Account
	transactions map[string]*wallet.Transaction
	loans        map[string]*wallet.Loan
}

func (tx *ledgerTx) Account(userID string) (*wallet.Account, error) {
	if acc, ok := tx.accounts[userID]; ok {
		return acc, nil
	}
	acc, ok := tx.ledger.accounts[userID]
	if !ok {
		return nil, wallet.ErrAccountNotFound
	}
	staged := acc.Clone()
	tx.accounts[userID] = staged
	return staged, nil
}

func (tx *ledgerTx) OpenAccount(userID string, at time.Time) *wallet.Account {
	if acc, err := tx.Account(userID); err == nil {
		return acc
	}
	acc := &wallet.Account{
		UserID:         userID,
		Balance:        decimal.Zero,
		SavingsBalance: decimal.Zero,
		CreatedAt:      at,
	}
	tx.accounts[userID] = acc
	return acc
}

func (tx *ledgerTx) Transaction(id string) (*wallet.Transaction, error) {
	if t, ok := tx.transactions[id]; ok {
		return t, nil
	}
	t, ok := tx.ledger.transactions[id]
	if !ok {
		return nil, wallet.ErrTransactionNotFound
	}
	staged := t.Clone()
	tx.transactions[id] = staged
	return staged, nil
}

func (tx *ledgerTx) AddTransaction(t *wallet.Transaction) {
	tx.transactions[t.ID] = t.Clone()
}

func (tx *ledgerTx) Loan(id string) (*wallet.Loan, error) {
	if loan, ok := tx.loans[id]; ok {
		return loan, nil
	}
	loan, ok := tx.ledger.loans[id]
	if !ok {
		return nil, wallet.ErrLoanNotFound
	}
	staged := loan.Clone()
	tx.loans[id] = staged
	return staged, nil
}

func (tx *ledgerTx) AddLoan(loan *wallet.Loan) {
	tx.loans[loan.ID] = loan.Clone()
}

func (tx *ledgerTx) Loans() []*wallet.Loan {
	out := make([]*wallet.Loan, 0, len(tx.ledger.loans))
	for id := range tx.ledger.loans {
		loan, _ := tx.Loan(id)
		out = append(out, loan)
	}
	for id, loan := range tx.loans {
		if _, committed := tx.ledger.loans[id]; !committed {
			out = append(out, loan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
