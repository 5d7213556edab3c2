package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocomet/afya-transport/internal/domain/wallet"
	"github.com/shopspring/decimal"
)

// ErrNoProvider is returned when no provider handles a payment method
var ErrNoProvider = errors.New("no payment provider for method")

// ChargeRequest asks a processor to move money for a wallet transaction
type ChargeRequest struct {
	TransactionID string
	UserID        string
	Amount        decimal.Decimal
	Currency      string
	Method        wallet.Method
	Source        string
	Description   string
}

// Receipt is returned by a processor that accepted the charge
type Receipt struct {
	Reference string
	Provider  string
}

// Failure is a processor rejection. Retryable failures may succeed when the
// caller submits a new transaction.
type Failure struct {
	Provider  string
	Reason    string
	Retryable bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Provider, f.Reason)
}

// Unwrap lets callers match processor failures with wallet.ErrPaymentFailed
func (f *Failure) Unwrap() error {
	return wallet.ErrPaymentFailed
}

// Provider charges a payment method. Implementations may block on network
// I/O and must honour ctx.
type Provider interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
}

// Router dispatches a charge to the provider registered for its method
type Router struct {
	providers map[wallet.Method]Provider
	fallback  Provider
}

// NewRouter creates a router. fallback handles methods without a dedicated
// provider and may be nil.
func NewRouter(fallback Provider) *Router {
	return &Router{
		providers: make(map[wallet.Method]Provider),
		fallback:  fallback,
	}
}

// Handle registers p for the given methods
func (r *Router) Handle(p Provider, methods ...wallet.Method) *Router {
	for _, m := range methods {
		r.providers[m] = p
	}
	return r
}

func (r *Router) Name() string {
	return "router"
}

// Charge forwards req to the provider for req.Method
func (r *Router) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	p, ok := r.providers[req.Method]
	if !ok {
		p = r.fallback
	}
	if p == nil {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNoProvider, req.Method)
	}
	return p.Charge(ctx, req)
}
