package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// intentAPI is the slice of the PaymentIntent API the provider uses
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type stripeIntents struct{}

func (stripeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

func (stripeIntents) Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Capture(id, params)
}

func (stripeIntents) Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Cancel(id, params)
}

// StripeProvider charges card payments through a Stripe PaymentIntent. The
// intent is confirmed against the payer's payment method with manual
// capture, then captured. An intent that cannot be captured is cancelled so
// no hold is left on the card.
type StripeProvider struct {
	currency string
	intents  intentAPI
}

// NewStripeProvider sets the Stripe key and returns a card provider
func NewStripeProvider(apiKey, currency string) *StripeProvider {
	stripe.Key = apiKey
	if currency == "" {
		currency = "kes"
	}
	return &StripeProvider{currency: strings.ToLower(currency), intents: stripeIntents{}}
}

func (p *StripeProvider) Name() string {
	return "stripe"
}

// Charge holds and captures the amount in minor units. req.Source is the
// Stripe payment method id. The transaction id keys every call so a retried
// charge never creates a second intent.
func (p *StripeProvider) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, p.fail(err.Error(), true)
	}
	if req.Source == "" {
		return Receipt{}, p.fail("missing payment method", false)
	}

	currency := p.currency
	if req.Currency != "" {
		currency = strings.ToLower(req.Currency)
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
		Currency:           stripe.String(currency),
		Description:        stripe.String(req.Description),
		PaymentMethod:      stripe.String(req.Source),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:            stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.TransactionID)
	params.AddMetadata("transaction_id", req.TransactionID)
	params.AddMetadata("user_id", req.UserID)

	pi, err := p.intents.New(params)
	if err != nil {
		return Receipt{}, p.fail(err.Error(), retryable(err))
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return Receipt{Reference: pi.ID, Provider: p.Name()}, nil
	case stripe.PaymentIntentStatusRequiresCapture:
	default:
		return Receipt{}, p.release(ctx, req, pi.ID, fmt.Sprintf("payment intent %s", pi.Status), false)
	}

	capture := &stripe.PaymentIntentCaptureParams{}
	capture.Context = ctx
	capture.SetIdempotencyKey(req.TransactionID + ":capture")
	if _, err := p.intents.Capture(pi.ID, capture); err != nil {
		return Receipt{}, p.release(ctx, req, pi.ID, err.Error(), retryable(err))
	}

	return Receipt{Reference: pi.ID, Provider: p.Name()}, nil
}

// release cancels an intent that will not be captured
func (p *StripeProvider) release(ctx context.Context, req ChargeRequest, intentID, reason string, retry bool) error {
	cancel := &stripe.PaymentIntentCancelParams{}
	cancel.Context = ctx
	cancel.SetIdempotencyKey(req.TransactionID + ":cancel")
	if _, err := p.intents.Cancel(intentID, cancel); err != nil {
		return p.fail(fmt.Sprintf("%s; cancel failed: %v", reason, err), false)
	}
	return p.fail(reason, retry)
}

func (p *StripeProvider) fail(reason string, retry bool) error {
	return &Failure{Provider: p.Name(), Reason: reason, Retryable: retry}
}

// retryable treats card declines as final and everything else as transient
func retryable(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.Type != stripe.ErrorTypeCard && se.Type != stripe.ErrorTypeInvalidRequest
	}
	return true
}
