package payments

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgstripe "github.com/ksmithweb/campusmarket-backend/pkg/stripe"
)

// GatewayClient exposes the subset of gateway operations the checkout
// service needs.
type GatewayClient interface {
	NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type gatewayWrapper struct{}

// NewGatewayClient wraps the configured Stripe client so the checkout
// service can be tested against a stub.
func NewGatewayClient(api *pkgstripe.Client) GatewayClient {
	if api == nil {
		return nil
	}
	return &gatewayWrapper{}
}

func (w *gatewayWrapper) NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

func (w *gatewayWrapper) GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params == nil {
		params = &stripe.PaymentIntentParams{}
	}
	params.Context = ctx
	return paymentintent.Get(id, params)
}
