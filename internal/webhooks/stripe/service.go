package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/ksmithweb/campusmarket-backend/internal/payments"
	pkgerrors "github.com/ksmithweb/campusmarket-backend/pkg/errors"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
	"github.com/ksmithweb/campusmarket-backend/pkg/metrics"
)

type settlementService interface {
	OnIntentEvent(ctx context.Context, intent *stripe.PaymentIntent) error
	OnPaymentFailed(ctx context.Context, intent *stripe.PaymentIntent) error
	OnChargeEvent(ctx context.Context, charge *stripe.Charge) error
}

// ServiceParams carries the dependencies for the webhook service.
type ServiceParams struct {
	Settlement settlementService
	Gateway    payments.GatewayClient
	Metrics    *metrics.PaymentMetrics
	Logger     *logger.Logger
}

// Service routes verified gateway events to settlement. Unknown event
// types are acknowledged and ignored; malformed payloads are logged and
// dropped so the gateway stops retrying garbage.
type Service struct {
	settlement settlementService
	gateway    payments.GatewayClient
	metrics    *metrics.PaymentMetrics
	log        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client required")
	}
	return &Service{
		settlement: params.Settlement,
		gateway:    params.Gateway,
		metrics:    params.Metrics,
		log:        params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	err := s.dispatch(ctx, event)
	if s.metrics != nil {
		s.metrics.ObserveEvent(string(event.Type), resultLabel(err))
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypePaymentIntentCreated,
		stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if !s.decode(ctx, event, &intent) {
			return nil
		}
		return s.settlement.OnIntentEvent(ctx, &intent)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if !s.decode(ctx, event, &intent) {
			return nil
		}
		return s.settlement.OnPaymentFailed(ctx, &intent)
	case stripe.EventTypeChargeSucceeded,
		stripe.EventTypeChargeUpdated,
		stripe.EventTypeChargeFailed,
		stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if !s.decode(ctx, event, &charge) {
			return nil
		}
		return s.settlement.OnChargeEvent(ctx, &charge)
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if !s.decode(ctx, event, &session) {
			return nil
		}
		return s.syncSessionIntent(ctx, &session)
	default:
		return nil
	}
}

// decode unmarshals the event payload. Malformed payloads never recover
// on retry, so they are logged and swallowed rather than surfaced.
func (s *Service) decode(ctx context.Context, event *stripe.Event, dst any) bool {
	if err := json.Unmarshal(event.Data.Raw, dst); err != nil {
		if s.log != nil {
			s.log.Error(ctx, "dropping malformed "+string(event.Type)+" event", err)
		}
		return false
	}
	return true
}

// syncSessionIntent resolves the session's payment intent and runs it
// through settlement. Session payloads carry only the intent id, so the
// full object is fetched from the gateway.
func (s *Service) syncSessionIntent(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
		if s.log != nil {
			s.log.Warn(ctx, "checkout session completed without a payment intent")
		}
		return nil
	}
	intent, err := s.gateway.GetPaymentIntent(ctx, session.PaymentIntent.ID, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment intent")
	}
	return s.settlement.OnIntentEvent(ctx, intent)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
