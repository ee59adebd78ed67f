package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
)

type fakeSettlement struct {
	intents []*stripe.PaymentIntent
	failed  []*stripe.PaymentIntent
	charges []*stripe.Charge
	err     error
}

func (f *fakeSettlement) OnIntentEvent(ctx context.Context, intent *stripe.PaymentIntent) error {
	f.intents = append(f.intents, intent)
	return f.err
}

func (f *fakeSettlement) OnPaymentFailed(ctx context.Context, intent *stripe.PaymentIntent) error {
	f.failed = append(f.failed, intent)
	return f.err
}

func (f *fakeSettlement) OnChargeEvent(ctx context.Context, charge *stripe.Charge) error {
	f.charges = append(f.charges, charge)
	return f.err
}

type fakeGateway struct {
	intent *stripe.PaymentIntent
	err    error
	calls  int
}

func (f *fakeGateway) NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return nil, nil
}

func (f *fakeGateway) GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.calls++
	return f.intent, f.err
}

func newTestService(t *testing.T, settlement *fakeSettlement, gateway *fakeGateway) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Settlement: settlement, Gateway: gateway})
	require.NoError(t, err)
	return svc
}

func stripeEvent(t *testing.T, eventType stripe.EventType, payload any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &stripe.Event{Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestIntentEventsRouteToSettlement(t *testing.T) {
	settlement := &fakeSettlement{}
	svc := newTestService(t, settlement, &fakeGateway{})

	event := stripeEvent(t, stripe.EventTypePaymentIntentSucceeded,
		stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	require.Len(t, settlement.intents, 1)
	assert.Equal(t, "pi_1", settlement.intents[0].ID)
}

func TestPaymentFailedRoutesToFailureHandler(t *testing.T) {
	settlement := &fakeSettlement{}
	svc := newTestService(t, settlement, &fakeGateway{})

	event := stripeEvent(t, stripe.EventTypePaymentIntentPaymentFailed,
		stripe.PaymentIntent{ID: "pi_2"})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	assert.Empty(t, settlement.intents)
	require.Len(t, settlement.failed, 1)
	assert.Equal(t, "pi_2", settlement.failed[0].ID)
}

func TestChargeEventsRouteToSettlement(t *testing.T) {
	settlement := &fakeSettlement{}
	svc := newTestService(t, settlement, &fakeGateway{})

	for _, eventType := range []stripe.EventType{
		stripe.EventTypeChargeSucceeded,
		stripe.EventTypeChargeRefunded,
	} {
		event := stripeEvent(t, eventType, stripe.Charge{ID: "ch_1"})
		require.NoError(t, svc.HandleEvent(context.Background(), event))
	}
	assert.Len(t, settlement.charges, 2)
}

func TestCheckoutSessionFetchesFullIntent(t *testing.T) {
	settlement := &fakeSettlement{}
	gateway := &fakeGateway{intent: &stripe.PaymentIntent{ID: "pi_3", Status: stripe.PaymentIntentStatusSucceeded}}
	svc := newTestService(t, settlement, gateway)

	event := stripeEvent(t, stripe.EventTypeCheckoutSessionCompleted,
		stripe.CheckoutSession{ID: "cs_1", PaymentIntent: &stripe.PaymentIntent{ID: "pi_3"}})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	assert.Equal(t, 1, gateway.calls)
	require.Len(t, settlement.intents, 1)
	assert.Equal(t, "pi_3", settlement.intents[0].ID)
}

func TestCheckoutSessionWithoutIntentIsIgnored(t *testing.T) {
	settlement := &fakeSettlement{}
	gateway := &fakeGateway{}
	svc := newTestService(t, settlement, gateway)

	event := stripeEvent(t, stripe.EventTypeCheckoutSessionCompleted, stripe.CheckoutSession{ID: "cs_2"})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	assert.Zero(t, gateway.calls)
	assert.Empty(t, settlement.intents)
}

func TestUnknownEventTypeIsAcknowledged(t *testing.T) {
	settlement := &fakeSettlement{}
	svc := newTestService(t, settlement, &fakeGateway{})

	event := stripeEvent(t, "customer.created", map[string]string{"id": "cus_1"})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	assert.Empty(t, settlement.intents)
	assert.Empty(t, settlement.charges)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	settlement := &fakeSettlement{}
	svc := newTestService(t, settlement, &fakeGateway{})

	event := &stripe.Event{
		Type: stripe.EventTypePaymentIntentSucceeded,
		Data: &stripe.EventData{Raw: json.RawMessage(`{"amount": "not-a-number"`)},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, settlement.intents)
}

func TestNilEventRejected(t *testing.T) {
	svc := newTestService(t, &fakeSettlement{}, &fakeGateway{})
	assert.Error(t, svc.HandleEvent(context.Background(), nil))
}
