package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/ksmithweb/campusmarket-backend/pkg/db/models"
	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
)

type memPaymentRepo struct {
	rows map[uuid.UUID]*models.Payment
}

func newMemPaymentRepo(rows ...*models.Payment) *memPaymentRepo {
	repo := &memPaymentRepo{rows: make(map[uuid.UUID]*models.Payment)}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		repo.rows[row.ID] = row
	}
	return repo
}

func (m *memPaymentRepo) WithTx(tx *gorm.DB) Repository { return m }

func (m *memPaymentRepo) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	m.rows[payment.ID] = payment
	return payment, nil
}

func (m *memPaymentRepo) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	for _, row := range m.rows {
		if row.StripeIntentID != nil && *row.StripeIntentID == intentID {
			return row, nil
		}
	}
	return nil, nil
}

func (m *memPaymentRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	for _, row := range m.rows {
		if row.OrderID != nil && *row.OrderID == orderID {
			return row, nil
		}
	}
	return nil, nil
}

func (m *memPaymentRepo) Update(ctx context.Context, payment *models.Payment) error {
	m.rows[payment.ID] = payment
	return nil
}

func (m *memPaymentRepo) TransitionStatus(ctx context.Context, id uuid.UUID, to enums.PaymentStatus) (bool, error) {
	row, ok := m.rows[id]
	if !ok || row.Status != enums.PaymentStatusPending {
		return false, nil
	}
	row.Status = to
	return true, nil
}

func newTestReconciler(t *testing.T, repo Repository) *Reconciler {
	t.Helper()
	recon, err := NewReconciler(repo, nil)
	require.NoError(t, err)
	return recon
}

func succeededSnapshot(intentID string, orderID *uuid.UUID) IntentSnapshot {
	return IntentSnapshot{
		IntentID: intentID,
		OrderID:  orderID,
		Status:   enums.PaymentStatusCompleted,
		Amount:   decimal.RequireFromString("85.00"),
		Currency: "usd",
	}
}

func TestEnsureCreatesRowForUnknownIntent(t *testing.T) {
	repo := newMemPaymentRepo()
	recon := newTestReconciler(t, repo)

	res, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_123", nil))
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.Equal(t, enums.PaymentStatusCompleted, res.Payment.Status)
	require.NotNil(t, res.Payment.StripeIntentID)
	assert.Equal(t, "pi_123", *res.Payment.StripeIntentID)
}

func TestEnsureAdoptsCheckoutRowByOrderID(t *testing.T) {
	orderID := uuid.New()
	pending := &models.Payment{
		OrderID:  &orderID,
		Status:   enums.PaymentStatusPending,
		Amount:   decimal.RequireFromString("85.00"),
		Currency: enums.CurrencyUSD,
	}
	repo := newMemPaymentRepo(pending)
	recon := newTestReconciler(t, repo)

	res, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_123", &orderID))
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.Equal(t, pending.ID, res.Payment.ID)
	require.NotNil(t, res.Payment.StripeIntentID)
	assert.Equal(t, "pi_123", *res.Payment.StripeIntentID)
	assert.Len(t, repo.rows, 1)
}

func TestEnsureAdoptsRetriedIntentID(t *testing.T) {
	orderID := uuid.New()
	staleIntent := "pi_old"
	pending := &models.Payment{
		OrderID:        &orderID,
		StripeIntentID: &staleIntent,
		Status:         enums.PaymentStatusPending,
		Amount:         decimal.RequireFromString("85.00"),
		Currency:       enums.CurrencyUSD,
	}
	repo := newMemPaymentRepo(pending)
	recon := newTestReconciler(t, repo)

	// a retried checkout minted a new intent for the same order
	res, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_new", &orderID))
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.Equal(t, pending.ID, res.Payment.ID)
	require.NotNil(t, res.Payment.StripeIntentID)
	assert.Equal(t, "pi_new", *res.Payment.StripeIntentID)

	// a follow-up delivery keyed only by the new intent lands on the
	// same row instead of spawning a duplicate
	dup, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_new", nil))
	require.NoError(t, err)
	assert.False(t, dup.Transitioned)
	assert.Equal(t, pending.ID, dup.Payment.ID)
	assert.Len(t, repo.rows, 1)
}

func TestEnsureStaleIntentDoesNotRewriteSettledRow(t *testing.T) {
	orderID := uuid.New()
	repo := newMemPaymentRepo()
	recon := newTestReconciler(t, repo)

	_, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_new", &orderID))
	require.NoError(t, err)

	// a late delivery from the abandoned first attempt
	stale, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_old", &orderID))
	require.NoError(t, err)
	assert.False(t, stale.Transitioned)
	require.NotNil(t, stale.Payment.StripeIntentID)
	assert.Equal(t, "pi_new", *stale.Payment.StripeIntentID)
	assert.Len(t, repo.rows, 1)
}

func TestEnsureDuplicateDeliveryDoesNotTransitionTwice(t *testing.T) {
	repo := newMemPaymentRepo()
	recon := newTestReconciler(t, repo)

	first, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_123", nil))
	require.NoError(t, err)
	assert.True(t, first.Transitioned)

	second, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_123", nil))
	require.NoError(t, err)
	assert.False(t, second.Transitioned)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
}

func TestEnsureLateCreatedEventDoesNotRegress(t *testing.T) {
	repo := newMemPaymentRepo()
	recon := newTestReconciler(t, repo)

	// succeeded arrives before created
	_, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_123", nil))
	require.NoError(t, err)

	late := succeededSnapshot("pi_123", nil)
	late.Status = enums.PaymentStatusPending
	res, err := recon.Ensure(context.Background(), nil, late)
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Equal(t, enums.PaymentStatusCompleted, res.Payment.Status)
}

func TestEnsureConflictingTerminalKeepsRecordedOutcome(t *testing.T) {
	repo := newMemPaymentRepo()
	recon := newTestReconciler(t, repo)

	_, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_123", nil))
	require.NoError(t, err)

	failed := succeededSnapshot("pi_123", nil)
	failed.Status = enums.PaymentStatusFailed
	res, err := recon.Ensure(context.Background(), nil, failed)
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Equal(t, enums.PaymentStatusCompleted, res.Payment.Status)
}

func TestEnsureMergesReceiptAndFailureDetail(t *testing.T) {
	repo := newMemPaymentRepo()
	recon := newTestReconciler(t, repo)

	_, err := recon.Ensure(context.Background(), nil, succeededSnapshot("pi_123", nil))
	require.NoError(t, err)

	receipt := "https://receipts.example/r/1"
	update := succeededSnapshot("pi_123", nil)
	update.ReceiptURL = &receipt
	res, err := recon.Ensure(context.Background(), nil, update)
	require.NoError(t, err)
	require.NotNil(t, res.Payment.ReceiptURL)
	assert.Equal(t, receipt, *res.Payment.ReceiptURL)
}

func TestOrderIDFromIntentPrefersMetadata(t *testing.T) {
	fromMeta := uuid.New()
	fromDesc := uuid.New()
	intent := &stripe.PaymentIntent{
		ID:          "pi_123",
		Metadata:    map[string]string{"order_id": fromMeta.String()},
		Description: DescriptionPrefix + fromDesc.String(),
	}
	got := OrderIDFromIntent(intent)
	require.NotNil(t, got)
	assert.Equal(t, fromMeta, *got)
}

func TestOrderIDFromIntentFallsBackToDescription(t *testing.T) {
	orderID := uuid.New()
	intent := &stripe.PaymentIntent{
		ID:          "pi_123",
		Description: DescriptionPrefix + orderID.String(),
	}
	got := OrderIDFromIntent(intent)
	require.NotNil(t, got)
	assert.Equal(t, orderID, *got)
}

func TestOrderIDFromIntentUnparseable(t *testing.T) {
	assert.Nil(t, OrderIDFromIntent(&stripe.PaymentIntent{ID: "pi_123"}))
	assert.Nil(t, OrderIDFromIntent(&stripe.PaymentIntent{
		ID:          "pi_123",
		Metadata:    map[string]string{"order_id": "not-a-uuid"},
		Description: "unrelated text",
	}))
}

func TestSnapshotFromChargeCarriesReceipt(t *testing.T) {
	snap := SnapshotFromCharge(&stripe.Charge{
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_123"},
		Status:        stripe.ChargeStatusSucceeded,
		Amount:        8500,
		Currency:      stripe.CurrencyUSD,
		ReceiptURL:    "https://receipts.example/r/1",
	})
	assert.Equal(t, "pi_123", snap.IntentID)
	assert.Equal(t, enums.PaymentStatusCompleted, snap.Status)
	require.NotNil(t, snap.ReceiptURL)
}
