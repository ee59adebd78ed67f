package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/ksmithweb/campusmarket-backend/internal/bids"
	"github.com/ksmithweb/campusmarket-backend/internal/listings"
	"github.com/ksmithweb/campusmarket-backend/internal/orders"
	"github.com/ksmithweb/campusmarket-backend/internal/payments"
	"github.com/ksmithweb/campusmarket-backend/pkg/db/models"
	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubPaymentRepo struct {
	rows map[uuid.UUID]*models.Payment
}

func newStubPaymentRepo(rows ...*models.Payment) *stubPaymentRepo {
	repo := &stubPaymentRepo{rows: make(map[uuid.UUID]*models.Payment)}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		repo.rows[row.ID] = row
	}
	return repo
}

func (m *stubPaymentRepo) WithTx(tx *gorm.DB) payments.Repository { return m }

func (m *stubPaymentRepo) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	m.rows[payment.ID] = payment
	return payment, nil
}

func (m *stubPaymentRepo) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	for _, row := range m.rows {
		if row.StripeIntentID != nil && *row.StripeIntentID == intentID {
			return row, nil
		}
	}
	return nil, nil
}

func (m *stubPaymentRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	for _, row := range m.rows {
		if row.OrderID != nil && *row.OrderID == orderID {
			return row, nil
		}
	}
	return nil, nil
}

func (m *stubPaymentRepo) Update(ctx context.Context, payment *models.Payment) error {
	m.rows[payment.ID] = payment
	return nil
}

func (m *stubPaymentRepo) TransitionStatus(ctx context.Context, id uuid.UUID, to enums.PaymentStatus) (bool, error) {
	row, ok := m.rows[id]
	if !ok || row.Status != enums.PaymentStatusPending {
		return false, nil
	}
	row.Status = to
	return true, nil
}

type stubOrderRepo struct {
	rows map[uuid.UUID]*models.Order
}

func newStubOrderRepo(rows ...*models.Order) *stubOrderRepo {
	repo := &stubOrderRepo{rows: make(map[uuid.UUID]*models.Order)}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		repo.rows[row.ID] = row
	}
	return repo
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.rows[order.ID] = order
	return order, nil
}

func (s *stubOrderRepo) CreateItems(ctx context.Context, items []models.OrderItem) error { return nil }

func (s *stubOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := s.rows[id]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrderRepo) TransitionStatus(ctx context.Context, id uuid.UUID, to enums.OrderStatus) (bool, error) {
	order, ok := s.rows[id]
	if !ok || order.Status != enums.OrderStatusPending {
		return false, nil
	}
	order.Status = to
	return true, nil
}

type stubBidRepo struct {
	rows map[uuid.UUID]*models.Bid
}

func newStubBidRepo(rows ...*models.Bid) *stubBidRepo {
	repo := &stubBidRepo{rows: make(map[uuid.UUID]*models.Bid)}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		repo.rows[row.ID] = row
	}
	return repo
}

func (s *stubBidRepo) WithTx(tx *gorm.DB) bids.Repository { return s }

func (s *stubBidRepo) Create(ctx context.Context, bid *models.Bid) (*models.Bid, error) {
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	s.rows[bid.ID] = bid
	return bid, nil
}

func (s *stubBidRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	if bid, ok := s.rows[id]; ok {
		return bid, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubBidRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Bid, error) {
	for _, bid := range s.rows {
		if bid.OrderID != nil && *bid.OrderID == orderID {
			return bid, nil
		}
	}
	return nil, nil
}

func (s *stubBidRepo) ListByListing(ctx context.Context, listingID uuid.UUID) ([]models.Bid, error) {
	return nil, nil
}

func (s *stubBidRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Bid, error) {
	return nil, nil
}

func (s *stubBidRepo) ListOpenByListing(ctx context.Context, listingID uuid.UUID) ([]models.Bid, error) {
	return nil, nil
}

func (s *stubBidRepo) CountOpenByListing(ctx context.Context, listingID uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *stubBidRepo) Update(ctx context.Context, bid *models.Bid) error {
	s.rows[bid.ID] = bid
	return nil
}

func (s *stubBidRepo) MarkRejected(ctx context.Context, ids []uuid.UUID) error { return nil }

type stubListingRepo struct {
	rows    map[uuid.UUID]*models.Listing
	updates int
}

func newStubListingRepo(rows ...*models.Listing) *stubListingRepo {
	repo := &stubListingRepo{rows: make(map[uuid.UUID]*models.Listing)}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		repo.rows[row.ID] = row
	}
	return repo
}

func (s *stubListingRepo) WithTx(tx *gorm.DB) listings.Repository { return s }

func (s *stubListingRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	if listing, ok := s.rows[id]; ok {
		return listing, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubListingRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return s.FindByID(ctx, id)
}

func (s *stubListingRepo) Update(ctx context.Context, listing *models.Listing) error {
	s.rows[listing.ID] = listing
	s.updates++
	return nil
}

type recordingNotifier struct {
	notes []string
	users []uuid.UUID
}

func (r *recordingNotifier) Send(ctx context.Context, userID uuid.UUID, category enums.NotificationCategory, body string) {
	r.notes = append(r.notes, body)
	r.users = append(r.users, userID)
}

type fixture struct {
	svc      *Service
	payments *stubPaymentRepo
	orders   *stubOrderRepo
	bids     *stubBidRepo
	listings *stubListingRepo
	notifier *recordingNotifier
}

func newFixture(t *testing.T, paymentRepo *stubPaymentRepo, orderRepo *stubOrderRepo, bidRepo *stubBidRepo, listingRepo *stubListingRepo) *fixture {
	t.Helper()
	recon, err := payments.NewReconciler(paymentRepo, nil)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	svc, err := NewService(ServiceParams{
		TxRunner:    stubTxRunner{},
		Reconciler:  recon,
		OrderRepo:   orderRepo,
		BidRepo:     bidRepo,
		ListingRepo: listingRepo,
		Notifier:    notifier,
	})
	require.NoError(t, err)
	return &fixture{
		svc:      svc,
		payments: paymentRepo,
		orders:   orderRepo,
		bids:     bidRepo,
		listings: listingRepo,
		notifier: notifier,
	}
}

func succeededIntent(orderID uuid.UUID) *stripe.PaymentIntent {
	return &stripe.PaymentIntent{
		ID:       "pi_123",
		Status:   stripe.PaymentIntentStatusSucceeded,
		Amount:   8500,
		Currency: stripe.CurrencyUSD,
		Metadata: map[string]string{"order_id": orderID.String()},
	}
}

func TestSuccessSettlesBidOrder(t *testing.T) {
	buyer := uuid.New()
	seller := uuid.New()
	listing := &models.Listing{ID: uuid.New(), SellerID: seller, Title: "mini fridge",
		Quantity: 1, Status: enums.ListingStatusInactive}
	order := &models.Order{ID: uuid.New(), UserID: buyer, TotalCents: 8500, Status: enums.OrderStatusPending}
	orderID := order.ID
	bid := &models.Bid{ID: uuid.New(), ListingID: listing.ID, BuyerID: buyer,
		PriceCents: 8500, Status: enums.BidStatusAccepted, OrderID: &orderID}
	payment := &models.Payment{OrderID: &orderID, Status: enums.PaymentStatusPending,
		Amount: decimal.RequireFromString("85.00"), Currency: enums.CurrencyUSD}

	f := newFixture(t, newStubPaymentRepo(payment), newStubOrderRepo(order), newStubBidRepo(bid), newStubListingRepo(listing))

	require.NoError(t, f.svc.OnIntentEvent(context.Background(), succeededIntent(orderID)))

	assert.Equal(t, enums.OrderStatusCompleted, order.Status)
	assert.Equal(t, enums.BidStatusPaid, bid.Status)
	assert.Equal(t, enums.ListingStatusSold, listing.Status)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	// both sides of the sale hear about it
	require.Len(t, f.notifier.users, 2)
	assert.Equal(t, buyer, f.notifier.users[0])
	assert.Equal(t, seller, f.notifier.users[1])
}

func TestDuplicateSuccessSettlesOnce(t *testing.T) {
	buyer := uuid.New()
	listing := &models.Listing{ID: uuid.New(), SellerID: uuid.New(), Title: "desk lamp",
		Quantity: 3, Status: enums.ListingStatusActive}
	order := &models.Order{ID: uuid.New(), UserID: buyer, TotalCents: 4000, Status: enums.OrderStatusPending}
	orderID := order.ID
	order.Items = []models.OrderItem{{OrderID: orderID, ListingID: listing.ID, Qty: 1, UnitPriceCents: 4000}}
	payment := &models.Payment{OrderID: &orderID, Status: enums.PaymentStatusPending,
		Amount: decimal.RequireFromString("40.00"), Currency: enums.CurrencyUSD}

	f := newFixture(t, newStubPaymentRepo(payment), newStubOrderRepo(order), newStubBidRepo(), newStubListingRepo(listing))

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.OnIntentEvent(context.Background(), succeededIntent(orderID)))
	}

	// stock decremented once, one notification
	assert.Equal(t, 2, listing.Quantity)
	assert.Equal(t, enums.OrderStatusCompleted, order.Status)
	assert.Len(t, f.notifier.users, 1)
}

func TestCartSuccessFloorsStockAtZero(t *testing.T) {
	buyer := uuid.New()
	listing := &models.Listing{ID: uuid.New(), SellerID: uuid.New(), Title: "futon",
		Quantity: 1, Status: enums.ListingStatusActive}
	order := &models.Order{ID: uuid.New(), UserID: buyer, TotalCents: 25000, Status: enums.OrderStatusPending}
	orderID := order.ID
	order.Items = []models.OrderItem{{OrderID: orderID, ListingID: listing.ID, Qty: 5, UnitPriceCents: 5000}}
	payment := &models.Payment{OrderID: &orderID, Status: enums.PaymentStatusPending,
		Amount: decimal.RequireFromString("250.00"), Currency: enums.CurrencyUSD}

	f := newFixture(t, newStubPaymentRepo(payment), newStubOrderRepo(order), newStubBidRepo(), newStubListingRepo(listing))

	require.NoError(t, f.svc.OnIntentEvent(context.Background(), succeededIntent(orderID)))

	assert.Equal(t, 0, listing.Quantity)
	assert.Equal(t, enums.ListingStatusSold, listing.Status)
}

func TestFailureReopensBidListing(t *testing.T) {
	buyer := uuid.New()
	seller := uuid.New()
	listing := &models.Listing{ID: uuid.New(), SellerID: seller, Title: "bike",
		Quantity: 1, Status: enums.ListingStatusInactive}
	order := &models.Order{ID: uuid.New(), UserID: buyer, TotalCents: 12000, Status: enums.OrderStatusPending}
	orderID := order.ID
	bid := &models.Bid{ID: uuid.New(), ListingID: listing.ID, BuyerID: buyer,
		PriceCents: 12000, Status: enums.BidStatusAccepted, OrderID: &orderID}
	payment := &models.Payment{OrderID: &orderID, Status: enums.PaymentStatusPending,
		Amount: decimal.RequireFromString("120.00"), Currency: enums.CurrencyUSD}

	f := newFixture(t, newStubPaymentRepo(payment), newStubOrderRepo(order), newStubBidRepo(bid), newStubListingRepo(listing))

	intent := succeededIntent(orderID)
	intent.Status = stripe.PaymentIntentStatusRequiresPaymentMethod
	require.NoError(t, f.svc.OnPaymentFailed(context.Background(), intent))

	assert.Equal(t, enums.OrderStatusCancelled, order.Status)
	// the accepted bid survives so the buyer can retry payment, but the
	// dead order is unlinked so the retry assembles a fresh one
	assert.Equal(t, enums.BidStatusAccepted, bid.Status)
	assert.Nil(t, bid.OrderID)
	assert.Equal(t, enums.ListingStatusActive, listing.Status)
	assert.Equal(t, enums.PaymentStatusFailed, payment.Status)
	require.Len(t, f.notifier.notes, 2)
	assert.Contains(t, f.notifier.notes[0], "Unknown error")
	assert.Equal(t, buyer, f.notifier.users[0])
	assert.Equal(t, seller, f.notifier.users[1])
}

func TestChargeWithoutIntentIsDropped(t *testing.T) {
	f := newFixture(t, newStubPaymentRepo(), newStubOrderRepo(), newStubBidRepo(), newStubListingRepo())
	require.NoError(t, f.svc.OnChargeEvent(context.Background(), &stripe.Charge{Status: stripe.ChargeStatusSucceeded}))
	assert.Empty(t, f.notifier.notes)
}

func TestSettlementWithUnknownOrderIsNoop(t *testing.T) {
	f := newFixture(t, newStubPaymentRepo(), newStubOrderRepo(), newStubBidRepo(), newStubListingRepo())

	intent := &stripe.PaymentIntent{
		ID:       "pi_999",
		Status:   stripe.PaymentIntentStatusSucceeded,
		Amount:   1000,
		Currency: stripe.CurrencyUSD,
	}
	require.NoError(t, f.svc.OnIntentEvent(context.Background(), intent))
	assert.Empty(t, f.notifier.notes)
}
