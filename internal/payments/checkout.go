package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/ksmithweb/campusmarket-backend/internal/bids"
	"github.com/ksmithweb/campusmarket-backend/internal/listings"
	"github.com/ksmithweb/campusmarket-backend/internal/orders"
	"github.com/ksmithweb/campusmarket-backend/pkg/config"
	"github.com/ksmithweb/campusmarket-backend/pkg/db"
	"github.com/ksmithweb/campusmarket-backend/pkg/db/models"
	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
	pkgerrors "github.com/ksmithweb/campusmarket-backend/pkg/errors"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderAssembler interface {
	FromCart(ctx context.Context, userID uuid.UUID) (*models.Order, error)
	FromBid(ctx context.Context, tx *gorm.DB, bid *models.Bid) (*models.Order, error)
}

// CheckoutParams carries the dependencies for the checkout service.
type CheckoutParams struct {
	TxRunner    txRunner
	Gateway     GatewayClient
	Assembler   orderAssembler
	OrderRepo   orders.Repository
	BidRepo     bids.Repository
	ListingRepo listings.Repository
	PaymentRepo Repository
	Stripe      config.StripeConfig
	Logger      *logger.Logger
}

// CheckoutService turns orders into hosted gateway checkout sessions and
// seeds the pending payment row the reconciler later resolves.
type CheckoutService struct {
	tx          txRunner
	gateway     GatewayClient
	assembler   orderAssembler
	orders      orders.Repository
	bids        bids.Repository
	listings    listings.Repository
	payments    Repository
	successURL  string
	cancelURL   string
	currency    enums.Currency
	callTimeout time.Duration
	log         *logger.Logger
}

// NewCheckoutService builds the checkout service.
func NewCheckoutService(p CheckoutParams) (*CheckoutService, error) {
	if p.TxRunner == nil {
		return nil, fmt.Errorf("payments: tx runner is required")
	}
	if p.Gateway == nil {
		return nil, fmt.Errorf("payments: gateway client is required")
	}
	if p.Assembler == nil {
		return nil, fmt.Errorf("payments: order assembler is required")
	}
	if p.OrderRepo == nil {
		return nil, fmt.Errorf("payments: order repository is required")
	}
	if p.BidRepo == nil {
		return nil, fmt.Errorf("payments: bid repository is required")
	}
	if p.ListingRepo == nil {
		return nil, fmt.Errorf("payments: listing repository is required")
	}
	if p.PaymentRepo == nil {
		return nil, fmt.Errorf("payments: payment repository is required")
	}
	timeout := p.Stripe.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CheckoutService{
		tx:          p.TxRunner,
		gateway:     p.Gateway,
		assembler:   p.Assembler,
		orders:      p.OrderRepo,
		bids:        p.BidRepo,
		listings:    p.ListingRepo,
		payments:    p.PaymentRepo,
		successURL:  p.Stripe.SuccessURL,
		cancelURL:   p.Stripe.CancelURL,
		currency:    enums.NormalizeCurrency(p.Stripe.DefaultCurrency),
		callTimeout: timeout,
		log:         p.Logger,
	}, nil
}

// CheckoutSession is the client-facing handle for a created session.
type CheckoutSession struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
}

// CheckoutFromCart assembles an order from the user's cart and opens a
// checkout session for it.
func (s *CheckoutService) CheckoutFromCart(ctx context.Context, userID uuid.UUID) (*CheckoutSession, error) {
	order, err := s.assembler.FromCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, order)
}

// CheckoutFromBid opens a checkout session for the order assembled when
// the buyer's bid was accepted. A failed payment leaves the bid ACCEPTED
// with its order cancelled, so a retry assembles a fresh pending order.
func (s *CheckoutService) CheckoutFromBid(ctx context.Context, bidID, actorID uuid.UUID) (*CheckoutSession, error) {
	bid, err := s.bids.FindByID(ctx, bidID)
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bid not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bid")
	}
	if bid.BuyerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the bidder can pay for an accepted bid")
	}
	if bid.Status != enums.BidStatusAccepted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bid has not been accepted")
	}

	var order *models.Order
	if bid.OrderID != nil {
		order, err = s.orders.FindByID(ctx, *bid.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == enums.OrderStatusCancelled {
			// The linked order died with an earlier payment attempt.
			bid.OrderID = nil
			order = nil
		}
	}
	if order == nil {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			fresh, err := s.assembler.FromBid(ctx, tx, bid)
			if err != nil {
				return err
			}
			if err := s.bids.WithTx(tx).Update(ctx, bid); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link order to bid")
			}
			order = fresh
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return s.openSession(ctx, order)
}

// CheckoutOrder reopens a checkout session for an existing pending order,
// typically after the buyer abandoned an earlier session.
func (s *CheckoutService) CheckoutOrder(ctx context.Context, orderID, actorID uuid.UUID) (*CheckoutSession, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can pay for an order")
	}
	return s.openSession(ctx, order)
}

func (s *CheckoutService) openSession(ctx context.Context, order *models.Order) (*CheckoutSession, error) {
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s and cannot be paid", order.Status))
	}
	payment, err := s.ensurePayment(ctx, order)
	if err != nil {
		return nil, err
	}

	params, err := s.sessionParams(ctx, order)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	sess, err := s.gateway.NewCheckoutSession(callCtx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	// Each session mints its own intent; the payment row follows the
	// latest one so webhook deliveries for a retried checkout match it.
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" &&
		(payment.StripeIntentID == nil || *payment.StripeIntentID != sess.PaymentIntent.ID) {
		intentID := sess.PaymentIntent.ID
		payment.StripeIntentID = &intentID
		if err := s.payments.Update(ctx, payment); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment intent")
		}
	}

	if s.log != nil {
		s.log.Info(ctx, fmt.Sprintf("checkout session %s opened for order %s", sess.ID, order.ID))
	}
	return &CheckoutSession{
		SessionID: sess.ID,
		URL:       sess.URL,
		OrderID:   order.ID,
		PaymentID: payment.ID,
	}, nil
}

// ensurePayment finds or creates the pending payment row for an order.
// A completed row means the order was already paid.
func (s *CheckoutService) ensurePayment(ctx context.Context, order *models.Order) (*models.Payment, error) {
	existing, err := s.payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find payment for order")
	}
	if existing != nil {
		if existing.Status == enums.PaymentStatusCompleted {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
		}
		return existing, nil
	}

	orderID := order.ID
	payment := &models.Payment{
		OrderID:  &orderID,
		Status:   enums.PaymentStatusPending,
		Amount:   decimal.NewFromInt(int64(order.TotalCents)).Shift(-2),
		Currency: s.currency,
	}
	created, err := s.payments.Create(ctx, payment)
	if err == nil {
		return created, nil
	}
	if db.IsUniqueViolation(err, uxPaymentsOrderID) {
		existing, findErr := s.payments.FindByOrderID(ctx, order.ID)
		if findErr == nil && existing != nil {
			return existing, nil
		}
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
}

func (s *CheckoutService) sessionParams(ctx context.Context, order *models.Order) (*stripe.CheckoutSessionParams, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(order.ID.String()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Description: stripe.String(DescriptionPrefix + order.ID.String()),
			Metadata:    map[string]string{"order_id": order.ID.String()},
		},
	}
	params.AddExpand("payment_intent")

	for _, item := range order.Items {
		name, err := s.lineItemName(ctx, item.ListingID)
		if err != nil {
			return nil, err
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Qty)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency.String()),
				UnitAmount: stripe.Int64(MinorUnitsFromCents(item.UnitPriceCents, s.currency.String())),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		})
	}
	if len(params.LineItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
	}
	return params, nil
}

func (s *CheckoutService) lineItemName(ctx context.Context, listingID uuid.UUID) (string, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return "Campus Market item", nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing for checkout")
	}
	return listing.Title, nil
}
