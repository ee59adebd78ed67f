package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/ksmithweb/campusmarket-backend/internal/bids"
	"github.com/ksmithweb/campusmarket-backend/internal/listings"
	"github.com/ksmithweb/campusmarket-backend/internal/notifications"
	"github.com/ksmithweb/campusmarket-backend/internal/orders"
	"github.com/ksmithweb/campusmarket-backend/internal/payments"
	"github.com/ksmithweb/campusmarket-backend/pkg/db/models"
	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
	pkgerrors "github.com/ksmithweb/campusmarket-backend/pkg/errors"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
	"github.com/ksmithweb/campusmarket-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams carries the dependencies for the settlement service.
type ServiceParams struct {
	TxRunner    txRunner
	Reconciler  *payments.Reconciler
	OrderRepo   orders.Repository
	BidRepo     bids.Repository
	ListingRepo listings.Repository
	Notifier    notifications.Sink
	Metrics     *metrics.PaymentMetrics
	Logger      *logger.Logger
}

// Service applies the downstream effects of a payment outcome exactly
// once. The order status transition is the gate: reconciliation and the
// side effects share one transaction, so a replayed event either sees
// the order already terminal and does nothing, or rolls back whole.
type Service struct {
	tx       txRunner
	recon    *payments.Reconciler
	orders   orders.Repository
	bids     bids.Repository
	listings listings.Repository
	notifier notifications.Sink
	metrics  *metrics.PaymentMetrics
	log      *logger.Logger
}

// NewService builds the settlement service.
func NewService(p ServiceParams) (*Service, error) {
	if p.TxRunner == nil {
		return nil, fmt.Errorf("settlement: tx runner is required")
	}
	if p.Reconciler == nil {
		return nil, fmt.Errorf("settlement: reconciler is required")
	}
	if p.OrderRepo == nil {
		return nil, fmt.Errorf("settlement: order repository is required")
	}
	if p.BidRepo == nil {
		return nil, fmt.Errorf("settlement: bid repository is required")
	}
	if p.ListingRepo == nil {
		return nil, fmt.Errorf("settlement: listing repository is required")
	}
	if p.Notifier == nil {
		return nil, fmt.Errorf("settlement: notifier is required")
	}
	return &Service{
		tx:       p.TxRunner,
		recon:    p.Reconciler,
		orders:   p.OrderRepo,
		bids:     p.BidRepo,
		listings: p.ListingRepo,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		log:      p.Logger,
	}, nil
}

// OnIntentEvent reconciles a payment intent event and, when it resolves
// the payment, runs settlement.
func (s *Service) OnIntentEvent(ctx context.Context, intent *stripe.PaymentIntent) error {
	if intent == nil || intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent required")
	}
	return s.apply(s.withIntent(ctx, intent.ID), payments.SnapshotFromIntent(intent))
}

// OnPaymentFailed reconciles a payment_intent.payment_failed delivery.
// The intent status alone still reads as in-progress, so the failure is
// forced into the snapshot.
func (s *Service) OnPaymentFailed(ctx context.Context, intent *stripe.PaymentIntent) error {
	if intent == nil || intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent required")
	}
	snap := payments.SnapshotFromIntent(intent)
	snap.Status = enums.PaymentStatusFailed
	if snap.FailureReason == nil {
		reason := "Unknown error"
		snap.FailureReason = &reason
	}
	return s.apply(s.withIntent(ctx, intent.ID), snap)
}

// OnChargeEvent reconciles a charge event. Charges are how the receipt
// URL and failure detail reach the payment row.
func (s *Service) OnChargeEvent(ctx context.Context, charge *stripe.Charge) error {
	if charge == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge required")
	}
	snap := payments.SnapshotFromCharge(charge)
	if snap.IntentID == "" {
		// A charge with no intent belongs to nothing we track.
		if s.log != nil {
			s.log.Warn(ctx, "dropping charge event without payment intent")
		}
		return nil
	}
	return s.apply(s.withIntent(ctx, snap.IntentID), snap)
}

func (s *Service) withIntent(ctx context.Context, intentID string) context.Context {
	if s.log == nil {
		return ctx
	}
	return s.log.WithIntentID(ctx, intentID)
}

type settleNote struct {
	userID uuid.UUID
	body   string
}

func (s *Service) apply(ctx context.Context, snap payments.IntentSnapshot) error {
	var notes []settleNote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.recon.Ensure(ctx, tx, snap)
		if err != nil {
			return err
		}
		if !res.Transitioned {
			return nil
		}
		switch res.Payment.Status {
		case enums.PaymentStatusCompleted:
			notes, err = s.settleSuccess(ctx, tx, res.Payment)
		case enums.PaymentStatusFailed, enums.PaymentStatusRefunded:
			notes, err = s.settleFailure(ctx, tx, res.Payment)
		}
		return err
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveSettlement("error")
		}
		return err
	}

	if len(notes) == 0 {
		if s.metrics != nil {
			s.metrics.ObserveSettlement("noop")
		}
		return nil
	}
	if s.metrics != nil {
		s.metrics.ObserveSettlement(string(snap.Status))
	}
	for _, note := range notes {
		s.notifier.Send(ctx, note.userID, enums.NotificationPaymentResult, note.body)
	}
	return nil
}

// settleSuccess completes the order, marks the winning bid PAID, and
// burns listing stock. The conditional order transition makes replays
// inert: only the call that flips PENDING to COMPLETED runs the rest.
func (s *Service) settleSuccess(ctx context.Context, tx *gorm.DB, payment *models.Payment) ([]settleNote, error) {
	if payment.OrderID == nil {
		if s.log != nil {
			s.log.Warn(ctx, "settled payment has no order")
		}
		return nil, nil
	}
	orderRepo := s.orders.WithTx(tx)
	applied, err := orderRepo.TransitionStatus(ctx, *payment.OrderID, enums.OrderStatusCompleted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
	}
	if !applied {
		return nil, nil
	}
	order, err := orderRepo.FindByID(ctx, *payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	notes := []settleNote{{
		userID: order.UserID,
		body:   fmt.Sprintf("Payment received, order %s is confirmed", order.ID),
	}}

	bid, err := s.bids.WithTx(tx).FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find bid for order")
	}
	if bid != nil {
		listing, err := s.settleBidSuccess(ctx, tx, bid)
		if err != nil {
			return nil, err
		}
		notes = append(notes, settleNote{
			userID: listing.SellerID,
			body:   fmt.Sprintf("Payment received for %q, the sale is complete", listing.Title),
		})
	} else {
		if err := s.burnStock(ctx, tx, order.Items); err != nil {
			return nil, err
		}
	}

	return notes, nil
}

func (s *Service) settleBidSuccess(ctx context.Context, tx *gorm.DB, bid *models.Bid) (*models.Listing, error) {
	bid.Status = enums.BidStatusPaid
	if err := s.bids.WithTx(tx).Update(ctx, bid); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark bid paid")
	}
	listingRepo := s.listings.WithTx(tx)
	listing, err := listingRepo.FindByIDForUpdate(ctx, bid.ListingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	listing.Status = enums.ListingStatusSold
	if err := listingRepo.Update(ctx, listing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark listing sold")
	}
	return listing, nil
}

// burnStock decrements cart-order stock, flooring at zero. Quantity can
// undershoot when concurrent orders oversell; the floor keeps the count
// sane and zero flips the listing to SOLD.
func (s *Service) burnStock(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	listingRepo := s.listings.WithTx(tx)
	for _, item := range items {
		listing, err := listingRepo.FindByIDForUpdate(ctx, item.ListingID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing for stock")
		}
		remaining := listing.Quantity - item.Qty
		if remaining < 0 {
			if s.log != nil {
				s.log.Warn(s.log.WithListingID(ctx, listing.ID.String()), "listing oversold, flooring stock at zero")
			}
			remaining = 0
		}
		listing.Quantity = remaining
		if remaining == 0 {
			listing.Status = enums.ListingStatusSold
		}
		if err := listingRepo.Update(ctx, listing); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update listing stock")
		}
	}
	return nil
}

// settleFailure cancels the order. A bid-sourced order keeps its
// ACCEPTED bid but drops the link to the dead order, so the next
// checkout attempt assembles a fresh one, and the listing reopens.
func (s *Service) settleFailure(ctx context.Context, tx *gorm.DB, payment *models.Payment) ([]settleNote, error) {
	if payment.OrderID == nil {
		return nil, nil
	}
	orderRepo := s.orders.WithTx(tx)
	applied, err := orderRepo.TransitionStatus(ctx, *payment.OrderID, enums.OrderStatusCancelled)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !applied {
		return nil, nil
	}
	order, err := orderRepo.FindByID(ctx, *payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	body := fmt.Sprintf("Payment for order %s did not go through", order.ID)
	if payment.FailureReason != nil && *payment.FailureReason != "" {
		body = fmt.Sprintf("%s: %s", body, *payment.FailureReason)
	}
	notes := []settleNote{{userID: order.UserID, body: body}}

	bid, err := s.bids.WithTx(tx).FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find bid for order")
	}
	if bid != nil {
		bid.OrderID = nil
		if err := s.bids.WithTx(tx).Update(ctx, bid); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unlink bid order")
		}
		listingRepo := s.listings.WithTx(tx)
		listing, err := listingRepo.FindByIDForUpdate(ctx, bid.ListingID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
		}
		if listing.Status == enums.ListingStatusInactive {
			listing.Status = enums.ListingStatusActive
			if err := listingRepo.Update(ctx, listing); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen listing")
			}
		}
		notes = append(notes, settleNote{
			userID: listing.SellerID,
			body:   fmt.Sprintf("The buyer's payment for %q did not go through", listing.Title),
		})
	}

	return notes, nil
}
