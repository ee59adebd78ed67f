package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/ksmithweb/campusmarket-backend/pkg/db"
	"github.com/ksmithweb/campusmarket-backend/pkg/db/models"
	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
	pkgerrors "github.com/ksmithweb/campusmarket-backend/pkg/errors"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
)

// DescriptionPrefix labels gateway objects created by this backend so
// the order id survives even when metadata is stripped.
const DescriptionPrefix = "campusmarket order "

const (
	uxPaymentsIntentID = "ux_payments_stripe_intent_id"
	uxPaymentsOrderID  = "ux_payments_order_id"
)

// IntentSnapshot is the subset of a gateway payment object the
// reconciler needs. Events of different shapes (intents, charges) are
// flattened into this form before merging.
type IntentSnapshot struct {
	IntentID      string
	OrderID       *uuid.UUID
	Status        enums.PaymentStatus
	Amount        decimal.Decimal
	Currency      string
	ReceiptURL    *string
	FailureReason *string
}

// Reconciler folds gateway events into payment rows. Events may arrive
// out of order and more than once; merging is monotonic, so a terminal
// row never regresses and replays converge on the same state.
type Reconciler struct {
	payments Repository
	log      *logger.Logger
}

// NewReconciler builds the payment reconciler.
func NewReconciler(payments Repository, log *logger.Logger) (*Reconciler, error) {
	if payments == nil {
		return nil, fmt.Errorf("payments: repository is required")
	}
	return &Reconciler{payments: payments, log: log}, nil
}

// EnsureResult reports what Ensure did with a snapshot.
type EnsureResult struct {
	Payment *models.Payment
	// Transitioned is true when THIS call moved the payment out of
	// PENDING. Settlement side effects key off it so duplicated
	// deliveries run them at most once.
	Transitioned bool
}

// Ensure finds or creates the payment row for a snapshot and merges the
// snapshot into it, inside the caller's transaction.
func (r *Reconciler) Ensure(ctx context.Context, tx *gorm.DB, snap IntentSnapshot) (*EnsureResult, error) {
	if snap.IntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway event has no intent id")
	}
	repo := r.payments.WithTx(tx)

	payment, err := r.locate(ctx, repo, snap)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		payment, err = r.createFromSnapshot(ctx, repo, snap)
		if err != nil {
			return nil, err
		}
		// A freshly created row already carries the snapshot status.
		return &EnsureResult{Payment: payment, Transitioned: snap.Status != enums.PaymentStatusPending}, nil
	}

	return r.merge(ctx, repo, payment, snap)
}

// locate looks the row up by intent id first, falling back to order id
// for rows created at checkout before the intent existed.
func (r *Reconciler) locate(ctx context.Context, repo Repository, snap IntentSnapshot) (*models.Payment, error) {
	payment, err := repo.FindByIntentID(ctx, snap.IntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find payment by intent")
	}
	if payment != nil {
		return payment, nil
	}
	if snap.OrderID == nil {
		return nil, nil
	}
	payment, err = repo.FindByOrderID(ctx, *snap.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find payment by order")
	}
	return payment, nil
}

func (r *Reconciler) createFromSnapshot(ctx context.Context, repo Repository, snap IntentSnapshot) (*models.Payment, error) {
	intentID := snap.IntentID
	payment := &models.Payment{
		OrderID:        snap.OrderID,
		StripeIntentID: &intentID,
		Status:         snap.Status,
		Amount:         snap.Amount,
		Currency:       enums.NormalizeCurrency(snap.Currency),
		ReceiptURL:     snap.ReceiptURL,
		FailureReason:  snap.FailureReason,
	}
	created, err := repo.Create(ctx, payment)
	if err == nil {
		return created, nil
	}
	// A concurrent delivery won the insert race; adopt its row.
	if db.IsUniqueViolation(err, uxPaymentsIntentID) || db.IsUniqueViolation(err, uxPaymentsOrderID) {
		existing, findErr := r.locate(ctx, repo, snap)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
}

// merge folds the snapshot into an existing row. The intent id follows
// the snapshot while the row is still in flight, descriptive fields
// refresh when present, and status only ever moves forward.
func (r *Reconciler) merge(ctx context.Context, repo Repository, payment *models.Payment, snap IntentSnapshot) (*EnsureResult, error) {
	dirty := false
	switch {
	case payment.StripeIntentID == nil || *payment.StripeIntentID == "":
		intentID := snap.IntentID
		payment.StripeIntentID = &intentID
		dirty = true
	case *payment.StripeIntentID != snap.IntentID && !payment.Status.IsTerminal():
		// The row was located by order id while holding another intent:
		// a retried checkout minted a fresh intent for the same order.
		// Follow the live identifier so later deliveries match this row
		// instead of spawning a duplicate.
		intentID := snap.IntentID
		payment.StripeIntentID = &intentID
		dirty = true
	}
	if payment.OrderID == nil && snap.OrderID != nil {
		payment.OrderID = snap.OrderID
		dirty = true
	}
	if !snap.Amount.IsZero() && !payment.Amount.Equal(snap.Amount) {
		payment.Amount = snap.Amount
		dirty = true
	}
	if cur := enums.NormalizeCurrency(snap.Currency); payment.Currency == "" || (snap.Currency != "" && payment.Currency != cur) {
		payment.Currency = cur
		dirty = true
	}
	if snap.ReceiptURL != nil && (payment.ReceiptURL == nil || *payment.ReceiptURL != *snap.ReceiptURL) {
		payment.ReceiptURL = snap.ReceiptURL
		dirty = true
	}
	if snap.FailureReason != nil && (payment.FailureReason == nil || *payment.FailureReason != *snap.FailureReason) {
		payment.FailureReason = snap.FailureReason
		dirty = true
	}
	if dirty {
		if err := repo.Update(ctx, payment); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
	}

	if snap.Status == enums.PaymentStatusPending || payment.Status == snap.Status {
		return &EnsureResult{Payment: payment}, nil
	}
	if payment.Status.IsTerminal() {
		// A stale or conflicting delivery after the row settled. Keep
		// the recorded outcome and drop the event.
		if r.log != nil {
			r.log.Warn(r.log.WithIntentID(ctx, snap.IntentID),
				fmt.Sprintf("dropping %s event for %s payment", snap.Status, payment.Status))
		}
		return &EnsureResult{Payment: payment}, nil
	}

	applied, err := repo.TransitionStatus(ctx, payment.ID, snap.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition payment status")
	}
	if applied {
		payment.Status = snap.Status
	}
	return &EnsureResult{Payment: payment, Transitioned: applied}, nil
}

// SnapshotFromIntent flattens a gateway payment intent into the
// reconciler's input form.
func SnapshotFromIntent(intent *stripe.PaymentIntent) IntentSnapshot {
	snap := IntentSnapshot{
		IntentID: intent.ID,
		OrderID:  OrderIDFromIntent(intent),
		Status:   statusFromIntent(intent.Status),
		Amount:   AmountFromMinorUnits(intent.Amount, string(intent.Currency)),
		Currency: string(intent.Currency),
	}
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		msg := intent.LastPaymentError.Msg
		snap.FailureReason = &msg
	}
	return snap
}

// SnapshotFromCharge flattens a charge event. Charges carry the receipt
// URL and failure message that intent events omit.
func SnapshotFromCharge(charge *stripe.Charge) IntentSnapshot {
	snap := IntentSnapshot{
		Status:   enums.PaymentStatusPending,
		Amount:   AmountFromMinorUnits(charge.Amount, string(charge.Currency)),
		Currency: string(charge.Currency),
	}
	if charge.PaymentIntent != nil {
		snap.IntentID = charge.PaymentIntent.ID
	}
	if id := orderIDFromFields(charge.Metadata, charge.Description); id != nil {
		snap.OrderID = id
	}
	if charge.ReceiptURL != "" {
		url := charge.ReceiptURL
		snap.ReceiptURL = &url
	}
	if charge.FailureMessage != "" {
		msg := charge.FailureMessage
		snap.FailureReason = &msg
	}
	switch charge.Status {
	case stripe.ChargeStatusSucceeded:
		snap.Status = enums.PaymentStatusCompleted
	case stripe.ChargeStatusFailed:
		snap.Status = enums.PaymentStatusFailed
	}
	if charge.Refunded {
		snap.Status = enums.PaymentStatusRefunded
	}
	return snap
}

// OrderIDFromIntent recovers the order id from intent metadata, falling
// back to the description label. Returns nil when neither parses.
func OrderIDFromIntent(intent *stripe.PaymentIntent) *uuid.UUID {
	return orderIDFromFields(intent.Metadata, intent.Description)
}

func orderIDFromFields(metadata map[string]string, description string) *uuid.UUID {
	if raw, ok := metadata["order_id"]; ok {
		if id, err := uuid.Parse(strings.TrimSpace(raw)); err == nil {
			return &id
		}
	}
	if rest, ok := strings.CutPrefix(description, DescriptionPrefix); ok {
		if id, err := uuid.Parse(strings.TrimSpace(rest)); err == nil {
			return &id
		}
	}
	return nil
}

func statusFromIntent(status stripe.PaymentIntentStatus) enums.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentStatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}
