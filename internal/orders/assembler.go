package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksmithweb/campusmarket-backend/internal/cart"
	"github.com/ksmithweb/campusmarket-backend/pkg/db/models"
	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
	pkgerrors "github.com/ksmithweb/campusmarket-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Assembler converts a cart snapshot or an accepted bid into a pending order.
type Assembler interface {
	FromCart(ctx context.Context, userID uuid.UUID) (*models.Order, error)
	// FromBid runs inside the caller's transaction. It creates the order,
	// sets bid.OrderID in memory, and leaves persisting the bid to the
	// caller. Re-entry with a bid that already carries an order reference
	// returns the existing order instead of duplicating it.
	FromBid(ctx context.Context, tx *gorm.DB, bid *models.Bid) (*models.Order, error)
}

type assembler struct {
	tx        txRunner
	orderRepo Repository
	cartRepo  cart.Repository
}

// NewAssembler wires the order assembler.
func NewAssembler(tx txRunner, orderRepo Repository, cartRepo cart.Repository) (Assembler, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if orderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if cartRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repository required")
	}
	return &assembler{tx: tx, orderRepo: orderRepo, cartRepo: cartRepo}, nil
}

func (a *assembler) FromCart(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	var created *models.Order
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := a.cartRepo.WithTx(tx)
		orderRepo := a.orderRepo.WithTx(tx)

		lines, err := cartRepo.Snapshot(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
		}

		total := 0
		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			total += line.UnitPriceCents * line.Qty
			items = append(items, models.OrderItem{
				ListingID:      line.ListingID,
				Qty:            line.Qty,
				UnitPriceCents: line.UnitPriceCents,
			})
		}

		order, err := orderRepo.Create(ctx, &models.Order{
			UserID:     userID,
			TotalCents: total,
			Status:     enums.OrderStatusPending,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := orderRepo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		// The cart clears in the same transaction as order creation, so a
		// failed assembly leaves the cart intact for retry.
		if err := cartRepo.Clear(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}

		order.Items = items
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (a *assembler) FromBid(ctx context.Context, tx *gorm.DB, bid *models.Bid) (*models.Order, error) {
	if bid == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid required")
	}

	orderRepo := a.orderRepo.WithTx(tx)

	if bid.OrderID != nil {
		existing, err := orderRepo.FindByID(ctx, *bid.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load linked order")
		}
		return existing, nil
	}

	order, err := orderRepo.Create(ctx, &models.Order{
		UserID:     bid.BuyerID,
		TotalCents: bid.PriceCents,
		Status:     enums.OrderStatusPending,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	item := models.OrderItem{
		OrderID:        order.ID,
		ListingID:      bid.ListingID,
		Qty:            1,
		UnitPriceCents: bid.PriceCents,
	}
	if err := orderRepo.CreateItems(ctx, []models.OrderItem{item}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order item")
	}
	order.Items = []models.OrderItem{item}

	bid.OrderID = &order.ID
	return order, nil
}
