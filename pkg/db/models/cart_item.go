package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one line of a user's cart. UnitPriceCents is recorded at
// add-to-cart time and is what order assembly snapshots.
type CartItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	ListingID      uuid.UUID `gorm:"column:listing_id;type:uuid;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
