package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots one purchased line. UnitPriceCents is the price at the
// moment of order assembly, decoupled from the live listing price.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ListingID      uuid.UUID `gorm:"column:listing_id;type:uuid;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
