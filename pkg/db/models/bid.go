package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
)

// Bid is a buyer's price offer against a biddable listing. A counter-offer is
// a new row linked to the same listing and buyer; the original row is kept as
// immutable negotiation history.
type Bid struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ListingID  uuid.UUID       `gorm:"column:listing_id;type:uuid;not null;index"`
	BuyerID    uuid.UUID       `gorm:"column:buyer_id;type:uuid;not null;index"`
	PriceCents int             `gorm:"column:price_cents;not null"`
	Terms      *string         `gorm:"column:terms"`
	Status     enums.BidStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	OrderID    *uuid.UUID      `gorm:"column:order_id;type:uuid;uniqueIndex"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
