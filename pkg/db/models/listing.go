package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
)

// Listing is the subset of a marketplace listing the bid and settlement
// engines touch. Quantity never goes negative; reaching zero forces SOLD.
type Listing struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID        uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Title           string              `gorm:"column:title;not null"`
	PriceCents      int                 `gorm:"column:price_cents;not null"`
	FloorPriceCents int                 `gorm:"column:floor_price_cents;not null;default:0"`
	Quantity        int                 `gorm:"column:quantity;not null;default:1"`
	AllowBids       bool                `gorm:"column:allow_bids;not null;default:false"`
	Status          enums.ListingStatus `gorm:"column:status;type:text;not null;default:'active'"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
