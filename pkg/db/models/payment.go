package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
)

// Payment mirrors one gateway payment attempt. Either StripeIntentID or
// OrderID may be the only known key at a given point in the record's life;
// the reconciler merges the two views onto this single row. Both columns
// carry partial unique indexes so racing creators collide instead of
// duplicating.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        *uuid.UUID          `gorm:"column:order_id;type:uuid;uniqueIndex:ux_payments_order_id"`
	StripeIntentID *string             `gorm:"column:stripe_intent_id;uniqueIndex:ux_payments_stripe_intent_id"`
	Status         enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency       enums.Currency      `gorm:"column:currency;type:text;not null;default:'usd'"`
	ReceiptURL     *string             `gorm:"column:receipt_url"`
	FailureReason  *string             `gorm:"column:failure_reason"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
