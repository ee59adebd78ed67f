package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
)

// Order is a purchase produced from either a cart snapshot or an accepted bid.
// It transitions pending -> completed or pending -> cancelled exactly once.
type Order struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	TotalCents int               `gorm:"column:total_cents;not null"`
	Status     enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Items      []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
