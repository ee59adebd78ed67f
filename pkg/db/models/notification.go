package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
)

// Notification is a persisted user-facing message. Delivery is best effort;
// writers never treat a failed insert as fatal.
type Notification struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index"`
	Category  enums.NotificationCategory `gorm:"column:category;type:text;not null"`
	Body      string                     `gorm:"column:body;not null"`
	ReadAt    *time.Time                 `gorm:"column:read_at"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime"`
}
