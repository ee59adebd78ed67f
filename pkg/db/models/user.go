package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity surface the engine consumes; account management lives
// elsewhere.
type User struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Email       string    `gorm:"column:email;not null;uniqueIndex"`
	Verified    bool      `gorm:"column:verified;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
