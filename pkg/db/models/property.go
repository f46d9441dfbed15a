package models

import (
	"time"

	"github.com/google/uuid"
)

// Property is the listing a payment may reference. Listing CRUD lives in the
// marketplace service; payments only read the title for provider references.
type Property struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title     string    `gorm:"column:title;not null"`
	OwnerID   uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
