package models

import (
	"time"

	"github.com/google/uuid"
)

// BlockedIP is a denylist entry maintained out-of-band by operators and
// consulted read-only by the IP policy gate.
type BlockedIP struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	IPAddress string    `gorm:"column:ip_address;not null;unique"`
	Reason    string    `gorm:"column:reason;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
