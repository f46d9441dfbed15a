package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentLog is an append-only audit entry owned by a payment. Logs are never
// mutated after creation.
type PaymentLog struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;index"`
	Action    string          `gorm:"column:action;not null"`
	Details   json.RawMessage `gorm:"column:details;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
