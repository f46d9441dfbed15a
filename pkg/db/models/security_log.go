package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nyumbahub/nyumba-backend/pkg/enums"
)

// SecurityLog is an immutable, severity-classified audit record emitted by the
// rate limiter, fraud heuristics, and IP policy gate.
type SecurityLog struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type      enums.SecurityEventType `gorm:"column:type;type:varchar(40);not null;index"`
	Severity  enums.Severity          `gorm:"column:severity;type:varchar(10);not null"`
	UserID    *uuid.UUID              `gorm:"column:user_id;type:uuid;index"`
	IPAddress *string                 `gorm:"column:ip_address"`
	UserAgent *string                 `gorm:"column:user_agent"`
	Endpoint  *string                 `gorm:"column:endpoint"`
	Method    *string                 `gorm:"column:method"`
	Details   json.RawMessage         `gorm:"column:details;type:jsonb"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime;index"`
}
