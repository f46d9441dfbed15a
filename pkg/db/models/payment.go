package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nyumbahub/nyumba-backend/pkg/enums"
)

// Payment records a single money-movement intent against a provider.
type Payment struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	PropertyID     *uuid.UUID            `gorm:"column:property_id;type:uuid"`
	Amount         decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency       enums.Currency        `gorm:"column:currency;type:varchar(3);not null;default:'KES'"`
	Provider       enums.PaymentProvider `gorm:"column:provider;type:varchar(20);not null;uniqueIndex:idx_payments_provider_ref"`
	Status         enums.PaymentStatus   `gorm:"column:status;type:varchar(20);not null;default:'PENDING';index"`
	TransactionRef string                `gorm:"column:transaction_ref;not null;uniqueIndex:idx_payments_provider_ref"`
	PhoneNumber    *string               `gorm:"column:phone_number"`
	MpesaReceipt   *string               `gorm:"column:mpesa_receipt"`
	Description    *string               `gorm:"column:description"`
	FailureReason  *string               `gorm:"column:failure_reason"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`

	Owner    *User        `gorm:"foreignKey:UserID"`
	Property *Property    `gorm:"foreignKey:PropertyID"`
	Logs     []PaymentLog `gorm:"foreignKey:PaymentID"`
}
