package security

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
)

// Repository handles security-log and IP-denylist persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateLog(ctx context.Context, entry *models.SecurityLog) error
	ListLogs(ctx context.Context, query LogQuery) ([]models.SecurityLog, int64, error)
	IsIPBlocked(ctx context.Context, ip string) (bool, error)
	BlockIP(ctx context.Context, ip, reason string) error
	UnblockIP(ctx context.Context, ip string) error
}

// LogQuery filters security-log listings.
type LogQuery struct {
	Type     *enums.SecurityEventType
	Severity *enums.Severity
	UserID   *uuid.UUID
	Since    *time.Time
	Offset   int
	Limit    int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a security repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateLog(ctx context.Context, entry *models.SecurityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListLogs(ctx context.Context, query LogQuery) ([]models.SecurityLog, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.SecurityLog{})
	if query.Type != nil {
		base = base.Where("type = ?", *query.Type)
	}
	if query.Severity != nil {
		base = base.Where("severity = ?", *query.Severity)
	}
	if query.UserID != nil {
		base = base.Where("user_id = ?", *query.UserID)
	}
	if query.Since != nil {
		base = base.Where("created_at >= ?", *query.Since)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	var rows []models.SecurityLog
	if err := base.
		Order("created_at DESC").
		Offset(query.Offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) IsIPBlocked(ctx context.Context, ip string) (bool, error) {
	var entry models.BlockedIP
	err := r.db.WithContext(ctx).Where("ip_address = ?", ip).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) BlockIP(ctx context.Context, ip, reason string) error {
	entry := &models.BlockedIP{IPAddress: ip, Reason: reason}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) UnblockIP(ctx context.Context, ip string) error {
	return r.db.WithContext(ctx).Where("ip_address = ?", ip).Delete(&models.BlockedIP{}).Error
}
