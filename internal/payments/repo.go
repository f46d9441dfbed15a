package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
)

// Repository handles payment persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*models.Payment, error)
	FindByTransactionRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.Payment, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, query ListQuery) ([]models.Payment, int64, error)
	ListStuckProcessing(ctx context.Context, provider enums.PaymentProvider, olderThan time.Time, limit int) ([]models.Payment, error)
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus, to enums.PaymentStatus, fields map[string]any) (bool, error)
	CreateLog(ctx context.Context, entry *models.PaymentLog) error
	CountByStatusSince(ctx context.Context, userID uuid.UUID, status enums.PaymentStatus, since time.Time) (int64, error)
}

// ListQuery configures owner-scoped payment listings.
type ListQuery struct {
	Status   *enums.PaymentStatus
	Provider *enums.PaymentProvider
	Offset   int
	Limit    int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*models.Payment, error) {
	query := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("Property").
		Preload("Logs", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		Where("id = ?", id)
	// Owner scoping happens in the query so a mismatch is indistinguishable
	// from a missing record.
	if ownerID != nil {
		query = query.Where("user_id = ?", *ownerID)
	}

	var payment models.Payment
	if err := query.First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByTransactionRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND transaction_ref = ?", provider, ref).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, query ListQuery) ([]models.Payment, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.Payment{}).Where("user_id = ?", ownerID)
	if query.Status != nil {
		base = base.Where("status = ?", *query.Status)
	}
	if query.Provider != nil {
		base = base.Where("provider = ?", *query.Provider)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Payment
	if err := base.
		Preload("Property").
		Order("created_at DESC").
		Offset(query.Offset).
		Limit(query.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) ListStuckProcessing(ctx context.Context, provider enums.PaymentProvider, olderThan time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Payment
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND status = ? AND updated_at < ?", provider, enums.PaymentStatusProcessing, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateStatusFrom applies a guarded status transition. The WHERE clause on the
// current status makes concurrent or duplicate finalizations a no-op: only one
// writer observes rows-affected > 0.
func (r *repository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus, to enums.PaymentStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for column, value := range fields {
		updates[column] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CreateLog(ctx context.Context, entry *models.PaymentLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CountByStatusSince(ctx context.Context, userID uuid.UUID, status enums.PaymentStatus, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, status, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
