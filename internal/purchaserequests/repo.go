// Package purchaserequests stores buyer purchase requests and their admin
// review outcome.
package purchaserequests

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
)

// Repository persists purchase requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.PurchaseRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error)
	MarkReviewed(ctx context.Context, id uuid.UUID, status enums.PurchaseRequestStatus, reviewerID uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a purchase request repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *models.PurchaseRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error) {
	var req models.PurchaseRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindForUpdate loads the request holding its row lock for the rest of the
// transaction.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error) {
	var req models.PurchaseRequest
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// MarkReviewed moves a pending request to status. It reports false when the
// request was no longer pending.
func (r *repository) MarkReviewed(ctx context.Context, id uuid.UUID, status enums.PurchaseRequestStatus, reviewerID uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PurchaseRequest{}).
		Where("id = ? AND status = ?", id, enums.PurchaseRequestStatusPending).
		Updates(map[string]any{
			"status":      status,
			"reviewed_at": at,
			"reviewed_by": reviewerID,
			"updated_at":  at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
