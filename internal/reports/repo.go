package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
)

// Repository persists sales approval reports.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.SalesApprovalReport, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.SalesApprovalReport, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.SalesReportStatus, at time.Time, trackingNumber *string) (bool, error)
	ClaimReveal(ctx context.Context, id uuid.UUID, points decimal.Decimal) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a reports repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SalesApprovalReport, error) {
	var report models.SalesApprovalReport
	if err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.SalesApprovalReport, error) {
	var report models.SalesApprovalReport
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&report, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// Transition moves the report from one status to the next, stamping the
// matching timestamp column. It reports false when the report was no longer
// in from.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.SalesReportStatus, at time.Time, trackingNumber *string) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	if column := timestampColumn(to); column != "" {
		updates[column] = at
	}
	if trackingNumber != nil {
		updates["tracking_number"] = *trackingNumber
	}
	result := r.db.WithContext(ctx).
		Model(&models.SalesApprovalReport{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClaimReveal flips buyer_info_revealed exactly once.
func (r *repository) ClaimReveal(ctx context.Context, id uuid.UUID, points decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SalesApprovalReport{}).
		Where("id = ? AND buyer_info_revealed = ?", id, false).
		Updates(map[string]any{
			"buyer_info_revealed": true,
			"points_deducted":     points,
			"updated_at":          time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func timestampColumn(status enums.SalesReportStatus) string {
	switch status {
	case enums.SalesReportStatusSent:
		return "sent_at"
	case enums.SalesReportStatusConfirmed:
		return "confirmed_at"
	case enums.SalesReportStatusShipped:
		return "shipped_at"
	case enums.SalesReportStatusCompleted:
		return "completed_at"
	default:
		return ""
	}
}
