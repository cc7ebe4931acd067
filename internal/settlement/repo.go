package settlement

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medstock/medstock-backend/pkg/db/models"
)

// Repository persists purchase orders, reports and the yearly report counter.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	NextReportSequence(ctx context.Context, year int) (int, error)
	CreatePurchaseOrder(ctx context.Context, order *models.PurchaseOrder) error
	CreateReport(ctx context.Context, report *models.SalesApprovalReport) error
	FindReportByPurchaseRequest(ctx context.Context, purchaseRequestID uuid.UUID) (*models.SalesApprovalReport, error)
	FindOrderByPurchaseRequest(ctx context.Context, purchaseRequestID uuid.UUID) (*models.PurchaseOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a settlement repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// NextReportSequence bumps and returns the counter for year. The upsert keeps
// the counter row locked until the transaction ends, so numbers are issued in
// commit order without gaps.
func (r *repository) NextReportSequence(ctx context.Context, year int) (int, error) {
	var values []int
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO report_number_sequences (year, last_value)
		VALUES (?, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = report_number_sequences.last_value + 1
		RETURNING last_value
	`, year).Scan(&values).Error
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return values[0], nil
}

func (r *repository) CreatePurchaseOrder(ctx context.Context, order *models.PurchaseOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateReport(ctx context.Context, report *models.SalesApprovalReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *repository) FindReportByPurchaseRequest(ctx context.Context, purchaseRequestID uuid.UUID) (*models.SalesApprovalReport, error) {
	var report models.SalesApprovalReport
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&report, "purchase_request_id = ?", purchaseRequestID).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) FindOrderByPurchaseRequest(ctx context.Context, purchaseRequestID uuid.UUID) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	if err := r.db.WithContext(ctx).First(&order, "purchase_request_id = ?", purchaseRequestID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
