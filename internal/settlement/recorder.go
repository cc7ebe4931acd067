// Package settlement records the purchase order and sales approval report
// produced by an approved purchase request.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/internal/commission"
	"github.com/medstock/medstock-backend/pkg/db"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
)

const (
	// DefaultReportPrefix starts every report number.
	DefaultReportPrefix = "SAR"

	// WarningPurchaseOrderFailed is returned in lenient mode when the order
	// row could not be written but the report was.
	WarningPurchaseOrderFailed = "purchase order could not be recorded; sales approval report created without it"

	orderSavepoint = "settlement_purchase_order"
)

// Options controls how the recorder treats a failed purchase order insert.
type Options struct {
	// Strict fails the whole settlement when the purchase order cannot be
	// written. When false the report is still created and a warning returned.
	Strict       bool
	ReportPrefix string
}

// Input is everything needed to settle an approved purchase request.
type Input struct {
	PurchaseRequest *models.PurchaseRequest
	Product         *models.Product
	Split           commission.Split
	Now             time.Time
}

// Result holds the settlement artifacts. Existing is set when the request
// had already been settled and nothing new was written.
type Result struct {
	PurchaseOrder *models.PurchaseOrder
	Report        *models.SalesApprovalReport
	Warnings      []string
	Existing      bool
}

// Recorder creates settlements.
type Recorder struct {
	repo Repository
	logg *logger.Logger
	opts Options
}

// NewRecorder wires a settlement recorder.
func NewRecorder(repo Repository, logg *logger.Logger, opts Options) (*Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.ReportPrefix == "" {
		opts.ReportPrefix = DefaultReportPrefix
	}
	return &Recorder{repo: repo, logg: logg, opts: opts}, nil
}

// FormatReportNumber renders PREFIX-YYYY-NNNN. Sequences past 9999 widen.
func FormatReportNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%04d-%04d", prefix, year, seq)
}

// CreateSettlement writes the purchase order and report for the request
// inside tx. A request that already has a report is returned as is.
func (r *Recorder) CreateSettlement(ctx context.Context, tx *gorm.DB, in Input) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for settlement")
	}
	if in.PurchaseRequest == nil || in.Product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase request and product are required")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	repo := r.repo.WithTx(tx)
	req := in.PurchaseRequest

	existing, err := r.findExisting(ctx, repo, req.ID)
	if err != nil || existing != nil {
		return existing, err
	}

	seq, err := repo.NextReportSequence(ctx, in.Now.Year())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate report number")
	}

	var warnings []string
	order := &models.PurchaseOrder{
		ID:                uuid.New(),
		PurchaseRequestID: req.ID,
		SellerID:          in.Product.SellerID,
		BuyerID:           req.BuyerID,
		ProductID:         in.Product.ID,
		Quantity:          req.Quantity,
		PurchasePrice:     in.Split.SellerNet,
		Commission:        in.Split.Commission,
		TotalAmount:       in.Split.Total,
		Status:            enums.PurchaseOrderStatusApproved,
	}
	if err := r.createOrder(ctx, tx, repo, order); err != nil {
		if r.opts.Strict || pkgerrors.IsCode(err, pkgerrors.CodeConcurrency) {
			return nil, err
		}
		ctx = r.logg.WithPurchaseRequestID(ctx, req.ID.String())
		r.logg.Error(ctx, "settlement.purchase_order_failed", err)
		warnings = append(warnings, WarningPurchaseOrderFailed)
		order = nil
	}

	sentAt := in.Now
	report := &models.SalesApprovalReport{
		ReportNumber:      FormatReportNumber(r.opts.ReportPrefix, in.Now.Year(), seq),
		PurchaseRequestID: req.ID,
		SellerID:          in.Product.SellerID,
		BuyerID:           req.BuyerID,
		ProductID:         in.Product.ID,
		Quantity:          req.Quantity,
		UnitPrice:         in.Product.SellingPrice,
		TotalAmount:       in.Split.Total,
		Commission:        in.Split.Commission,
		SellerAmount:      in.Split.SellerNet,
		Status:            enums.SalesReportStatusSent,
		SentAt:            &sentAt,
	}
	if order != nil {
		report.PurchaseOrderID = &order.ID
	}
	if err := repo.CreateReport(ctx, report); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "sales approval report already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sales approval report")
	}

	return &Result{PurchaseOrder: order, Report: report, Warnings: warnings}, nil
}

// Find returns the settlement already recorded for a purchase request, or
// nil when there is none.
func (r *Recorder) Find(ctx context.Context, tx *gorm.DB, purchaseRequestID uuid.UUID) (*Result, error) {
	return r.findExisting(ctx, r.repo.WithTx(tx), purchaseRequestID)
}

func (r *Recorder) findExisting(ctx context.Context, repo Repository, purchaseRequestID uuid.UUID) (*Result, error) {
	report, err := repo.FindReportByPurchaseRequest(ctx, purchaseRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing report")
	}
	res := &Result{Report: report, Existing: true}
	order, err := repo.FindOrderByPurchaseRequest(ctx, purchaseRequestID)
	switch {
	case err == nil:
		res.PurchaseOrder = order
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing purchase order")
	}
	return res, nil
}

// createOrder inserts the order. In lenient mode the insert runs behind a
// savepoint so a failure leaves the outer transaction usable.
func (r *Recorder) createOrder(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
	if !r.opts.Strict {
		if err := tx.SavePoint(orderSavepoint).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create savepoint")
		}
	}
	err := repo.CreatePurchaseOrder(ctx, order)
	if err == nil {
		return nil
	}
	if !r.opts.Strict {
		if rbErr := tx.RollbackTo(orderSavepoint).Error; rbErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "rollback purchase order savepoint")
		}
	}
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "purchase order already recorded")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase order")
}
