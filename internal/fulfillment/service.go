// Package fulfillment runs the admin review of a purchase request: stock
// decrement, commission split and settlement recording in one transaction.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/internal/commission"
	"github.com/medstock/medstock-backend/internal/inventory"
	"github.com/medstock/medstock-backend/internal/purchaserequests"
	"github.com/medstock/medstock-backend/internal/settlement"
	"github.com/medstock/medstock-backend/internal/users"
	"github.com/medstock/medstock-backend/pkg/db"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/metrics"
	"github.com/medstock/medstock-backend/pkg/outbox"
	"github.com/medstock/medstock-backend/pkg/outbox/payloads"
)

const (
	MessageApproved        = "purchase request approved"
	MessageRejected        = "purchase request rejected"
	MessageAlreadyApproved = "purchase request already approved"
)

type txRunner interface {
	WithTxRetry(ctx context.Context, attempts int, hook db.RetryHook, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stockMutator interface {
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (*inventory.Result, error)
}

type settlementRecorder interface {
	CreateSettlement(ctx context.Context, tx *gorm.DB, in settlement.Input) (*settlement.Result, error)
	Find(ctx context.Context, tx *gorm.DB, purchaseRequestID uuid.UUID) (*settlement.Result, error)
}

// Service reviews purchase requests.
type Service interface {
	Review(ctx context.Context, input ReviewInput) (*ReviewResult, error)
}

// ReviewInput is an admin decision on a purchase request.
type ReviewInput struct {
	PurchaseRequestID uuid.UUID
	AdminUserID       uuid.UUID
	Decision          enums.ReviewDecision
}

// ReviewResult reports what a review changed. Warnings never turn a
// successful review into a failure. Success, Message and Warnings travel in
// the response envelope rather than the payload.
type ReviewResult struct {
	Success           bool                        `json:"-"`
	Message           string                      `json:"-"`
	PurchaseRequestID uuid.UUID                   `json:"purchase_request_id"`
	Status            enums.PurchaseRequestStatus `json:"status"`
	PurchaseOrderID   *uuid.UUID                  `json:"purchase_order_id,omitempty"`
	ReportID          *uuid.UUID                  `json:"report_id,omitempty"`
	ReportNumber      string                      `json:"report_number,omitempty"`
	TotalAmount       *decimal.Decimal            `json:"total_amount,omitempty"`
	Commission        *decimal.Decimal            `json:"commission,omitempty"`
	SellerNet         *decimal.Decimal            `json:"seller_net,omitempty"`
	ProductStatus     enums.ProductStatus         `json:"product_status,omitempty"`
	RemainingQuantity *int                        `json:"remaining_quantity,omitempty"`
	Warnings          []string                    `json:"-"`
	Noop              bool                        `json:"-"`
}

// ServiceParams wires the orchestrator.
type ServiceParams struct {
	Requests   purchaserequests.Repository
	Users      users.Repository
	Inventory  stockMutator
	Settlement settlementRecorder
	Tx         txRunner
	Outbox     outboxPublisher
	Metrics    *metrics.SettlementMetrics
	Logger     *logger.Logger
	TxAttempts int
	Clock      func() time.Time
}

type service struct {
	requests   purchaserequests.Repository
	users      users.Repository
	inventory  stockMutator
	settlement settlementRecorder
	tx         txRunner
	outbox     outboxPublisher
	metrics    *metrics.SettlementMetrics
	logg       *logger.Logger
	attempts   int
	now        func() time.Time
}

// NewService builds the fulfillment orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Requests == nil {
		return nil, fmt.Errorf("purchase request repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory mutator required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement recorder required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		requests:   params.Requests,
		users:      params.Users,
		inventory:  params.Inventory,
		settlement: params.Settlement,
		tx:         params.Tx,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		logg:       params.Logger,
		attempts:   params.TxAttempts,
		now:        clock,
	}, nil
}

// Review applies the admin decision. Approval decrements stock, records the
// settlement and marks the request approved atomically; any failure leaves
// the request pending with stock untouched.
func (s *service) Review(ctx context.Context, input ReviewInput) (*ReviewResult, error) {
	if input.PurchaseRequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase request id is required")
	}
	if _, err := enums.ParseReviewDecision(string(input.Decision)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision")
	}
	if _, err := users.RequireRole(ctx, s.users, input.AdminUserID, enums.UserRoleAdmin); err != nil {
		return nil, err
	}

	ctx = s.logg.WithPurchaseRequestID(ctx, input.PurchaseRequestID.String())
	ctx = s.logg.WithField(ctx, "decision", input.Decision)

	var result *ReviewResult
	hook := func(attempt int, err error) {
		s.metrics.IncTxRetry("review_purchase_request")
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "fulfillment.retry: "+err.Error())
	}
	err := s.tx.WithTxRetry(ctx, s.attempts, hook, func(tx *gorm.DB) error {
		var err error
		result, err = s.review(ctx, tx, input)
		return err
	})
	if err != nil {
		s.metrics.IncApproval(metrics.OutcomeFailed)
		if typed := pkgerrors.As(err); typed == nil || pkgerrors.MetadataFor(typed.Code()).HTTPStatus >= 500 {
			s.logg.Error(ctx, "fulfillment.review_failed", err)
		}
		return nil, err
	}

	switch {
	case result.Noop:
		s.metrics.IncApproval(metrics.OutcomeNoop)
	case result.Status == enums.PurchaseRequestStatusApproved:
		s.metrics.IncApproval(metrics.OutcomeApproved)
	default:
		s.metrics.IncApproval(metrics.OutcomeRejected)
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"status": result.Status, "warnings": len(result.Warnings)})
	if result.ReportNumber != "" {
		logCtx = s.logg.WithField(logCtx, "report_number", result.ReportNumber)
	}
	s.logg.Info(logCtx, "fulfillment.reviewed")
	return result, nil
}

func (s *service) review(ctx context.Context, tx *gorm.DB, input ReviewInput) (*ReviewResult, error) {
	requests := s.requests.WithTx(tx)
	req, err := requests.FindForUpdate(ctx, input.PurchaseRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase request")
	}

	target := input.Decision.TargetStatus()
	if req.Status != enums.PurchaseRequestStatusPending {
		if req.Status == enums.PurchaseRequestStatusApproved && target == enums.PurchaseRequestStatusApproved {
			return s.alreadyApproved(ctx, tx, req)
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "purchase request has already been reviewed").
			WithDetails(map[string]any{"current_status": req.Status, "decision": input.Decision})
	}

	if target == enums.PurchaseRequestStatusRejected {
		return s.reject(ctx, tx, req, input.AdminUserID)
	}
	return s.approve(ctx, tx, req, input.AdminUserID)
}

func (s *service) reject(ctx context.Context, tx *gorm.DB, req *models.PurchaseRequest, adminID uuid.UUID) (*ReviewResult, error) {
	if err := s.markReviewed(ctx, tx, req.ID, enums.PurchaseRequestStatusRejected, adminID); err != nil {
		return nil, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPurchaseRequestRejected,
		AggregateType: enums.AggregatePurchaseRequest,
		AggregateID:   req.ID,
		Actor:         adminActor(adminID),
		Data: payloads.PurchaseRequestRejectedEvent{
			PurchaseRequestID: req.ID,
			ProductID:         req.ProductID,
			BuyerID:           req.BuyerID,
			AdminUserID:       adminID,
		},
	}); err != nil {
		return nil, err
	}
	return &ReviewResult{
		Success:           true,
		Message:           MessageRejected,
		PurchaseRequestID: req.ID,
		Status:            enums.PurchaseRequestStatusRejected,
	}, nil
}

func (s *service) approve(ctx context.Context, tx *gorm.DB, req *models.PurchaseRequest, adminID uuid.UUID) (*ReviewResult, error) {
	stock, err := s.inventory.DecrementStock(ctx, tx, req.ProductID, req.Quantity)
	if err != nil {
		return nil, err
	}

	split, err := commission.Compute(req.TotalPrice)
	if err != nil {
		return nil, err
	}

	recorded, err := s.settlement.CreateSettlement(ctx, tx, settlement.Input{
		PurchaseRequest: req,
		Product:         stock.Product,
		Split:           split,
		Now:             s.now(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.markReviewed(ctx, tx, req.ID, enums.PurchaseRequestStatusApproved, adminID); err != nil {
		return nil, err
	}

	report := recorded.Report
	var orderID *uuid.UUID
	if recorded.PurchaseOrder != nil {
		orderID = &recorded.PurchaseOrder.ID
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPurchaseRequestApproved,
		AggregateType: enums.AggregatePurchaseRequest,
		AggregateID:   req.ID,
		Actor:         adminActor(adminID),
		Data: payloads.PurchaseRequestApprovedEvent{
			PurchaseRequestID: req.ID,
			ProductID:         req.ProductID,
			SellerID:          report.SellerID,
			BuyerID:           req.BuyerID,
			AdminUserID:       adminID,
			Quantity:          req.Quantity,
			TotalAmount:       split.Total,
			Commission:        split.Commission,
			SellerAmount:      split.SellerNet,
			ProductStatus:     stock.NewStatus,
			ReportID:          report.ID,
			ReportNumber:      report.ReportNumber,
			PurchaseOrderID:   orderID,
		},
	}); err != nil {
		return nil, err
	}

	remaining := stock.NewQuantity
	if stock.NewStatus == enums.ProductStatusSold {
		remaining = 0
	}
	result := settledResult(req.ID, recorded)
	result.Message = MessageApproved
	result.ProductStatus = stock.NewStatus
	result.RemainingQuantity = &remaining
	result.Commission = &split.Commission
	result.SellerNet = &split.SellerNet
	result.TotalAmount = &split.Total
	result.Warnings = recorded.Warnings
	return result, nil
}

func (s *service) alreadyApproved(ctx context.Context, tx *gorm.DB, req *models.PurchaseRequest) (*ReviewResult, error) {
	existing, err := s.settlement.Find(ctx, tx, req.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		err := pkgerrors.New(pkgerrors.CodeIntegrity, "approved purchase request has no settlement")
		s.logg.Critical(ctx, "fulfillment.settlement_missing", err)
		return nil, err
	}
	result := settledResult(req.ID, existing)
	result.Message = MessageAlreadyApproved
	result.Noop = true
	commissionAmount := existing.Report.Commission.Round(2)
	sellerNet := existing.Report.SellerAmount.Round(2)
	total := existing.Report.TotalAmount.Round(2)
	result.Commission = &commissionAmount
	result.SellerNet = &sellerNet
	result.TotalAmount = &total
	return result, nil
}

func (s *service) markReviewed(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.PurchaseRequestStatus, adminID uuid.UUID) error {
	ok, err := s.requests.WithTx(tx).MarkReviewed(ctx, id, status, adminID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update purchase request status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "purchase request reviewed concurrently")
	}
	return nil
}

func settledResult(requestID uuid.UUID, recorded *settlement.Result) *ReviewResult {
	result := &ReviewResult{
		Success:           true,
		PurchaseRequestID: requestID,
		Status:            enums.PurchaseRequestStatusApproved,
		ReportID:          &recorded.Report.ID,
		ReportNumber:      recorded.Report.ReportNumber,
	}
	if recorded.PurchaseOrder != nil {
		result.PurchaseOrderID = &recorded.PurchaseOrder.ID
	}
	return result
}

func adminActor(adminID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: adminID, Role: string(enums.UserRoleAdmin)}
}
