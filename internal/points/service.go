// Package points maintains prepaid brokerage point balances and their
// append-only transaction log.
package points

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/internal/users"
	"github.com/medstock/medstock-backend/pkg/db"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/metrics"
	"github.com/medstock/medstock-backend/pkg/outbox"
	"github.com/medstock/medstock-backend/pkg/outbox/payloads"
	"github.com/medstock/medstock-backend/pkg/pagination"
)

// ReferenceSalesApprovalReport tags deductions paid for a buyer disclosure.
const ReferenceSalesApprovalReport = "sales_approval_report"

const maxAmountPlaces = 2

type txRunner interface {
	WithTxRetry(ctx context.Context, attempts int, hook db.RetryHook, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes points ledger operations.
type Service interface {
	Charge(ctx context.Context, input ChargeInput) (*Mutation, error)
	Refund(ctx context.Context, input RefundInput) (*Mutation, error)
	Deduct(ctx context.Context, tx *gorm.DB, input DeductInput) (*Mutation, error)
	FindDeduct(ctx context.Context, tx *gorm.DB, referenceType string, referenceID uuid.UUID) (*models.PointsTransaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Transactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error)
}

// ChargeInput is an admin top-up.
type ChargeInput struct {
	UserID      uuid.UUID
	AdminUserID uuid.UUID
	Amount      decimal.Decimal
	Description string
}

// RefundInput returns points to a user, optionally tied to a reference.
type RefundInput struct {
	UserID        uuid.UUID
	AdminUserID   uuid.UUID
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   *uuid.UUID
	Description   string
}

// DeductInput debits points for a paid action identified by its reference.
type DeductInput struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   uuid.UUID
	Description   string
}

// Mutation describes one ledger entry and the balance it produced.
type Mutation struct {
	TransactionID uuid.UUID                   `json:"transaction_id"`
	UserID        uuid.UUID                   `json:"user_id"`
	Type          enums.PointsTransactionType `json:"transaction_type"`
	Amount        decimal.Decimal             `json:"amount"`
	BalanceBefore decimal.Decimal             `json:"balance_before"`
	BalanceAfter  decimal.Decimal             `json:"balance_after"`
	CreatedAt     time.Time                   `json:"created_at"`
}

// TransactionPage is one page of a user's ledger, newest first.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	NextCursor   string        `json:"next_cursor,omitempty"`
}

// Transaction is the transport shape of a ledger entry.
type Transaction struct {
	ID            uuid.UUID                   `json:"id"`
	Type          enums.PointsTransactionType `json:"transaction_type"`
	Amount        decimal.Decimal             `json:"amount"`
	BalanceBefore decimal.Decimal             `json:"balance_before"`
	BalanceAfter  decimal.Decimal             `json:"balance_after"`
	ReferenceType *string                     `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID                  `json:"reference_id,omitempty"`
	AdminUserID   *uuid.UUID                  `json:"admin_user_id,omitempty"`
	Description   *string                     `json:"description,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
}

// InsufficientPointsDetails is attached to INSUFFICIENT_POINTS errors.
type InsufficientPointsDetails struct {
	Required  decimal.Decimal `json:"required"`
	Balance   decimal.Decimal `json:"balance"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// ServiceParams wires the points service.
type ServiceParams struct {
	Repo       Repository
	Users      users.Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Metrics    *metrics.SettlementMetrics
	Logger     *logger.Logger
	TxAttempts int
}

type service struct {
	repo     Repository
	users    users.Repository
	tx       txRunner
	outbox   outboxPublisher
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
	attempts int
}

// NewService builds the points service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("points repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
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
	return &service{
		repo:     params.Repo,
		users:    params.Users,
		tx:       params.Tx,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		attempts: params.TxAttempts,
	}, nil
}

// Charge credits an admin top-up. The balance has no upper bound.
func (s *service) Charge(ctx context.Context, input ChargeInput) (*Mutation, error) {
	return s.credit(ctx, creditRequest{
		userID:      input.UserID,
		adminUserID: input.AdminUserID,
		amount:      input.Amount,
		txType:      enums.PointsTransactionCharge,
		description: input.Description,
		eventType:   enums.EventPointsCharged,
	})
}

// Refund credits points back to a user.
func (s *service) Refund(ctx context.Context, input RefundInput) (*Mutation, error) {
	if input.ReferenceID != nil && strings.TrimSpace(input.ReferenceType) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference_type is required with reference_id")
	}
	return s.credit(ctx, creditRequest{
		userID:        input.UserID,
		adminUserID:   input.AdminUserID,
		amount:        input.Amount,
		txType:        enums.PointsTransactionRefund,
		referenceType: input.ReferenceType,
		referenceID:   input.ReferenceID,
		description:   input.Description,
		eventType:     enums.EventPointsRefunded,
	})
}

type creditRequest struct {
	userID        uuid.UUID
	adminUserID   uuid.UUID
	amount        decimal.Decimal
	txType        enums.PointsTransactionType
	referenceType string
	referenceID   *uuid.UUID
	description   string
	eventType     enums.OutboxEventType
}

func (s *service) credit(ctx context.Context, req creditRequest) (*Mutation, error) {
	if req.userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	if err := validateAmount(req.amount); err != nil {
		return nil, err
	}
	if _, err := users.RequireRole(ctx, s.users, req.adminUserID, enums.UserRoleAdmin); err != nil {
		return nil, err
	}
	exists, err := s.users.Exists(ctx, req.userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	var mutation *Mutation
	hook := func(int, error) { s.metrics.IncTxRetry("points_" + string(req.txType)) }
	err = s.tx.WithTxRetry(ctx, s.attempts, hook, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		after, err := repo.Credit(ctx, req.userID, req.amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit points account")
		}
		admin := req.adminUserID
		entry := &models.PointsTransaction{
			UserID:          req.userID,
			TransactionType: req.txType,
			Amount:          req.amount,
			BalanceBefore:   after.Sub(req.amount),
			BalanceAfter:    after,
			ReferenceID:     req.referenceID,
			AdminUserID:     &admin,
			ReferenceType:   optionalString(req.referenceType),
			Description:     optionalString(req.description),
		}
		if err := repo.InsertTransaction(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record points transaction")
		}
		mutation = mutationFrom(entry)

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     req.eventType,
			AggregateType: enums.AggregatePointsAccount,
			AggregateID:   req.userID,
			Actor:         &outbox.ActorRef{UserID: admin, Role: string(enums.UserRoleAdmin)},
			Data: payloads.PointsBalanceChangedEvent{
				UserID:          req.userID,
				TransactionID:   entry.ID,
				TransactionType: entry.TransactionType,
				Amount:          entry.Amount,
				BalanceBefore:   entry.BalanceBefore,
				BalanceAfter:    entry.BalanceAfter,
				AdminUserID:     &admin,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPointsMutation(string(req.txType))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"target_user_id": req.userID.String(),
		"amount":         req.amount.String(),
		"balance_after":  mutation.BalanceAfter.String(),
	})
	s.logg.Info(logCtx, "points."+string(req.txType))
	return mutation, nil
}

// Deduct debits the user inside the caller's transaction. The debit is a
// single guarded update, so two callers can never both spend the same points.
// A short balance fails with INSUFFICIENT_POINTS and writes nothing.
func (s *service) Deduct(ctx context.Context, tx *gorm.DB, input DeductInput) (*Mutation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for points deduction")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	if input.ReferenceID == uuid.Nil || strings.TrimSpace(input.ReferenceType) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deductions require a reference")
	}
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	after, ok, err := repo.Debit(ctx, input.UserID, input.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit points account")
	}
	if !ok {
		balance, err := repo.GetBalance(ctx, input.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load points balance")
		}
		return nil, InsufficientPoints(input.Amount, balance)
	}

	refType := input.ReferenceType
	refID := input.ReferenceID
	entry := &models.PointsTransaction{
		UserID:          input.UserID,
		TransactionType: enums.PointsTransactionDeduct,
		Amount:          input.Amount,
		BalanceBefore:   after.Add(input.Amount),
		BalanceAfter:    after,
		ReferenceType:   &refType,
		ReferenceID:     &refID,
		Description:     optionalString(input.Description),
	}
	if err := repo.InsertTransaction(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "reference already paid")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record points transaction")
	}
	return mutationFrom(entry), nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if userID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load points balance")
	}
	return balance, nil
}

func (s *service) Transactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	entries, err := s.repo.ListTransactions(ctx, userID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list points transactions")
	}
	entries, next := pagination.Split(entries, params.Limit, func(entry models.PointsTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: entry.CreatedAt, ID: entry.ID}
	})
	page := &TransactionPage{NextCursor: next}
	page.Transactions = make([]Transaction, 0, len(entries))
	for _, entry := range entries {
		page.Transactions = append(page.Transactions, Transaction{
			ID:            entry.ID,
			Type:          entry.TransactionType,
			Amount:        entry.Amount,
			BalanceBefore: entry.BalanceBefore,
			BalanceAfter:  entry.BalanceAfter,
			ReferenceType: entry.ReferenceType,
			ReferenceID:   entry.ReferenceID,
			AdminUserID:   entry.AdminUserID,
			Description:   entry.Description,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return page, nil
}

// InsufficientPoints builds the error returned when a balance cannot cover
// required.
func InsufficientPoints(required, balance decimal.Decimal) error {
	shortfall := required.Sub(balance)
	if shortfall.IsNegative() {
		shortfall = decimal.Zero
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientPoints, "insufficient points balance").
		WithDetails(InsufficientPointsDetails{Required: required, Balance: balance, Shortfall: shortfall})
}

// IsInsufficient reports whether err is an INSUFFICIENT_POINTS failure.
func IsInsufficient(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeInsufficientPoints)
}

// FindDeduct returns the deduction paid for a reference, or nil. tx may be
// nil for reads outside a transaction.
func (s *service) FindDeduct(ctx context.Context, tx *gorm.DB, referenceType string, referenceID uuid.UUID) (*models.PointsTransaction, error) {
	entry, err := s.repo.WithTx(tx).FindDeductByReference(ctx, referenceType, referenceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deduction")
	}
	return entry, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(maxAmountPlaces)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	return nil
}

func mutationFrom(entry *models.PointsTransaction) *Mutation {
	return &Mutation{
		TransactionID: entry.ID,
		UserID:        entry.UserID,
		Type:          entry.TransactionType,
		Amount:        entry.Amount,
		BalanceBefore: entry.BalanceBefore,
		BalanceAfter:  entry.BalanceAfter,
		CreatedAt:     entry.CreatedAt,
	}
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
