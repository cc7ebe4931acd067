package points

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	"github.com/medstock/medstock-backend/pkg/pagination"
)

// Repository persists points accounts and their append-only transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error)
	LockAccount(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, entry *models.PointsTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.PointsTransaction, error)
	FindDeductByReference(ctx context.Context, referenceType string, referenceID uuid.UUID) (*models.PointsTransaction, error)
	ListAccounts(ctx context.Context, afterUserID uuid.UUID, limit int) ([]models.PointsAccount, error)
	FoldTransactions(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	LatestTransaction(ctx context.Context, userID uuid.UUID) (*models.PointsTransaction, error)
}

type balanceRow struct {
	Balance decimal.Decimal `gorm:"column:balance"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a points repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Credit adds amount to the account, opening it on first use, and returns
// the new balance. The row is locked and the sum computed in decimal so the
// stored balance never picks up float rounding from the driver.
func (r *repository) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&models.PointsAccount{UserID: userID, Balance: decimal.Zero}).Error; err != nil {
		return decimal.Zero, err
	}
	current, err := r.LockAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	next := current.Add(amount)
	if err := r.setBalance(ctx, userID, next); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// Debit subtracts amount only when the balance covers it. ok is false when
// the account is missing or short.
func (r *repository) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	current, err := r.LockAccount(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	if current.LessThan(amount) {
		return current, false, nil
	}
	next := current.Sub(amount)
	if err := r.setBalance(ctx, userID, next); err != nil {
		return decimal.Zero, false, err
	}
	return next, true, nil
}

// LockAccount reads the balance under a row lock held until the surrounding
// transaction ends.
func (r *repository) LockAccount(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var account models.PointsAccount
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error; err != nil {
		return decimal.Zero, err
	}
	return account.Balance.Round(maxAmountPlaces), nil
}

func (r *repository) setBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.PointsAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"balance": balance, "updated_at": time.Now().UTC()}).Error
}

// GetBalance returns zero for users without an account.
func (r *repository) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var rows []balanceRow
	if err := r.db.WithContext(ctx).
		Model(&models.PointsAccount{}).
		Select("balance").
		Where("user_id = ?", userID).
		Limit(1).
		Scan(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return rows[0].Balance, nil
}

func (r *repository) InsertTransaction(ctx context.Context, entry *models.PointsTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListTransactions pages newest first. It returns up to limit+1 rows.
func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.PointsTransaction, error) {
	query := pagination.NewestFirst(r.db.WithContext(ctx).Where("user_id = ?", userID), cursor, limit)
	var entries []models.PointsTransaction
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) FindDeductByReference(ctx context.Context, referenceType string, referenceID uuid.UUID) (*models.PointsTransaction, error) {
	var entry models.PointsTransaction
	if err := r.db.WithContext(ctx).
		Where("transaction_type = ? AND reference_type = ? AND reference_id = ?", enums.PointsTransactionDeduct, referenceType, referenceID).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListAccounts pages accounts in user id order.
func (r *repository) ListAccounts(ctx context.Context, afterUserID uuid.UUID, limit int) ([]models.PointsAccount, error) {
	query := r.db.WithContext(ctx).Order("user_id ASC").Limit(limit)
	if afterUserID != uuid.Nil {
		query = query.Where("user_id > ?", afterUserID)
	}
	var accounts []models.PointsAccount
	if err := query.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

type foldRow struct {
	TransactionType enums.PointsTransactionType `gorm:"column:transaction_type"`
	Amount          decimal.Decimal             `gorm:"column:amount"`
}

// FoldTransactions sums the signed amounts of every entry for the user. The
// sum runs in decimal rather than in SQL.
func (r *repository) FoldTransactions(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var rows []foldRow
	if err := r.db.WithContext(ctx).
		Model(&models.PointsTransaction{}).
		Select("transaction_type", "amount").
		Where("user_id = ?", userID).
		Scan(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		amount := row.Amount.Round(maxAmountPlaces)
		if row.TransactionType == enums.PointsTransactionDeduct {
			amount = amount.Neg()
		}
		total = total.Add(amount)
	}
	return total, nil
}

func (r *repository) LatestTransaction(ctx context.Context, userID uuid.UUID) (*models.PointsTransaction, error) {
	var entry models.PointsTransaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
