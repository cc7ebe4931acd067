package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/pkg/enums"
)

// PointsAccount holds the prepaid brokerage balance of a user.
type PointsAccount struct {
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;primaryKey"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(14,2);not null;default:0;check:chk_points_accounts_balance_non_negative,balance >= 0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// PointsTransaction is an immutable entry in a user's points ledger.
type PointsTransaction struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index:ix_points_transactions_user_created,priority:1"`
	TransactionType enums.PointsTransactionType `gorm:"column:transaction_type;type:varchar(16);not null"`
	Amount          decimal.Decimal             `gorm:"column:amount;type:numeric(14,2);not null;check:chk_points_transactions_amount_positive,amount > 0"`
	BalanceBefore   decimal.Decimal             `gorm:"column:balance_before;type:numeric(14,2);not null"`
	BalanceAfter    decimal.Decimal             `gorm:"column:balance_after;type:numeric(14,2);not null"`
	ReferenceType   *string                     `gorm:"column:reference_type;type:varchar(64)"`
	ReferenceID     *uuid.UUID                  `gorm:"column:reference_id;type:uuid"`
	AdminUserID     *uuid.UUID                  `gorm:"column:admin_user_id;type:uuid"`
	Description     *string                     `gorm:"column:description;type:text"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime;index:ix_points_transactions_user_created,priority:2"`
}

// BeforeCreate assigns a primary key when the caller did not.
func (p *PointsTransaction) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
