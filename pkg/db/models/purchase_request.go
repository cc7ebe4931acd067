package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/pkg/enums"
)

// PurchaseRequest is a buyer's offer awaiting admin review.
type PurchaseRequest struct {
	ID         uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID    uuid.UUID                   `gorm:"column:buyer_id;type:uuid;not null;index"`
	ProductID  uuid.UUID                   `gorm:"column:product_id;type:uuid;not null;index"`
	Quantity   int                         `gorm:"column:quantity;not null;check:chk_purchase_requests_quantity_positive,quantity > 0"`
	TotalPrice decimal.Decimal             `gorm:"column:total_price;type:numeric(12,2);not null"`
	Status     enums.PurchaseRequestStatus `gorm:"column:status;type:varchar(16);not null;default:pending"`
	ReviewedAt *time.Time                  `gorm:"column:reviewed_at"`
	ReviewedBy *uuid.UUID                  `gorm:"column:reviewed_by;type:uuid"`
	CreatedAt  time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns a primary key when the caller did not.
func (p *PurchaseRequest) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
