package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/pkg/enums"
)

// PurchaseOrder records the commission split of an approved purchase request.
type PurchaseOrder struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseRequestID uuid.UUID                 `gorm:"column:purchase_request_id;type:uuid;not null;uniqueIndex:ux_purchase_orders_purchase_request"`
	SellerID          uuid.UUID                 `gorm:"column:seller_id;type:uuid;not null;index"`
	BuyerID           uuid.UUID                 `gorm:"column:buyer_id;type:uuid;not null"`
	ProductID         uuid.UUID                 `gorm:"column:product_id;type:uuid;not null"`
	Quantity          int                       `gorm:"column:quantity;not null"`
	PurchasePrice     decimal.Decimal           `gorm:"column:purchase_price;type:numeric(12,2);not null"`
	Commission        decimal.Decimal           `gorm:"column:commission;type:numeric(12,2);not null"`
	TotalAmount       decimal.Decimal           `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status            enums.PurchaseOrderStatus `gorm:"column:status;type:varchar(16);not null"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate assigns a primary key when the caller did not.
func (p *PurchaseOrder) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
