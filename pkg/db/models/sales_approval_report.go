package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/pkg/enums"
)

// SalesApprovalReport is the settlement document delivered to the seller.
type SalesApprovalReport struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ReportNumber      string                  `gorm:"column:report_number;type:varchar(32);not null;uniqueIndex:ux_sales_approval_reports_number"`
	PurchaseRequestID uuid.UUID               `gorm:"column:purchase_request_id;type:uuid;not null;uniqueIndex:ux_sales_approval_reports_purchase_request"`
	PurchaseOrderID   *uuid.UUID              `gorm:"column:purchase_order_id;type:uuid"`
	SellerID          uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	ProductID         uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	Quantity          int                     `gorm:"column:quantity;not null"`
	UnitPrice         decimal.Decimal         `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TotalAmount       decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Commission        decimal.Decimal         `gorm:"column:commission;type:numeric(12,2);not null"`
	SellerAmount      decimal.Decimal         `gorm:"column:seller_amount;type:numeric(12,2);not null"`
	Status            enums.SalesReportStatus `gorm:"column:status;type:varchar(16);not null"`
	BuyerInfoRevealed bool                    `gorm:"column:buyer_info_revealed;not null;default:false"`
	PointsDeducted    decimal.Decimal         `gorm:"column:points_deducted;type:numeric(12,2);not null;default:0"`
	SentAt            *time.Time              `gorm:"column:sent_at"`
	ConfirmedAt       *time.Time              `gorm:"column:confirmed_at"`
	ShippedAt         *time.Time              `gorm:"column:shipped_at"`
	CompletedAt       *time.Time              `gorm:"column:completed_at"`
	TrackingNumber    *string                 `gorm:"column:tracking_number;type:varchar(128)"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns a primary key when the caller did not.
func (r *SalesApprovalReport) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReportNumberSequence holds the last report number issued for a year.
type ReportNumberSequence struct {
	Year      int `gorm:"column:year;primaryKey;autoIncrement:false"`
	LastValue int `gorm:"column:last_value;not null"`
}
