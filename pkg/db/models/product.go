package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/pkg/enums"
)

// Product is a seller's dead-stock listing.
type Product struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID     uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	ProductName  string              `gorm:"column:product_name;type:varchar(255);not null"`
	Quantity     int                 `gorm:"column:quantity;not null;check:chk_products_quantity_positive,quantity > 0"`
	SellingPrice decimal.Decimal     `gorm:"column:selling_price;type:numeric(12,2);not null"`
	Status       enums.ProductStatus `gorm:"column:status;type:varchar(16);not null;default:active"`
	ExpiryDate   *time.Time          `gorm:"column:expiry_date"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns a primary key when the caller did not.
func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
