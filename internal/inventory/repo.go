package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
)

// Repository persists product stock levels.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindForUpdate(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	Decrement(ctx context.Context, productID uuid.UUID, qty int) (*StockLevel, error)
}

// StockLevel is the post-update state of a product row.
type StockLevel struct {
	Quantity int                 `gorm:"column:quantity"`
	Status   enums.ProductStatus `gorm:"column:status"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds an inventory repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindForUpdate loads the product and holds its row lock until the
// surrounding transaction ends.
func (r *repository) FindForUpdate(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Decrement removes qty units from an active listing in a single conditional
// statement. A depleted listing flips to sold and keeps quantity 1 so the
// positivity constraint holds. Returns nil when the guard did not match.
func (r *repository) Decrement(ctx context.Context, productID uuid.UUID, qty int) (*StockLevel, error) {
	var rows []StockLevel
	err := r.db.WithContext(ctx).Raw(`
		UPDATE products
		SET quantity = CASE WHEN quantity - ? <= 0 THEN 1 ELSE quantity - ? END,
			status = CASE WHEN quantity - ? <= 0 THEN ? ELSE ? END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ? AND quantity >= ?
		RETURNING quantity, status
	`, qty, qty, qty, enums.ProductStatusSold, enums.ProductStatusActive,
		productID, enums.ProductStatusActive, qty).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
