// Package inventory decrements product stock when a purchase request is
// approved.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/internal/users"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
)

// Result reports the stock level left after a decrement.
type Result struct {
	ProductID   uuid.UUID           `json:"product_id"`
	SellerID    uuid.UUID           `json:"seller_id"`
	NewQuantity int                 `json:"new_quantity"`
	NewStatus   enums.ProductStatus `json:"new_status"`

	// Product is the listing as it was before the decrement.
	Product *models.Product `json:"-"`
}

// InsufficientStockDetails is attached to INSUFFICIENT_STOCK errors.
type InsufficientStockDetails struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Mutator validates and applies stock decrements.
type Mutator struct {
	repo  Repository
	users users.Repository
	logg  *logger.Logger
}

// NewMutator wires the inventory mutator.
func NewMutator(repo Repository, usersRepo users.Repository, logg *logger.Logger) (*Mutator, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Mutator{repo: repo, users: usersRepo, logg: logg}, nil
}

// DecrementStock removes qty units from the product inside tx. The product
// row is locked for the rest of the transaction.
func (m *Mutator) DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock decrement")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	repo := m.repo.WithTx(tx)
	product, err := repo.FindForUpdate(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	exists, err := m.users.WithTx(tx).Exists(ctx, product.SellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	if !exists {
		ctx = m.logg.WithFields(ctx, map[string]any{
			"product_id": product.ID.String(),
			"seller_id":  product.SellerID.String(),
		})
		err := pkgerrors.New(pkgerrors.CodeIntegrity, "seller profile missing")
		m.logg.Critical(ctx, "inventory.seller_missing", err)
		return nil, err
	}

	switch product.Status {
	case enums.ProductStatusActive:
	case enums.ProductStatusSold:
		return nil, insufficient(product.ID, qty, 0)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "product is not available for sale").
			WithDetails(map[string]any{"product_id": product.ID, "status": product.Status})
	}
	if qty > product.Quantity {
		return nil, insufficient(product.ID, qty, product.Quantity)
	}

	row, err := repo.Decrement(ctx, product.ID, qty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	if row == nil {
		// Stock moved between the read and the guarded update.
		return nil, insufficient(product.ID, qty, 0)
	}

	return &Result{
		ProductID:   product.ID,
		SellerID:    product.SellerID,
		NewQuantity: row.Quantity,
		NewStatus:   row.Status,
		Product:     product,
	}, nil
}

func insufficient(productID uuid.UUID, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "requested quantity exceeds available stock").
		WithDetails(InsufficientStockDetails{ProductID: productID, Requested: requested, Available: available})
}
