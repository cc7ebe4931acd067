package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
)

// SeedUser inserts a user with the given role and returns it.
func SeedUser(t testing.TB, conn *gorm.DB, role enums.UserRole) *models.User {
	t.Helper()
	id := uuid.New()
	phone := "010-0000-" + id.String()[:4]
	user := &models.User{
		ID:          id,
		Email:       string(role) + "-" + id.String() + "@medstock.test",
		Name:        string(role) + " user",
		CompanyName: string(role) + " pharmacy",
		Phone:       &phone,
		Role:        role,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedProduct inserts an active listing owned by sellerID.
func SeedProduct(t testing.TB, conn *gorm.DB, sellerID uuid.UUID, qty int, price string) *models.Product {
	t.Helper()
	product := &models.Product{
		SellerID:     sellerID,
		ProductName:  "Amoxicillin 500mg",
		Quantity:     qty,
		SellingPrice: decimal.RequireFromString(price),
		Status:       enums.ProductStatusActive,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedPurchaseRequest inserts a pending request for qty units at the
// product's selling price.
func SeedPurchaseRequest(t testing.TB, conn *gorm.DB, buyerID uuid.UUID, product *models.Product, qty int) *models.PurchaseRequest {
	t.Helper()
	req := &models.PurchaseRequest{
		BuyerID:    buyerID,
		ProductID:  product.ID,
		Quantity:   qty,
		TotalPrice: product.SellingPrice.Mul(decimal.NewFromInt(int64(qty))),
		Status:     enums.PurchaseRequestStatusPending,
	}
	if err := conn.Create(req).Error; err != nil {
		t.Fatalf("seed purchase request: %v", err)
	}
	return req
}

// Money normalizes a decimal read back from SQLite, which may surface
// numeric columns as floats.
func Money(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
