package purchaserequests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medstock/medstock-backend/pkg/db/dbtest"
	"github.com/medstock/medstock-backend/pkg/enums"
)

func TestMarkReviewedOnlyLeavesPendingOnce(t *testing.T) {
	ctx := context.Background()
	client := dbtest.NewClient(t)
	seller := dbtest.SeedUser(t, client.DB(), enums.UserRoleSeller)
	buyer := dbtest.SeedUser(t, client.DB(), enums.UserRoleBuyer)
	admin := dbtest.SeedUser(t, client.DB(), enums.UserRoleAdmin)
	product := dbtest.SeedProduct(t, client.DB(), seller.ID, 10, "12.50")
	req := dbtest.SeedPurchaseRequest(t, client.DB(), buyer.ID, product, 4)
	repo := NewRepository(client.DB())

	now := time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)
	ok, err := repo.MarkReviewed(ctx, req.ID, enums.PurchaseRequestStatusApproved, admin.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkReviewed(ctx, req.ID, enums.PurchaseRequestStatusRejected, admin.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "a reviewed request must not change again")

	stored, err := repo.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseRequestStatusApproved, stored.Status)
	require.NotNil(t, stored.ReviewedBy)
	assert.Equal(t, admin.ID, *stored.ReviewedBy)
	require.NotNil(t, stored.ReviewedAt)
	assert.True(t, stored.ReviewedAt.Equal(now))
	assert.Equal(t, "50.00", dbtest.Money(stored.TotalPrice))
}

func TestFindForUpdateMissing(t *testing.T) {
	client := dbtest.NewClient(t)
	_, err := NewRepository(client.DB()).FindForUpdate(context.Background(), uuid.New())
	require.Error(t, err)
}
