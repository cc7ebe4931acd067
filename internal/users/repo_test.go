package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medstock/medstock-backend/pkg/db/dbtest"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
)

func TestRepositoryFindAndExists(t *testing.T) {
	ctx := context.Background()
	client := dbtest.NewClient(t)
	repo := NewRepository(client.DB())

	seller := &models.User{Email: "seller@pharm.example", Name: "Kim", CompanyName: "Green Pharmacy", Role: enums.UserRoleSeller}
	require.NoError(t, repo.Create(ctx, seller))
	require.NotEqual(t, uuid.Nil, seller.ID)

	found, err := repo.FindByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, "Green Pharmacy", found.CompanyName)
	assert.Equal(t, enums.UserRoleSeller, found.Role)

	exists, err := repo.Exists(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRequireRole(t *testing.T) {
	ctx := context.Background()
	client := dbtest.NewClient(t)
	repo := NewRepository(client.DB())

	admin := &models.User{Email: "admin@medstock.example", Name: "Ops", Role: enums.UserRoleAdmin}
	buyer := &models.User{Email: "buyer@pharm.example", Name: "Lee", Role: enums.UserRoleBuyer}
	require.NoError(t, repo.Create(ctx, admin))
	require.NoError(t, repo.Create(ctx, buyer))

	got, err := RequireRole(ctx, repo, admin.ID, enums.UserRoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)

	_, err = RequireRole(ctx, repo, buyer.ID, enums.UserRoleAdmin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = RequireRole(ctx, repo, uuid.New(), enums.UserRoleAdmin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = RequireRole(ctx, repo, uuid.Nil, enums.UserRoleAdmin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}
