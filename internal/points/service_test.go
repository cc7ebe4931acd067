package points

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/internal/users"
	"github.com/medstock/medstock-backend/pkg/db"
	"github.com/medstock/medstock-backend/pkg/db/dbtest"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/outbox"
	"github.com/medstock/medstock-backend/pkg/pagination"
)

type harness struct {
	client *db.Client
	svc    Service
	repo   Repository
	admin  *models.User
	seller *models.User
}

func newHarness(t *testing.T) harness {
	t.Helper()
	client := dbtest.NewClient(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	repo := NewRepository(client.DB())
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Users:  users.NewRepository(client.DB()),
		Tx:     client,
		Outbox: outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Logger: logg,
	})
	require.NoError(t, err)
	return harness{
		client: client,
		svc:    svc,
		repo:   repo,
		admin:  dbtest.SeedUser(t, client.DB(), enums.UserRoleAdmin),
		seller: dbtest.SeedUser(t, client.DB(), enums.UserRoleSeller),
	}
}

func (h harness) charge(t *testing.T, amount string) *Mutation {
	t.Helper()
	m, err := h.svc.Charge(context.Background(), ChargeInput{
		UserID:      h.seller.ID,
		AdminUserID: h.admin.ID,
		Amount:      decimal.RequireFromString(amount),
		Description: "top-up",
	})
	require.NoError(t, err)
	return m
}

func (h harness) deduct(amount string, ref uuid.UUID) (*Mutation, error) {
	var m *Mutation
	err := h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		m, err = h.svc.Deduct(context.Background(), tx, DeductInput{
			UserID:        h.seller.ID,
			Amount:        decimal.RequireFromString(amount),
			ReferenceType: ReferenceSalesApprovalReport,
			ReferenceID:   ref,
		})
		return err
	})
	return m, err
}

func (h harness) countTransactions(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.client.DB().Model(&models.PointsTransaction{}).Where("user_id = ?", h.seller.ID).Count(&n).Error)
	return n
}

func TestChargeOpensAccountAndRecordsTransaction(t *testing.T) {
	h := newHarness(t)

	first := h.charge(t, "100.00")
	assert.Equal(t, "0.00", dbtest.Money(first.BalanceBefore))
	assert.Equal(t, "100.00", dbtest.Money(first.BalanceAfter))

	second := h.charge(t, "25.50")
	assert.Equal(t, "100.00", dbtest.Money(second.BalanceBefore))
	assert.Equal(t, "125.50", dbtest.Money(second.BalanceAfter))

	balance, err := h.svc.Balance(context.Background(), h.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, "125.50", dbtest.Money(balance))
	assert.Equal(t, int64(2), h.countTransactions(t))

	var events []models.OutboxEvent
	require.NoError(t, h.client.DB().Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, enums.EventPointsCharged, events[0].EventType)
	assert.Equal(t, h.seller.ID, events[0].AggregateID)
}

func TestChargeValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input ChargeInput
		code  pkgerrors.Code
	}{
		{"zero amount", ChargeInput{UserID: h.seller.ID, AdminUserID: h.admin.ID, Amount: decimal.Zero}, pkgerrors.CodeValidation},
		{"negative amount", ChargeInput{UserID: h.seller.ID, AdminUserID: h.admin.ID, Amount: decimal.NewFromInt(-5)}, pkgerrors.CodeValidation},
		{"sub-cent amount", ChargeInput{UserID: h.seller.ID, AdminUserID: h.admin.ID, Amount: decimal.RequireFromString("1.005")}, pkgerrors.CodeValidation},
		{"missing user", ChargeInput{AdminUserID: h.admin.ID, Amount: decimal.NewFromInt(5)}, pkgerrors.CodeValidation},
		{"non admin actor", ChargeInput{UserID: h.seller.ID, AdminUserID: h.seller.ID, Amount: decimal.NewFromInt(5)}, pkgerrors.CodeForbidden},
		{"unknown target", ChargeInput{UserID: uuid.New(), AdminUserID: h.admin.ID, Amount: decimal.NewFromInt(5)}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Charge(ctx, tc.input)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "expected %s, got %v", tc.code, err)
		})
	}
	assert.Zero(t, h.countTransactions(t))
}

func TestDeductDebitsAndRejectsShortBalance(t *testing.T) {
	h := newHarness(t)
	h.charge(t, "80.00")

	m, err := h.deduct("50", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "80.00", dbtest.Money(m.BalanceBefore))
	assert.Equal(t, "30.00", dbtest.Money(m.BalanceAfter))
	assert.Equal(t, enums.PointsTransactionDeduct, m.Type)

	_, err = h.deduct("50", uuid.New())
	require.True(t, IsInsufficient(err), "got %v", err)
	details, ok := pkgerrors.As(err).Details().(InsufficientPointsDetails)
	require.True(t, ok)
	assert.Equal(t, "50.00", dbtest.Money(details.Required))
	assert.Equal(t, "30.00", dbtest.Money(details.Balance))
	assert.Equal(t, "20.00", dbtest.Money(details.Shortfall))
	assert.Equal(t, int64(2), h.countTransactions(t))
}

func TestDeductWithoutAccountReportsZeroBalance(t *testing.T) {
	h := newHarness(t)

	_, err := h.deduct("50", uuid.New())
	require.True(t, IsInsufficient(err))
	details := pkgerrors.As(err).Details().(InsufficientPointsDetails)
	assert.True(t, details.Balance.IsZero())
	assert.Equal(t, "50.00", dbtest.Money(details.Shortfall))
	assert.Zero(t, h.countTransactions(t))
}

func TestDeductSameReferenceTwiceConflicts(t *testing.T) {
	h := newHarness(t)
	h.charge(t, "200.00")
	ref := uuid.New()

	_, err := h.deduct("50", ref)
	require.NoError(t, err)
	_, err = h.deduct("50", ref)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrency), "got %v", err)

	balance, err := h.svc.Balance(context.Background(), h.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, "150.00", dbtest.Money(balance), "conflicting deduct must roll back")
}

func TestConcurrentDeductsNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	h.charge(t, "100.00")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.deduct("60", uuid.New())
		}(i)
	}
	wg.Wait()

	ok, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case IsInsufficient(err):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)

	balance, err := h.svc.Balance(context.Background(), h.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, "40.00", dbtest.Money(balance))
}

func TestRefundCreditsBalance(t *testing.T) {
	h := newHarness(t)
	h.charge(t, "10.00")
	ref := uuid.New()

	m, err := h.svc.Refund(context.Background(), RefundInput{
		UserID:        h.seller.ID,
		AdminUserID:   h.admin.ID,
		Amount:        decimal.RequireFromString("5.25"),
		ReferenceType: ReferenceSalesApprovalReport,
		ReferenceID:   &ref,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PointsTransactionRefund, m.Type)
	assert.Equal(t, "15.25", dbtest.Money(m.BalanceAfter))

	_, err = h.svc.Refund(context.Background(), RefundInput{
		UserID:      h.seller.ID,
		AdminUserID: h.admin.ID,
		Amount:      decimal.NewFromInt(1),
		ReferenceID: &ref,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestBalanceEqualsFoldAndReconcilerAgrees(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.charge(t, "120.00")
	_, err := h.deduct("50", uuid.New())
	require.NoError(t, err)
	_, err = h.svc.Refund(ctx, RefundInput{UserID: h.seller.ID, AdminUserID: h.admin.ID, Amount: decimal.NewFromInt(7)})
	require.NoError(t, err)
	_, err = h.deduct("17", uuid.New())
	require.NoError(t, err)

	balance, err := h.svc.Balance(ctx, h.seller.ID)
	require.NoError(t, err)
	folded, err := h.repo.FoldTransactions(ctx, h.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, "60.00", dbtest.Money(balance))
	assert.Equal(t, dbtest.Money(balance), dbtest.Money(folded))

	reconciler, err := NewReconciler(h.repo, h.client, nil, logger.New(logger.Options{Output: io.Discard}))
	require.NoError(t, err)
	report, err := reconciler.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Drifted)

	require.NoError(t, h.client.DB().Exec("UPDATE points_accounts SET balance = 999 WHERE user_id = ?", h.seller.ID).Error)
	report, err = reconciler.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Drifted, 1)
	assert.Equal(t, h.seller.ID, report.Drifted[0].UserID)
	assert.Equal(t, "60.00", dbtest.Money(report.Drifted[0].Folded))
}

// chargeAfterList commits a top-up right after the account page is read.
type chargeAfterList struct {
	Repository
	after func()
}

func (c *chargeAfterList) ListAccounts(ctx context.Context, afterUserID uuid.UUID, limit int) ([]models.PointsAccount, error) {
	accounts, err := c.Repository.ListAccounts(ctx, afterUserID, limit)
	if err == nil && c.after != nil {
		c.after()
		c.after = nil
	}
	return accounts, err
}

func TestReconcilerIgnoresChargeCommittedMidPass(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.charge(t, "100.00")

	repo := &chargeAfterList{Repository: h.repo, after: func() { h.charge(t, "5.00") }}
	reconciler, err := NewReconciler(repo, h.client, nil, logger.New(logger.Options{Output: io.Discard}))
	require.NoError(t, err)
	report, err := reconciler.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Drifted)

	balance, err := h.svc.Balance(ctx, h.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, "105.00", dbtest.Money(balance))
}

func TestBalanceArithmeticIsExact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.charge(t, "0.10")
	second := h.charge(t, "0.20")
	assert.True(t, second.BalanceBefore.Equal(decimal.RequireFromString("0.10")), second.BalanceBefore.String())
	assert.True(t, second.BalanceAfter.Equal(decimal.RequireFromString("0.30")), second.BalanceAfter.String())

	_, err := h.deduct("0.30", uuid.New())
	require.NoError(t, err)
	balance, err := h.svc.Balance(ctx, h.seller.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), balance.String())

	var stored models.PointsTransaction
	require.NoError(t, h.client.DB().Where("user_id = ? AND transaction_type = ?", h.seller.ID, enums.PointsTransactionDeduct).First(&stored).Error)
	assert.True(t, stored.BalanceBefore.Equal(decimal.RequireFromString("0.30")), stored.BalanceBefore.String())
	assert.True(t, stored.BalanceAfter.IsZero(), stored.BalanceAfter.String())

	folded, err := h.repo.FoldTransactions(ctx, h.seller.ID)
	require.NoError(t, err)
	assert.True(t, folded.IsZero(), folded.String())
}

func TestTransactionsPaginateNewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, amount := range []string{"1.00", "2.00", "3.00"} {
		h.charge(t, amount)
	}

	page, err := h.svc.Transactions(ctx, h.seller.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	require.NotEmpty(t, page.NextCursor)
	assert.Equal(t, "3.00", dbtest.Money(page.Transactions[0].Amount))

	next, err := h.svc.Transactions(ctx, h.seller.ID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Transactions, 1)
	assert.Empty(t, next.NextCursor)
	assert.Equal(t, "1.00", dbtest.Money(next.Transactions[0].Amount))

	_, err = h.svc.Transactions(ctx, h.seller.ID, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
