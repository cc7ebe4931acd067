package fulfillment

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/internal/inventory"
	"github.com/medstock/medstock-backend/internal/purchaserequests"
	"github.com/medstock/medstock-backend/internal/settlement"
	"github.com/medstock/medstock-backend/internal/users"
	"github.com/medstock/medstock-backend/pkg/db"
	"github.com/medstock/medstock-backend/pkg/db/dbtest"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/outbox"
)

var reviewedAt = time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	client *db.Client
	svc    Service
	admin  *models.User
	seller *models.User
	buyer  *models.User
}

type harnessOptions struct {
	lenient        bool
	failOrderWrite bool
}

type failingOrderRepo struct {
	settlement.Repository
}

func (r failingOrderRepo) WithTx(tx *gorm.DB) settlement.Repository {
	return failingOrderRepo{Repository: r.Repository.WithTx(tx)}
}

func (failingOrderRepo) CreatePurchaseOrder(context.Context, *models.PurchaseOrder) error {
	return errors.New("order ledger unavailable")
}

func newHarness(t *testing.T, opts harnessOptions) harness {
	t.Helper()
	client := dbtest.NewClient(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	usersRepo := users.NewRepository(client.DB())

	mutator, err := inventory.NewMutator(inventory.NewRepository(client.DB()), usersRepo, logg)
	require.NoError(t, err)

	var settlementRepo settlement.Repository = settlement.NewRepository(client.DB())
	if opts.failOrderWrite {
		settlementRepo = failingOrderRepo{Repository: settlementRepo}
	}
	recorder, err := settlement.NewRecorder(settlementRepo, logg, settlement.Options{Strict: !opts.lenient})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Requests:   purchaserequests.NewRepository(client.DB()),
		Users:      usersRepo,
		Inventory:  mutator,
		Settlement: recorder,
		Tx:         client,
		Outbox:     outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Logger:     logg,
		TxAttempts: 5,
		Clock:      func() time.Time { return reviewedAt },
	})
	require.NoError(t, err)

	return harness{
		client: client,
		svc:    svc,
		admin:  dbtest.SeedUser(t, client.DB(), enums.UserRoleAdmin),
		seller: dbtest.SeedUser(t, client.DB(), enums.UserRoleSeller),
		buyer:  dbtest.SeedUser(t, client.DB(), enums.UserRoleBuyer),
	}
}

func (h harness) approve(id uuid.UUID) (*ReviewResult, error) {
	return h.svc.Review(context.Background(), ReviewInput{PurchaseRequestID: id, AdminUserID: h.admin.ID, Decision: enums.ReviewDecisionApproved})
}

func (h harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.client.DB().Model(model).Count(&n).Error)
	return n
}

func (h harness) product(t *testing.T, id uuid.UUID) models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, h.client.DB().First(&p, "id = ?", id).Error)
	return p
}

func (h harness) request(t *testing.T, id uuid.UUID) models.PurchaseRequest {
	t.Helper()
	var r models.PurchaseRequest
	require.NoError(t, h.client.DB().First(&r, "id = ?", id).Error)
	return r
}

func TestApproveFullQuantitySettlesAndSellsOut(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	product := dbtest.SeedProduct(t, h.client.DB(), h.seller.ID, 10, "100.00")
	req := dbtest.SeedPurchaseRequest(t, h.client.DB(), h.buyer.ID, product, 10)

	res, err := h.approve(req.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, MessageApproved, res.Message)
	assert.Equal(t, enums.PurchaseRequestStatusApproved, res.Status)
	assert.Equal(t, "SAR-2026-0001", res.ReportNumber)
	require.NotNil(t, res.PurchaseOrderID)
	require.NotNil(t, res.ReportID)
	assert.Equal(t, "50.00", dbtest.Money(*res.Commission))
	assert.Equal(t, "950.00", dbtest.Money(*res.SellerNet))
	assert.Equal(t, enums.ProductStatusSold, res.ProductStatus)
	assert.Equal(t, 0, *res.RemainingQuantity)
	assert.Empty(t, res.Warnings)

	stored := h.product(t, product.ID)
	assert.Equal(t, enums.ProductStatusSold, stored.Status)
	assert.Equal(t, 1, stored.Quantity)

	var report models.SalesApprovalReport
	require.NoError(t, h.client.DB().First(&report, "purchase_request_id = ?", req.ID).Error)
	assert.Equal(t, enums.SalesReportStatusSent, report.Status)
	assert.Equal(t, "50.00", dbtest.Money(report.Commission))
	assert.Equal(t, "950.00", dbtest.Money(report.SellerAmount))
	require.NotNil(t, report.PurchaseOrderID)
	assert.Equal(t, *res.PurchaseOrderID, *report.PurchaseOrderID)

	reviewed := h.request(t, req.ID)
	assert.Equal(t, enums.PurchaseRequestStatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, h.admin.ID, *reviewed.ReviewedBy)

	var event models.OutboxEvent
	require.NoError(t, h.client.DB().First(&event, "event_type = ?", enums.EventPurchaseRequestApproved).Error)
	assert.Equal(t, req.ID, event.AggregateID)
}

func TestReapproveIsNoop(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	product := dbtest.SeedProduct(t, h.client.DB(), h.seller.ID, 10, "100.00")
	req := dbtest.SeedPurchaseRequest(t, h.client.DB(), h.buyer.ID, product, 3)

	first, err := h.approve(req.ID)
	require.NoError(t, err)
	second, err := h.approve(req.ID)
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.Equal(t, MessageAlreadyApproved, second.Message)
	assert.Equal(t, *first.ReportID, *second.ReportID)
	assert.Equal(t, *first.PurchaseOrderID, *second.PurchaseOrderID)
	assert.Equal(t, first.ReportNumber, second.ReportNumber)

	assert.Equal(t, int64(1), h.count(t, &models.SalesApprovalReport{}))
	assert.Equal(t, int64(1), h.count(t, &models.PurchaseOrder{}))
	assert.Equal(t, 7, h.product(t, product.ID).Quantity)

	_, err = h.svc.Review(context.Background(), ReviewInput{PurchaseRequestID: req.ID, AdminUserID: h.admin.ID, Decision: enums.ReviewDecisionRejected})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestRejectLeavesStockUntouched(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	product := dbtest.SeedProduct(t, h.client.DB(), h.seller.ID, 10, "100.00")
	req := dbtest.SeedPurchaseRequest(t, h.client.DB(), h.buyer.ID, product, 4)

	res, err := h.svc.Review(context.Background(), ReviewInput{PurchaseRequestID: req.ID, AdminUserID: h.admin.ID, Decision: enums.ReviewDecisionRejected})
	require.NoError(t, err)
	assert.Equal(t, MessageRejected, res.Message)
	assert.Equal(t, enums.PurchaseRequestStatusRejected, res.Status)
	assert.Nil(t, res.ReportID)

	assert.Equal(t, 10, h.product(t, product.ID).Quantity)
	assert.Equal(t, enums.PurchaseRequestStatusRejected, h.request(t, req.ID).Status)
	assert.Zero(t, h.count(t, &models.SalesApprovalReport{}))

	_, err = h.approve(req.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestApproveInsufficientStockKeepsRequestPending(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	product := dbtest.SeedProduct(t, h.client.DB(), h.seller.ID, 5, "10.00")
	req := dbtest.SeedPurchaseRequest(t, h.client.DB(), h.buyer.ID, product, 6)

	_, err := h.approve(req.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	assert.Equal(t, enums.PurchaseRequestStatusPending, h.request(t, req.ID).Status)
	assert.Equal(t, 5, h.product(t, product.ID).Quantity)
	assert.Zero(t, h.count(t, &models.SalesApprovalReport{}))
	assert.Zero(t, h.count(t, &models.ReportNumberSequence{}))
	assert.Zero(t, h.count(t, &models.OutboxEvent{}))
}

func TestReviewRequiresAdmin(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	product := dbtest.SeedProduct(t, h.client.DB(), h.seller.ID, 5, "10.00")
	req := dbtest.SeedPurchaseRequest(t, h.client.DB(), h.buyer.ID, product, 1)

	for _, actor := range []uuid.UUID{h.seller.ID, h.buyer.ID, uuid.New()} {
		_, err := h.svc.Review(context.Background(), ReviewInput{PurchaseRequestID: req.ID, AdminUserID: actor, Decision: enums.ReviewDecisionApproved})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)
	}
	assert.Equal(t, enums.PurchaseRequestStatusPending, h.request(t, req.ID).Status)
	assert.Equal(t, 5, h.product(t, product.ID).Quantity)
}

func TestReviewValidatesInput(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	_, err := h.svc.Review(ctx, ReviewInput{AdminUserID: h.admin.ID, Decision: enums.ReviewDecisionApproved})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Review(ctx, ReviewInput{PurchaseRequestID: uuid.New(), AdminUserID: h.admin.ID, Decision: "maybe"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.approve(uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestConcurrentApprovalsNeverOversell(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	product := dbtest.SeedProduct(t, h.client.DB(), h.seller.ID, 10, "100.00")
	reqs := []*models.PurchaseRequest{
		dbtest.SeedPurchaseRequest(t, h.client.DB(), h.buyer.ID, product, 6),
		dbtest.SeedPurchaseRequest(t, h.client.DB(), h.buyer.ID, product, 6),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(reqs))
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = h.approve(id)
		}(i, req.ID)
	}
	wg.Wait()

	won, lost := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 4, h.product(t, product.ID).Quantity)
	assert.Equal(t, int64(1), h.count(t, &models.SalesApprovalReport{}))

	pending := 0
	for _, req := range reqs {
		if h.request(t, req.ID).Status == enums.PurchaseRequestStatusPending {
			pending++
		}
	}
	assert.Equal(t, 1, pending)
}

func TestConcurrentApprovalsOfSameRequestSettleOnce(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	product := dbtest.SeedProduct(t, h.client.DB(), h.seller.ID, 50, "10.00")
	req := dbtest.SeedPurchaseRequest(t, h.client.DB(), h.buyer.ID, product, 5)

	const n = 4
	var wg sync.WaitGroup
	results := make([]*ReviewResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.approve(req.ID)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i].Message == MessageApproved {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, int64(1), h.count(t, &models.SalesApprovalReport{}))
	assert.Equal(t, int64(1), h.count(t, &models.PurchaseOrder{}))
	assert.Equal(t, 45, h.product(t, product.ID).Quantity)
}

func TestLenientSettlementReturnsWarning(t *testing.T) {
	h := newHarness(t, harnessOptions{lenient: true, failOrderWrite: true})
	product := dbtest.SeedProduct(t, h.client.DB(), h.seller.ID, 10, "100.00")
	req := dbtest.SeedPurchaseRequest(t, h.client.DB(), h.buyer.ID, product, 2)

	res, err := h.approve(req.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.PurchaseOrderID)
	require.NotNil(t, res.ReportID)
	assert.Equal(t, []string{settlement.WarningPurchaseOrderFailed}, res.Warnings)
	assert.Equal(t, enums.PurchaseRequestStatusApproved, h.request(t, req.ID).Status)
	assert.Zero(t, h.count(t, &models.PurchaseOrder{}))
}

func TestStrictSettlementFailureRollsBackStock(t *testing.T) {
	h := newHarness(t, harnessOptions{failOrderWrite: true})
	product := dbtest.SeedProduct(t, h.client.DB(), h.seller.ID, 10, "100.00")
	req := dbtest.SeedPurchaseRequest(t, h.client.DB(), h.buyer.ID, product, 2)

	_, err := h.approve(req.ID)
	require.Error(t, err)
	assert.Equal(t, 10, h.product(t, product.ID).Quantity)
	assert.Equal(t, enums.PurchaseRequestStatusPending, h.request(t, req.ID).Status)
	assert.Zero(t, h.count(t, &models.SalesApprovalReport{}))
}
