package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock-backend/pkg/enums"
)

// PurchaseRequestApprovedEvent carries the settlement produced by an approval.
type PurchaseRequestApprovedEvent struct {
	PurchaseRequestID uuid.UUID           `json:"purchase_request_id"`
	ProductID         uuid.UUID           `json:"product_id"`
	SellerID          uuid.UUID           `json:"seller_id"`
	BuyerID           uuid.UUID           `json:"buyer_id"`
	AdminUserID       uuid.UUID           `json:"admin_user_id"`
	Quantity          int                 `json:"quantity"`
	TotalAmount       decimal.Decimal     `json:"total_amount"`
	Commission        decimal.Decimal     `json:"commission"`
	SellerAmount      decimal.Decimal     `json:"seller_amount"`
	ProductStatus     enums.ProductStatus `json:"product_status"`
	ReportID          uuid.UUID           `json:"report_id"`
	ReportNumber      string              `json:"report_number"`
	PurchaseOrderID   *uuid.UUID          `json:"purchase_order_id,omitempty"`
}

// PurchaseRequestRejectedEvent is emitted when an admin declines a request.
type PurchaseRequestRejectedEvent struct {
	PurchaseRequestID uuid.UUID `json:"purchase_request_id"`
	ProductID         uuid.UUID `json:"product_id"`
	BuyerID           uuid.UUID `json:"buyer_id"`
	AdminUserID       uuid.UUID `json:"admin_user_id"`
}

// SalesReportStatusChangedEvent tracks forward moves of a sales approval report.
type SalesReportStatusChangedEvent struct {
	ReportID       uuid.UUID               `json:"report_id"`
	ReportNumber   string                  `json:"report_number"`
	SellerID       uuid.UUID               `json:"seller_id"`
	From           enums.SalesReportStatus `json:"from"`
	To             enums.SalesReportStatus `json:"to"`
	TrackingNumber *string                 `json:"tracking_number,omitempty"`
}

// SalesReportBuyerRevealedEvent records a paid buyer disclosure.
type SalesReportBuyerRevealedEvent struct {
	ReportID       uuid.UUID       `json:"report_id"`
	SellerID       uuid.UUID       `json:"seller_id"`
	BuyerID        uuid.UUID       `json:"buyer_id"`
	PointsDeducted decimal.Decimal `json:"points_deducted"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
}

// PointsBalanceChangedEvent describes an admin-issued credit to a points account.
type PointsBalanceChangedEvent struct {
	UserID          uuid.UUID                   `json:"user_id"`
	TransactionID   uuid.UUID                   `json:"transaction_id"`
	TransactionType enums.PointsTransactionType `json:"transaction_type"`
	Amount          decimal.Decimal             `json:"amount"`
	BalanceBefore   decimal.Decimal             `json:"balance_before"`
	BalanceAfter    decimal.Decimal             `json:"balance_after"`
	AdminUserID     *uuid.UUID                  `json:"admin_user_id,omitempty"`
}
