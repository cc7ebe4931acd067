package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
)

// BuyerContact is the buyer identity gated behind a points payment.
type BuyerContact struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	CompanyName string    `json:"company_name"`
	Email       string    `json:"email"`
	Phone       *string   `json:"phone,omitempty"`
}

// ReportDTO is the transport shape of a sales approval report. Buyer fields
// stay empty until the seller pays for disclosure.
type ReportDTO struct {
	ID                uuid.UUID               `json:"id"`
	ReportNumber      string                  `json:"report_number"`
	PurchaseRequestID uuid.UUID               `json:"purchase_request_id"`
	PurchaseOrderID   *uuid.UUID              `json:"purchase_order_id,omitempty"`
	SellerID          uuid.UUID               `json:"seller_id"`
	ProductID         uuid.UUID               `json:"product_id"`
	Quantity          int                     `json:"quantity"`
	UnitPrice         decimal.Decimal         `json:"unit_price"`
	TotalAmount       decimal.Decimal         `json:"total_amount"`
	Commission        decimal.Decimal         `json:"commission"`
	SellerAmount      decimal.Decimal         `json:"seller_amount"`
	Status            enums.SalesReportStatus `json:"status"`
	BuyerInfoRevealed bool                    `json:"buyer_info_revealed"`
	PointsDeducted    decimal.Decimal         `json:"points_deducted"`
	PointsRequired    decimal.Decimal         `json:"points_required"`
	SentAt            *time.Time              `json:"sent_at,omitempty"`
	ConfirmedAt       *time.Time              `json:"confirmed_at,omitempty"`
	ShippedAt         *time.Time              `json:"shipped_at,omitempty"`
	CompletedAt       *time.Time              `json:"completed_at,omitempty"`
	TrackingNumber    *string                 `json:"tracking_number,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	BuyerID           *uuid.UUID              `json:"buyer_id,omitempty"`
	Buyer             *BuyerContact           `json:"buyer,omitempty"`
}

// RevealResult is returned by a disclosure request.
type RevealResult struct {
	ReportID          uuid.UUID       `json:"report_id"`
	BuyerInfoRevealed bool            `json:"buyer_info_revealed"`
	AlreadyDeducted   bool            `json:"already_deducted"`
	PointsDeducted    decimal.Decimal `json:"points_deducted"`
	BalanceAfter      decimal.Decimal `json:"balance_after"`
	Buyer             *BuyerContact   `json:"buyer,omitempty"`
}

func contactFrom(user *models.User) *BuyerContact {
	if user == nil {
		return nil
	}
	return &BuyerContact{
		ID:          user.ID,
		Name:        user.Name,
		CompanyName: user.CompanyName,
		Email:       user.Email,
		Phone:       user.Phone,
	}
}

func toDTO(report *models.SalesApprovalReport, pointsRequired decimal.Decimal) *ReportDTO {
	return &ReportDTO{
		ID:                report.ID,
		ReportNumber:      report.ReportNumber,
		PurchaseRequestID: report.PurchaseRequestID,
		PurchaseOrderID:   report.PurchaseOrderID,
		SellerID:          report.SellerID,
		ProductID:         report.ProductID,
		Quantity:          report.Quantity,
		UnitPrice:         report.UnitPrice.Round(2),
		TotalAmount:       report.TotalAmount.Round(2),
		Commission:        report.Commission.Round(2),
		SellerAmount:      report.SellerAmount.Round(2),
		Status:            report.Status,
		BuyerInfoRevealed: report.BuyerInfoRevealed,
		PointsDeducted:    report.PointsDeducted.Round(2),
		PointsRequired:    pointsRequired,
		SentAt:            report.SentAt,
		ConfirmedAt:       report.ConfirmedAt,
		ShippedAt:         report.ShippedAt,
		CompletedAt:       report.CompletedAt,
		TrackingNumber:    report.TrackingNumber,
		CreatedAt:         report.CreatedAt,
	}
}
