package points

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock-backend/api/middleware"
	"github.com/medstock/medstock-backend/api/responses"
	"github.com/medstock/medstock-backend/api/validators"
	internalpoints "github.com/medstock/medstock-backend/internal/points"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/pagination"
)

const maxDescriptionLen = 500

type ledger interface {
	Charge(ctx context.Context, input internalpoints.ChargeInput) (*internalpoints.Mutation, error)
	Refund(ctx context.Context, input internalpoints.RefundInput) (*internalpoints.Mutation, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Transactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalpoints.TransactionPage, error)
}

type chargeRequest struct {
	UserID      string          `json:"user_id" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
}

type refundRequest struct {
	UserID        string          `json:"user_id" validate:"required,uuid"`
	Amount        decimal.Decimal `json:"amount"`
	ReferenceType string          `json:"reference_type" validate:"max=64"`
	ReferenceID   string          `json:"reference_id" validate:"omitempty,uuid"`
	Description   string          `json:"description" validate:"max=500"`
}

type balanceResponse struct {
	UserID  uuid.UUID       `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

// Charge credits points to a user. Admin only.
func Charge(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}
		adminID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body chargeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mutation, err := svc.Charge(r.Context(), internalpoints.ChargeInput{
			UserID:      uuid.MustParse(body.UserID),
			AdminUserID: adminID,
			Amount:      body.Amount,
			Description: validators.SanitizeString(body.Description, maxDescriptionLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mutation)
	}
}

// Refund returns points to a user, optionally tied to the reference being
// refunded. Admin only.
func Refund(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}
		adminID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body refundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalpoints.RefundInput{
			UserID:        uuid.MustParse(body.UserID),
			AdminUserID:   adminID,
			Amount:        body.Amount,
			ReferenceType: strings.TrimSpace(body.ReferenceType),
			Description:   validators.SanitizeString(body.Description, maxDescriptionLen),
		}
		if body.ReferenceID != "" {
			referenceID := uuid.MustParse(body.ReferenceID)
			input.ReferenceID = &referenceID
		}

		mutation, err := svc.Refund(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mutation)
	}
}

// Balance returns the authenticated user's points balance.
func Balance(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}
		userID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Balance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{UserID: userID, Balance: balance})
	}
}

// Transactions pages through the authenticated user's ledger, newest first.
func Transactions(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}
		userID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		page, err := svc.Transactions(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
