package purchaserequests

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medstock/medstock-backend/api/middleware"
	"github.com/medstock/medstock-backend/api/responses"
	"github.com/medstock/medstock-backend/api/validators"
	"github.com/medstock/medstock-backend/internal/fulfillment"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
)

type reviewer interface {
	Review(ctx context.Context, input fulfillment.ReviewInput) (*fulfillment.ReviewResult, error)
}

type reviewRequest struct {
	Status      string `json:"status" validate:"required,oneof=approved rejected"`
	AdminUserID string `json:"admin_user_id" validate:"omitempty,uuid"`
}

// Review approves or rejects a pending purchase request. The acting admin is
// taken from the token; an admin_user_id in the body must match it.
func Review(svc reviewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		requestID, err := validators.ParseUUIDParam(chi.URLParam(r, "purchaseRequestId"), "purchase request id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		adminID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body reviewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.AdminUserID != "" && uuid.MustParse(body.AdminUserID) != adminID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin_user_id does not match the authenticated user"))
			return
		}

		decision, err := enums.ParseReviewDecision(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPurchaseRequestID(ctx, requestID.String())
		}

		result, err := svc.Review(ctx, fulfillment.ReviewInput{
			PurchaseRequestID: requestID,
			AdminUserID:       adminID,
			Decision:          decision,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteOutcome(w, http.StatusOK, result.Message, result.Warnings, result)
	}
}
