package salesreports

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medstock/medstock-backend/api/middleware"
	"github.com/medstock/medstock-backend/api/responses"
	"github.com/medstock/medstock-backend/api/validators"
	"github.com/medstock/medstock-backend/internal/reports"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
)

const (
	messageRevealed        = "buyer information revealed"
	messageAlreadyRevealed = "buyer information already revealed"
	maxTrackingNumberLen   = 128
)

type reportService interface {
	Get(ctx context.Context, reportID, viewerID uuid.UUID) (*reports.ReportDTO, error)
	Apply(ctx context.Context, input reports.ActionInput) (*reports.ReportDTO, error)
	RevealBuyerInfo(ctx context.Context, input reports.RevealInput) (*reports.RevealResult, error)
}

type actionRequest struct {
	Action         string `json:"action" validate:"required,oneof=send confirm ship complete"`
	TrackingNumber string `json:"tracking_number" validate:"omitempty,max=128"`
}

type revealRequest struct {
	SellerID string `json:"seller_id" validate:"omitempty,uuid"`
}

// Detail returns a report to its seller or an admin. Buyer contact fields are
// masked until the seller has paid for disclosure.
func Detail(svc reportService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}
		reportID, viewerID, ctx, err := reportScope(r, logg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Get(ctx, reportID, viewerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// Action advances a report through its lifecycle.
func Action(svc reportService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}
		reportID, actorID, ctx, err := reportScope(r, logg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body actionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		action, err := enums.ParseReportAction(body.Action)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
			return
		}

		report, err := svc.Apply(ctx, reports.ActionInput{
			ReportID:       reportID,
			ActorID:        actorID,
			Action:         action,
			TrackingNumber: validators.SanitizeString(body.TrackingNumber, maxTrackingNumberLen),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// RevealBuyerInfo pays for and returns the buyer's contact details. Repeated
// calls return the original payment without charging again.
func RevealBuyerInfo(svc reportService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}
		reportID, sellerID, ctx, err := reportScope(r, logg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body revealRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if body.SellerID != "" && uuid.MustParse(body.SellerID) != sellerID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "seller_id does not match the authenticated user"))
			return
		}

		result, err := svc.RevealBuyerInfo(ctx, reports.RevealInput{ReportID: reportID, SellerID: sellerID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		message := messageRevealed
		if result.AlreadyDeducted {
			message = messageAlreadyRevealed
		}
		responses.WriteOutcome(w, http.StatusOK, message, nil, result)
	}
}

func reportScope(r *http.Request, logg *logger.Logger) (uuid.UUID, uuid.UUID, context.Context, error) {
	reportID, err := validators.ParseUUIDParam(chi.URLParam(r, "reportId"), "report id")
	if err != nil {
		return uuid.Nil, uuid.Nil, nil, err
	}
	actorID, err := middleware.ActorID(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, nil, err
	}
	ctx := r.Context()
	if logg != nil {
		ctx = logg.WithReportID(ctx, reportID.String())
	}
	return reportID, actorID, ctx, nil
}
