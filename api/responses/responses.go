// Package responses renders the success and error envelopes for handlers.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteOutcome(w, http.StatusOK, "", nil, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	WriteOutcome(w, status, "", nil, data)
}

// WriteOutcome is WriteSuccessStatus plus a summary message and the
// non-fatal warnings the operation produced.
func WriteOutcome(w http.ResponseWriter, status int, message string, warnings []string, data any) {
	_ = writeJSON(w, status, types.SuccessEnvelope{
		Success:  true,
		Message:  message,
		Warnings: warnings,
		Data:     data,
	})
}

// WriteError maps err onto its code's status. Errors without a code are
// reported as internal and never echo their text to the client.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("nil error written as response")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := types.APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		Retryable: meta.Retryable,
	}
	if meta.ExposeMessage && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(logCtx, "request.error", err)
		} else {
			logg.Warn(logCtx, "request.rejected")
		}
	}

	envelope := types.ErrorEnvelope{Error: body}
	if typed.Code() == pkgerrors.CodeInsufficientPoints {
		mirrorShortfall(&envelope, typed.Details())
	}
	if encErr := writeJSON(w, meta.HTTPStatus, envelope); encErr != nil && logg != nil {
		logg.Error(ctx, "response.encode_failed", encErr)
	}
}

// mirrorShortfall copies the amounts out of the error details, whatever type
// carried them.
func mirrorShortfall(envelope *types.ErrorEnvelope, details any) {
	if details == nil {
		return
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return
	}
	var amounts struct {
		Required  json.RawMessage `json:"required"`
		Balance   json.RawMessage `json:"balance"`
		Shortfall json.RawMessage `json:"shortfall"`
	}
	if err := json.Unmarshal(raw, &amounts); err != nil {
		return
	}
	envelope.Required = amounts.Required
	envelope.Balance = amounts.Balance
	envelope.Shortfall = amounts.Shortfall
}

func writeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
