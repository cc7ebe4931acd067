package middleware

import (
	"net/http"
	"strings"

	"github.com/medstock/medstock-backend/api/responses"
	pkgAuth "github.com/medstock/medstock-backend/pkg/auth"
	"github.com/medstock/medstock-backend/pkg/config"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
)

const bearerScheme = "bearer"

// bearerToken extracts the credential from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth verifies the access token and records the caller on the request
// context and the request logger.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "bearer token required"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "access token rejected"))
				return
			}

			caller := principal{userID: claims.UserID.String(), role: string(claims.Role)}
			ctx := withPrincipal(r.Context(), caller)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, caller.userID), caller.role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
