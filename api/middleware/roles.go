package middleware

import (
	"net/http"
	"strings"

	"github.com/medstock/medstock-backend/api/responses"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
)

// RequireRole rejects requests whose token does not carry one of roles.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := RoleFromContext(r.Context())
			for _, role := range roles {
				if current == string(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			err := pkgerrors.New(pkgerrors.CodeForbidden, strings.Join(names, " or ")+" role required")
			responses.WriteError(r.Context(), logg, w, err)
		})
	}
}
