package auth

import (
	"context"
	"fmt"
	"net/http"

	"tour-booking/internal/logger"
	"tour-booking/internal/utils"
)

type contextKey string

const claimsKey contextKey = "claims"

// RequireRole admits requests carrying a valid bearer token with role.
func RequireRole(v Verifier, role string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, utils.CodeUnauthorized, err.Error())
				return
			}

			claims, err := v.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteError(w, http.StatusUnauthorized, utils.CodeUnauthorized, "invalid token")
				return
			}
			if !claims.HasRole(role) {
				log.LogSecurity("ROLE_DENIED", fmt.Sprintf("subject %s lacks role %s", claims.Subject, role))
				utils.WriteError(w, http.StatusForbidden, utils.CodeForbidden, "insufficient role")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Subject returns the authenticated subject, or "" outside RequireRole.
func Subject(ctx context.Context) string {
	if c, ok := ctx.Value(claimsKey).(*Claims); ok {
		return c.Subject
	}
	return ""
}
