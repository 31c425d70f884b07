package middleware

import (
	"context"
	"net/http"
)

// RoleStore resolves the role attribute on the user record. Access is a
// stored attribute, never inferred from the shape of a phone number.
type RoleStore interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

func RequireRole(roles RoleStore, required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			role, err := roles.GetRole(r.Context(), userID)
			if err != nil {
				http.Error(w, "unable to verify role", http.StatusInternalServerError)
				return
			}
			if role != required {
				http.Error(w, "insufficient privileges", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
