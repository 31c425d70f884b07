package handlers

import (
	"net/http"
	"strings"

	"lokalpay/internal/auth"
	"lokalpay/internal/websocket"
)

// WSTransactions upgrades to a websocket subscribed to the caller's
// transaction events. Browsers cannot set headers on the upgrade request, so
// the token may ride in the query string instead.
func (h *Handler) WSTransactions(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
