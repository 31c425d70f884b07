package handlers

import (
	"errors"
	"net/http"

	"lokalpay/internal/money"
)

var (
	errInvalidAmount      = errors.New("invalid amount")
	errUnknownPackageKind = errors.New("unknown package kind")
)

func parseAmountMinor(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount <= 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

// idempotencyKey reads the Idempotency-Key header, falling back to the
// request body field the caller decoded.
func idempotencyKey(r *http.Request, bodyKey *string) *string {
	if header := r.Header.Get("Idempotency-Key"); header != "" {
		return &header
	}
	if bodyKey != nil && *bodyKey != "" {
		return bodyKey
	}
	return nil
}
