package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"lokalpay/internal/middleware"
	"lokalpay/internal/money"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListWiFiPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.packages.ListActiveWiFi(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load packages")
		return
	}
	normalized := make([]map[string]any, 0, len(packages))
	for _, pkg := range packages {
		normalized = append(normalized, map[string]any{
			"id":             pkg.ID,
			"name":           pkg.Name,
			"description":    pkg.Description,
			"price":          money.FormatMinor(pkg.Price),
			"data_limit_mb":  pkg.DataLimitMB,
			"validity_hours": pkg.ValidityHours,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

type wifiPurchaseRequest struct {
	PackageID      string  `json:"package_id"`
	IdempotencyKey *string `json:"idempotency_key"`
}

func (h *Handler) PurchaseWiFi(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req wifiPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.PackageID == "" {
		respondError(w, http.StatusBadRequest, "package_id is required")
		return
	}
	result, err := h.settlement.PurchaseWiFi(r.Context(), userID, req.PackageID, idempotencyKey(r, req.IdempotencyKey))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"transaction": transactionJSON(result.Transaction),
		"voucher":     voucherJSON(result.Voucher),
	})
}

func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	status := r.URL.Query().Get("status")
	vouchers, err := h.vouchers.ListByUser(r.Context(), userID, status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load vouchers")
		return
	}
	normalized := make([]map[string]any, 0, len(vouchers))
	for _, voucher := range vouchers {
		normalized = append(normalized, voucherJSON(voucher))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	voucher, err := h.settlement.VoucherByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "voucher not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load voucher")
		return
	}
	respondJSON(w, http.StatusOK, voucherJSON(voucher))
}

func (h *Handler) ActivateVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	voucher, err := h.settlement.ActivateVoucher(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "voucher not found")
			return
		}
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, voucherJSON(voucher))
}
