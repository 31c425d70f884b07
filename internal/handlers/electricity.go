package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"lokalpay/internal/middleware"
	"lokalpay/internal/money"
	"lokalpay/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func (h *Handler) ListElectricityPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.packages.ListActiveElectricity(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load packages")
		return
	}
	normalized := make([]map[string]any, 0, len(packages))
	for _, pkg := range packages {
		entry := map[string]any{
			"id":           pkg.ID,
			"name":         pkg.Name,
			"description":  pkg.Description,
			"price":        money.FormatMinor(pkg.Price),
			"package_type": pkg.PackageType,
		}
		if pkg.KWhAmount != nil {
			entry["kwh_amount"] = pkg.KWhAmount.String()
		}
		if pkg.ValidityDays != nil {
			entry["validity_days"] = *pkg.ValidityDays
		}
		normalized = append(normalized, entry)
	}
	respondJSON(w, http.StatusOK, normalized)
}

type electricityPurchaseRequest struct {
	PackageID      string  `json:"package_id"`
	MeterID        string  `json:"meter_id"`
	IdempotencyKey *string `json:"idempotency_key"`
}

func (h *Handler) PurchaseElectricity(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req electricityPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.PackageID == "" || req.MeterID == "" {
		respondError(w, http.StatusBadRequest, "package_id and meter_id are required")
		return
	}
	txn, err := h.settlement.PurchaseElectricity(r.Context(), userID, req.PackageID, req.MeterID, idempotencyKey(r, req.IdempotencyKey))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(txn))
}

func (h *Handler) ListMeters(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	meters, err := h.meters.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load meters")
		return
	}
	normalized := make([]map[string]any, 0, len(meters))
	for _, meter := range meters {
		normalized = append(normalized, meterJSON(meter))
	}
	respondJSON(w, http.StatusOK, normalized)
}

type registerMeterRequest struct {
	MeterNumber string  `json:"meter_number"`
	Address     *string `json:"address"`
}

func (h *Handler) RegisterMeter(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req registerMeterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateMeterNumber(req.MeterNumber); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	meterID := uuid.NewString()
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.meters.Create(r.Context(), tx, meterID, req.MeterNumber, userID, req.Address)
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			respondError(w, http.StatusConflict, "meter already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to register meter")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"id":           meterID,
		"meter_number": req.MeterNumber,
	})
}
