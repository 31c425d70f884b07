package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"lokalpay/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type wifiPackageRequest struct {
	Name          string  `json:"name"`
	Description   *string `json:"description"`
	Price         string  `json:"price"`
	DataLimitMB   int     `json:"data_limit_mb"`
	ValidityHours int     `json:"validity_hours"`
	SortOrder     int     `json:"sort_order"`
}

func (h *Handler) CreateWiFiPackage(w http.ResponseWriter, r *http.Request) {
	var req wifiPackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Name == "" || req.ValidityHours <= 0 {
		respondError(w, http.StatusBadRequest, "name and validity_hours are required")
		return
	}
	price, err := parseAmountMinor(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	packageID := uuid.NewString()
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.packages.CreateWiFi(r.Context(), tx, store.WiFiPackageInput{
			ID:            packageID,
			Name:          req.Name,
			Description:   req.Description,
			Price:         price,
			DataLimitMB:   req.DataLimitMB,
			ValidityHours: req.ValidityHours,
			SortOrder:     req.SortOrder,
		})
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create package")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": packageID})
}

type electricityPackageRequest struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	Price        string  `json:"price"`
	PackageType  string  `json:"package_type"`
	KWhAmount    *string `json:"kwh_amount"`
	ValidityDays *int    `json:"validity_days"`
	SortOrder    int     `json:"sort_order"`
}

func (h *Handler) CreateElectricityPackage(w http.ResponseWriter, r *http.Request) {
	var req electricityPackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	price, err := parseAmountMinor(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	input := store.ElectricityPackageInput{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		Price:        price,
		PackageType:  req.PackageType,
		ValidityDays: req.ValidityDays,
		SortOrder:    req.SortOrder,
	}
	switch req.PackageType {
	case store.PackageUnits:
		if req.KWhAmount == nil {
			respondError(w, http.StatusBadRequest, "kwh_amount is required for UNITS packages")
			return
		}
		kwh, err := decimal.NewFromString(*req.KWhAmount)
		if err != nil || kwh.LessThanOrEqual(decimal.Zero) {
			respondError(w, http.StatusBadRequest, "invalid kwh_amount")
			return
		}
		input.KWhAmount = &kwh
	case store.PackageUnlimited:
		if req.ValidityDays == nil || *req.ValidityDays <= 0 {
			respondError(w, http.StatusBadRequest, "validity_days is required for UNLIMITED packages")
			return
		}
	default:
		respondError(w, http.StatusBadRequest, "invalid package_type")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.packages.CreateElectricity(r.Context(), tx, input)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create package")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": input.ID})
}

func (h *Handler) DeactivatePackage(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	packageID := chi.URLParam(r, "id")
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		switch kind {
		case "wifi":
			return h.packages.SetWiFiActive(r.Context(), tx, packageID, false)
		case "electricity":
			return h.packages.SetElectricityActive(r.Context(), tx, packageID, false)
		default:
			return errUnknownPackageKind
		}
	})
	if err != nil {
		if err == errUnknownPackageKind {
			respondError(w, http.StatusBadRequest, "unknown package kind")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to deactivate package")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": packageID, "status": "INACTIVE"})
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

var kycStatuses = map[string]bool{"PENDING": true, "VERIFIED": true, "REJECTED": true}

// UpdateUserKYC moves a user through the verification pipeline. Agent
// registration is gated on VERIFIED, so this is the admin side of onboarding.
func (h *Handler) UpdateUserKYC(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !kycStatuses[req.Status] {
		respondError(w, http.StatusBadRequest, "invalid kyc status")
		return
	}
	if _, err := h.users.GetByID(r.Context(), userID); err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.users.SetKYCStatus(r.Context(), tx, userID, req.Status)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update kyc status")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": userID, "kyc_status": req.Status})
}

type roleUpdateRequest struct {
	Role string `json:"role"`
}

var userRoles = map[string]bool{"CUSTOMER": true, "AGENT": true, "ADMIN": true}

func (h *Handler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req roleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !userRoles[req.Role] {
		respondError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if _, err := h.users.GetByID(r.Context(), userID); err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.users.SetRole(r.Context(), tx, userID, req.Role)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update role")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": userID, "role": req.Role})
}

var agentStatuses = map[string]bool{"PENDING": true, "ACTIVE": true, "SUSPENDED": true}

func (h *Handler) UpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !agentStatuses[req.Status] {
		respondError(w, http.StatusBadRequest, "invalid agent status")
		return
	}
	if _, err := h.agents.GetByID(r.Context(), agentID); err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "agent not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load agent")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.agents.UpdateStatus(r.Context(), tx, agentID, req.Status)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update agent status")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": agentID, "status": req.Status})
}

var walletStatuses = map[string]bool{"ACTIVE": true, "FROZEN": true, "CLOSED": true}

func (h *Handler) UpdateWalletStatus(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "id")
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !walletStatuses[req.Status] {
		respondError(w, http.StatusBadRequest, "invalid wallet status")
		return
	}
	if _, err := h.wallets.GetByID(r.Context(), walletID); err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "wallet not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load wallet")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.wallets.UpdateStatus(r.Context(), tx, walletID, req.Status)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update wallet status")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": walletID, "status": req.Status})
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 50)
	rows, err := h.transactions.ListAll(r.Context(), limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		entry := transactionJSON(row)
		if row.WalletID != nil {
			entry["wallet_id"] = *row.WalletID
		}
		if row.AgentID != nil {
			entry["agent_id"] = *row.AgentID
		}
		normalized = append(normalized, entry)
	}
	respondJSON(w, http.StatusOK, normalized)
}
