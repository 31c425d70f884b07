package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"lokalpay/internal/middleware"
	"lokalpay/internal/money"
	"lokalpay/internal/services"
	"lokalpay/internal/store"
)

type agentRegisterRequest struct {
	BusinessName string `json:"business_name"`
	BusinessType string `json:"business_type"`
	FloatDeposit string `json:"float_deposit"`
}

func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req agentRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.BusinessName == "" {
		respondError(w, http.StatusBadRequest, "business_name is required")
		return
	}
	deposit, err := parseAmountMinor(req.FloatDeposit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	agent, err := h.settlement.RegisterAgent(r.Context(), userID, services.AgentRegistration{
		BusinessName: req.BusinessName,
		BusinessType: req.BusinessType,
		FloatDeposit: deposit,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, agentJSON(agent))
}

func (h *Handler) AgentProfile(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, agentJSON(agent))
}

func (h *Handler) AgentFloat(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"float_balance":       money.FormatMinor(agent.FloatBalance),
		"low_float_threshold": money.FormatMinor(agent.LowFloatThreshold),
		"low_float":           agent.FloatBalance < agent.LowFloatThreshold,
	})
}

type floatTopUpRequest struct {
	Amount         string  `json:"amount"`
	IdempotencyKey *string `json:"idempotency_key"`
}

func (h *Handler) TopUpFloat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req floatTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	txn, err := h.settlement.TopUpFloat(r.Context(), userID, amount, idempotencyKey(r, req.IdempotencyKey))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(txn))
}

type agentSaleRequest struct {
	CustomerPhone  string  `json:"customer_phone"`
	ProductType    string  `json:"product_type"`
	PackageID      string  `json:"package_id"`
	MeterNumber    *string `json:"meter_number"`
	CashReceived   string  `json:"cash_received"`
	IdempotencyKey *string `json:"idempotency_key"`
}

func (h *Handler) AgentSale(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req agentSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.CustomerPhone == "" || req.PackageID == "" {
		respondError(w, http.StatusBadRequest, "customer_phone and package_id are required")
		return
	}
	cash, err := parseAmountMinor(req.CashReceived)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	result, err := h.settlement.ProcessAgentSale(r.Context(), userID, services.AgentSale{
		CustomerPhone:  req.CustomerPhone,
		ProductType:    req.ProductType,
		PackageID:      req.PackageID,
		MeterNumber:    req.MeterNumber,
		CashReceived:   cash,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	payload := map[string]any{
		"sale":       transactionJSON(result.Sale),
		"commission": transactionJSON(result.Commission),
		"change":     money.FormatMinor(result.Change),
	}
	if result.Voucher != nil {
		payload["voucher"] = voucherJSON(*result.Voucher)
	}
	respondJSON(w, http.StatusCreated, payload)
}

func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	rows, err := h.transactions.ListByAgent(r.Context(), agent.ID, store.LedgerCommission, limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load commissions")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, transactionJSON(row))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"commission_balance": money.FormatMinor(agent.CommissionBalance),
		"transactions":       normalized,
	})
}

type withdrawRequest struct {
	Amount         string  `json:"amount"`
	Method         string  `json:"method"`
	IdempotencyKey *string `json:"idempotency_key"`
}

func (h *Handler) WithdrawCommission(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	txn, err := h.settlement.WithdrawCommission(r.Context(), userID, amount, req.Method, idempotencyKey(r, req.IdempotencyKey))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(txn))
}

func (h *Handler) requireAgent(w http.ResponseWriter, r *http.Request) (store.Agent, bool) {
	userID, authed := middleware.UserIDFromContext(r.Context())
	if !authed {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return store.Agent{}, false
	}
	agent, err := h.agents.GetByUser(r.Context(), userID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusForbidden, "not_an_agent")
			return store.Agent{}, false
		}
		respondError(w, http.StatusInternalServerError, "unable to load agent")
		return store.Agent{}, false
	}
	return agent, true
}
