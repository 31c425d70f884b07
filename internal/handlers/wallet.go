package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"lokalpay/internal/middleware"
	"lokalpay/internal/money"
	"lokalpay/internal/services"
)

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallet, err := h.wallets.GetByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "wallet not found")
		return
	}
	period := services.CurrentPeriod(time.Now())
	dailySpent := services.EffectiveDailySpent(wallet, period)
	monthlySpent := services.EffectiveMonthlySpent(wallet, period)
	respondJSON(w, http.StatusOK, map[string]any{
		"id":                wallet.ID,
		"balance":           money.FormatMinor(wallet.Balance),
		"currency":          wallet.Currency,
		"status":            wallet.Status,
		"daily_limit":       money.FormatMinor(wallet.DailyLimit),
		"monthly_limit":     money.FormatMinor(wallet.MonthlyLimit),
		"daily_spent":       money.FormatMinor(dailySpent),
		"monthly_spent":     money.FormatMinor(monthlySpent),
		"daily_remaining":   money.FormatMinor(wallet.DailyLimit - dailySpent),
		"monthly_remaining": money.FormatMinor(wallet.MonthlyLimit - monthlySpent),
	})
}

type topUpRequest struct {
	Amount         string  `json:"amount"`
	PaymentMethod  string  `json:"payment_method"`
	IdempotencyKey *string `json:"idempotency_key"`
}

func (h *Handler) InitiateTopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "CARD"
	}
	txn, err := h.settlement.InitiateTopUp(r.Context(), userID, amount, req.PaymentMethod, idempotencyKey(r, req.IdempotencyKey))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(txn))
}

type topUpCallbackRequest struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// TopUpCallback is the payment gateway's confirmation hook. Replays of the
// same callback are rejected by the guarded PENDING transition.
func (h *Handler) TopUpCallback(w http.ResponseWriter, r *http.Request) {
	var req topUpCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.TransactionID == "" {
		respondError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}
	success := req.Status == "SUCCESS"
	txn, err := h.settlement.CompleteTopUp(r.Context(), req.TransactionID, success)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transactionJSON(txn))
}

type transferRequest struct {
	RecipientPhone string  `json:"recipient_phone"`
	Amount         string  `json:"amount"`
	Description    *string `json:"description"`
	IdempotencyKey *string `json:"idempotency_key"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.RecipientPhone == "" {
		respondError(w, http.StatusBadRequest, "recipient_phone is required")
		return
	}
	amount, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	pair, err := h.settlement.TransferFunds(r.Context(), userID, req.RecipientPhone, amount, req.Description, idempotencyKey(r, req.IdempotencyKey))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(pair.Debit))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallet, err := h.wallets.GetByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "wallet not found")
		return
	}
	query := r.URL.Query()
	txType := query.Get("type")
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	offset := (page - 1) * limit
	rows, err := h.transactions.ListByWallet(r.Context(), wallet.ID, txType, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	total, err := h.transactions.CountByWallet(r.Context(), wallet.ID, txType)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, transactionJSON(row))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"transactions": normalized,
		"page":         page,
		"limit":        limit,
		"total":        total,
	})
}
