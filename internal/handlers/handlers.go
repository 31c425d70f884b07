package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"lokalpay/internal/money"
	"lokalpay/internal/services"
	"lokalpay/internal/store"

	"github.com/lib/pq"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the services sentinels onto stable error codes.
// Anything unrecognized is a 500.
func respondServiceError(w http.ResponseWriter, err error) {
	type mapping struct {
		sentinel error
		status   int
		code     string
	}
	mappings := []mapping{
		{services.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{services.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds"},
		{services.ErrInsufficientFloat, http.StatusBadRequest, "insufficient_float"},
		{services.ErrInsufficientCommission, http.StatusBadRequest, "insufficient_commission"},
		{services.ErrInsufficientCash, http.StatusBadRequest, "insufficient_cash"},
		{services.ErrLimitExceeded, http.StatusBadRequest, "spend_limit_exceeded"},
		{services.ErrWalletUnavailable, http.StatusForbidden, "wallet_unavailable"},
		{services.ErrAgentUnavailable, http.StatusForbidden, "agent_unavailable"},
		{services.ErrRecipientWalletUnavailable, http.StatusBadRequest, "recipient_wallet_unavailable"},
		{services.ErrNotAgent, http.StatusForbidden, "not_an_agent"},
		{services.ErrAlreadyAgent, http.StatusConflict, "already_an_agent"},
		{services.ErrKYCRequired, http.StatusForbidden, "kyc_required"},
		{services.ErrFloatBelowMinimum, http.StatusBadRequest, "float_below_minimum"},
		{services.ErrPackageNotFound, http.StatusNotFound, "package_not_found"},
		{services.ErrMeterNotFound, http.StatusNotFound, "meter_not_found"},
		{services.ErrMeterUnavailable, http.StatusBadRequest, "meter_unavailable"},
		{services.ErrMeterRequired, http.StatusBadRequest, "meter_required"},
		{services.ErrRecipientNotFound, http.StatusNotFound, "recipient_not_found"},
		{services.ErrSelfTransfer, http.StatusBadRequest, "self_transfer"},
		{services.ErrInvalidProductType, http.StatusBadRequest, "invalid_product_type"},
		{services.ErrVoucherNotActivatable, http.StatusConflict, "voucher_not_activatable"},
		{services.ErrTransactionNotFound, http.StatusNotFound, "transaction_not_found"},
		{services.ErrAlreadyProcessed, http.StatusConflict, "already_processed"},
		{services.ErrInvalidWithdrawMethod, http.StatusBadRequest, "invalid_withdraw_method"},
	}
	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			respondError(w, m.status, m.code)
			return
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		respondError(w, http.StatusConflict, "duplicate_request")
		return
	}
	respondError(w, http.StatusInternalServerError, "internal_error")
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func transactionJSON(txn store.Transaction) map[string]any {
	payload := map[string]any{
		"id":             txn.ID,
		"ledger":         txn.Ledger,
		"type":           txn.Type,
		"amount":         money.FormatMinor(txn.Amount),
		"fee":            money.FormatMinor(txn.Fee),
		"balance_before": money.FormatMinor(txn.BalanceBefore),
		"balance_after":  money.FormatMinor(txn.BalanceAfter),
		"reference":      txn.Reference,
		"status":         txn.Status,
		"created_at":     txn.CreatedAt,
	}
	if txn.PaymentMethod != nil {
		payload["payment_method"] = *txn.PaymentMethod
	}
	if txn.Description != nil {
		payload["description"] = *txn.Description
	}
	return payload
}

func voucherJSON(voucher store.Voucher) map[string]any {
	return map[string]any{
		"id":             voucher.ID,
		"package_id":     voucher.PackageID,
		"code":           voucher.Code,
		"status":         voucher.Status,
		"data_limit_mb":  voucher.DataLimitMB,
		"data_used_mb":   voucher.DataUsedMB,
		"validity_hours": voucher.ValidityHours,
		"activated_at":   voucher.ActivatedAt,
		"expires_at":     voucher.ExpiresAt,
	}
}

func meterJSON(meter store.Meter) map[string]any {
	return map[string]any{
		"id":                   meter.ID,
		"meter_number":         meter.MeterNumber,
		"address":              meter.Address,
		"kwh_balance":          meter.KWhBalance.String(),
		"unlimited_expires_at": meter.UnlimitedExpiresAt,
		"status":               meter.Status,
	}
}

func agentJSON(agent store.Agent) map[string]any {
	return map[string]any{
		"id":                 agent.ID,
		"agent_code":         agent.AgentCode,
		"business_name":      agent.BusinessName,
		"business_type":      agent.BusinessType,
		"tier":               agent.Tier,
		"float_balance":      money.FormatMinor(agent.FloatBalance),
		"commission_balance": money.FormatMinor(agent.CommissionBalance),
		"total_sales":        money.FormatMinor(agent.TotalSales),
		"monthly_sales":      money.FormatMinor(agent.MonthlySales),
		"status":             agent.Status,
	}
}
