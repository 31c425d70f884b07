package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"lokalpay/internal/auth"
	"lokalpay/internal/middleware"
	"lokalpay/internal/refs"
	"lokalpay/internal/store"
	"lokalpay/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type registerRequest struct {
	PhoneNumber  string  `json:"phone_number"`
	PIN          string  `json:"pin"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	ReferralCode *string `json:"referral_code"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidatePhone(req.PhoneNumber); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidatePIN(req.PIN); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, name := range []*string{req.FirstName, req.LastName} {
		if name != nil {
			if err := validator.ValidateName(*name); err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
	}
	pinHash, err := auth.HashPIN(req.PIN)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to secure pin")
		return
	}

	var referrer *store.User
	if req.ReferralCode != nil && *req.ReferralCode != "" {
		found, err := h.users.GetByReferralCode(r.Context(), *req.ReferralCode)
		if err != nil {
			if err != sql.ErrNoRows {
				respondError(w, http.StatusInternalServerError, "registration failed")
				return
			}
			respondError(w, http.StatusBadRequest, "unknown referral code")
			return
		}
		referrer = &found
	}

	userID := uuid.NewString()
	ownReferralCode := refs.ReferralCode()
	input := store.UserInput{
		ID:           userID,
		PhoneNumber:  req.PhoneNumber,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PINHash:      &pinHash,
		Role:         "CUSTOMER",
		ReferralCode: &ownReferralCode,
	}
	if referrer != nil {
		input.ReferredBy = &referrer.ID
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.users.Create(r.Context(), tx, input); err != nil {
			return err
		}
		return h.wallets.Create(r.Context(), tx, uuid.NewString(), userID, h.cfg.DefaultDailyLimit, h.cfg.DefaultMonthlyLimit)
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			respondError(w, http.StatusConflict, "phone number already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	// The bonus rides outside the registration transaction: a failed credit
	// must not undo the signup.
	if referrer != nil {
		if _, err := h.settlement.CreditReferralBonus(r.Context(), referrer.ID, userID); err != nil {
			log.Printf("referral bonus for %s failed: %v", referrer.ID, err)
		}
	}

	token, err := auth.GenerateToken(h.cfg.JWTSecret, userID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"token":         token,
		"user_id":       userID,
		"referral_code": ownReferralCode,
	})
}

type loginRequest struct {
	PhoneNumber string `json:"phone_number"`
	PIN         string `json:"pin"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := h.users.GetByPhone(r.Context(), req.PhoneNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if user.Status != "ACTIVE" {
		respondError(w, http.StatusForbidden, "account suspended")
		return
	}
	if user.PINHash == nil || !auth.CheckPIN(*user.PINHash, req.PIN) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":             user.ID,
		"phone_number":   user.PhoneNumber,
		"first_name":     user.FirstName,
		"last_name":      user.LastName,
		"role":           user.Role,
		"kyc_status":     user.KYCStatus,
		"referral_code":  user.ReferralCode,
		"loyalty_points": user.LoyaltyPoints,
		"created_at":     user.CreatedAt,
	})
}
