package handlers

import (
	"net/http"

	"lokalpay/internal/config"
	"lokalpay/internal/db"
	"lokalpay/internal/middleware"
	"lokalpay/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner     db.TxRunner
	cfg          config.Config
	users        UserStore
	wallets      WalletStore
	agents       AgentStore
	transactions TransactionStore
	packages     PackageStore
	vouchers     VoucherStore
	meters       MeterStore
	settlement   SettlementService
	hub          *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, wallets WalletStore, agents AgentStore, transactions TransactionStore, packages PackageStore, vouchers VoucherStore, meters MeterStore, settlement SettlementService, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner:     txRunner,
		cfg:          cfg,
		users:        users,
		wallets:      wallets,
		agents:       agents,
		transactions: transactions,
		packages:     packages,
		vouchers:     vouchers,
		meters:       meters,
		settlement:   settlement,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authed := middleware.Auth(h.cfg.JWTSecret)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(authed).Get("/me", h.Me)
	})

	router.Route("/wallet", func(r chi.Router) {
		// The gateway posts here without a user token.
		r.Post("/topup/callback", h.TopUpCallback)
		r.Group(func(r chi.Router) {
			r.Use(authed)
			r.Get("/", h.GetWallet)
			r.Post("/topup", h.InitiateTopUp)
			r.Post("/transfer", h.Transfer)
			r.Get("/transactions", h.ListTransactions)
		})
	})

	router.Route("/wifi", func(r chi.Router) {
		r.Use(authed)
		r.Get("/packages", h.ListWiFiPackages)
		r.Post("/purchase", h.PurchaseWiFi)
		r.Get("/vouchers", h.ListVouchers)
		r.Get("/vouchers/{id}", h.GetVoucher)
		r.Post("/vouchers/{id}/activate", h.ActivateVoucher)
	})

	router.Route("/electricity", func(r chi.Router) {
		r.Use(authed)
		r.Get("/packages", h.ListElectricityPackages)
		r.Post("/purchase", h.PurchaseElectricity)
		r.Get("/meters", h.ListMeters)
		r.Post("/meters/register", h.RegisterMeter)
	})

	router.Route("/agent", func(r chi.Router) {
		r.Use(authed)
		r.Post("/register", h.RegisterAgent)
		r.Get("/profile", h.AgentProfile)
		r.Get("/float", h.AgentFloat)
		r.Post("/float/topup", h.TopUpFloat)
		r.Post("/sale", h.AgentSale)
		r.Get("/commissions", h.ListCommissions)
		r.Post("/commissions/withdraw", h.WithdrawCommission)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(authed)
		r.Use(middleware.RequireRole(h.users, "ADMIN"))
		r.Post("/packages/wifi", h.CreateWiFiPackage)
		r.Post("/packages/electricity", h.CreateElectricityPackage)
		r.Post("/packages/{kind}/{id}/deactivate", h.DeactivatePackage)
		r.Put("/users/{id}/kyc", h.UpdateUserKYC)
		r.Put("/users/{id}/role", h.UpdateUserRole)
		r.Put("/agents/{id}/status", h.UpdateAgentStatus)
		r.Put("/wallets/{id}/status", h.UpdateWalletStatus)
		r.Get("/transactions", h.AdminListTransactions)
	})

	router.Get("/ws/transactions", h.WSTransactions)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
