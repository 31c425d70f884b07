package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lokalpay/internal/config"
	"lokalpay/internal/db"
	"lokalpay/internal/handlers"
	"lokalpay/internal/services"
	"lokalpay/internal/store"
	"lokalpay/internal/websocket"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	wallets := store.NewWalletStore(database)
	agents := store.NewAgentStore(database)
	transactions := store.NewTransactionStore(database)
	packages := store.NewPackageStore(database)
	vouchers := store.NewVoucherStore(database)
	meters := store.NewMeterStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	ledger := services.NewLedger(txRunner, wallets, agents, transactions)
	settlement := services.NewSettlement(txRunner, ledger, users, wallets, agents, transactions, packages, vouchers, meters, hub, services.SettlementConfig{
		MinFloatDeposit:     cfg.MinFloatDeposit,
		ReferralBonus:       cfg.ReferralBonus,
		DefaultDailyLimit:   cfg.DefaultDailyLimit,
		DefaultMonthlyLimit: cfg.DefaultMonthlyLimit,
	})

	handler := handlers.New(txRunner, cfg, users, wallets, agents, transactions, packages, vouchers, meters, settlement, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("lokalpay API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
