package handlers

import (
	"context"

	"lokalpay/internal/services"
	"lokalpay/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, input store.UserInput) error
	GetByID(ctx context.Context, userID string) (store.User, error)
	GetByPhone(ctx context.Context, phoneNumber string) (store.User, error)
	GetByReferralCode(ctx context.Context, referralCode string) (store.User, error)
	GetRole(ctx context.Context, userID string) (string, error)
	SetRole(ctx context.Context, tx store.Execer, userID, role string) error
	SetKYCStatus(ctx context.Context, tx store.Execer, userID, kycStatus string) error
}

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID string, dailyLimit, monthlyLimit int64) error
	GetByUser(ctx context.Context, userID string) (store.Wallet, error)
	GetByID(ctx context.Context, walletID string) (store.Wallet, error)
	UpdateStatus(ctx context.Context, tx store.Execer, walletID, status string) error
}

type AgentStore interface {
	GetByUser(ctx context.Context, userID string) (store.Agent, error)
	GetByID(ctx context.Context, agentID string) (store.Agent, error)
	UpdateStatus(ctx context.Context, tx store.Execer, agentID, status string) error
}

type TransactionStore interface {
	GetByID(ctx context.Context, transactionID string) (store.Transaction, error)
	ListByWallet(ctx context.Context, walletID, txType string, limit, offset int) ([]store.Transaction, error)
	CountByWallet(ctx context.Context, walletID, txType string) (int, error)
	ListByAgent(ctx context.Context, agentID, ledger string, limit, offset int) ([]store.Transaction, error)
	ListAll(ctx context.Context, limit, offset int) ([]store.Transaction, error)
}

type PackageStore interface {
	ListActiveWiFi(ctx context.Context) ([]store.WiFiPackage, error)
	ListActiveElectricity(ctx context.Context) ([]store.ElectricityPackage, error)
	CreateWiFi(ctx context.Context, tx store.Execer, input store.WiFiPackageInput) error
	CreateElectricity(ctx context.Context, tx store.Execer, input store.ElectricityPackageInput) error
	SetWiFiActive(ctx context.Context, tx store.Execer, packageID string, active bool) error
	SetElectricityActive(ctx context.Context, tx store.Execer, packageID string, active bool) error
}

type VoucherStore interface {
	ListByUser(ctx context.Context, userID, status string) ([]store.Voucher, error)
}

type MeterStore interface {
	Create(ctx context.Context, tx store.Execer, id, meterNumber, userID string, address *string) error
	ListByUser(ctx context.Context, userID string) ([]store.Meter, error)
}

type SettlementService interface {
	PurchaseWiFi(ctx context.Context, userID, packageID string, idempotencyKey *string) (services.WiFiPurchaseResult, error)
	ActivateVoucher(ctx context.Context, userID, voucherID string) (store.Voucher, error)
	VoucherByID(ctx context.Context, userID, voucherID string) (store.Voucher, error)
	PurchaseElectricity(ctx context.Context, userID, packageID, meterID string, idempotencyKey *string) (store.Transaction, error)
	RegisterAgent(ctx context.Context, userID string, input services.AgentRegistration) (store.Agent, error)
	TopUpFloat(ctx context.Context, userID string, amount int64, idempotencyKey *string) (store.Transaction, error)
	ProcessAgentSale(ctx context.Context, agentUserID string, sale services.AgentSale) (services.AgentSaleResult, error)
	WithdrawCommission(ctx context.Context, userID string, amount int64, method string, idempotencyKey *string) (store.Transaction, error)
	TransferFunds(ctx context.Context, senderUserID, recipientPhone string, amount int64, description, idempotencyKey *string) (services.TransferPair, error)
	InitiateTopUp(ctx context.Context, userID string, amount int64, paymentMethod string, idempotencyKey *string) (store.Transaction, error)
	CompleteTopUp(ctx context.Context, transactionID string, success bool) (store.Transaction, error)
	CreditReferralBonus(ctx context.Context, referrerUserID, referredUserID string) (store.Transaction, error)
}
