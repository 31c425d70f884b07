package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lokalpay/internal/auth"
	"lokalpay/internal/config"
	"lokalpay/internal/middleware"
	"lokalpay/internal/services"
	"lokalpay/internal/store"
	"lokalpay/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn            func(ctx context.Context, tx store.Execer, input store.UserInput) error
	getByIDFn           func(ctx context.Context, userID string) (store.User, error)
	getByPhoneFn        func(ctx context.Context, phoneNumber string) (store.User, error)
	getByReferralCodeFn func(ctx context.Context, referralCode string) (store.User, error)
	getRoleFn           func(ctx context.Context, userID string) (string, error)
	setRoleFn           func(ctx context.Context, tx store.Execer, userID, role string) error
	setKYCStatusFn      func(ctx context.Context, tx store.Execer, userID, kycStatus string) error
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, input store.UserInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (store.User, error) {
	if s.getByIDFn == nil {
		return store.User{ID: userID}, nil
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) GetByPhone(ctx context.Context, phoneNumber string) (store.User, error) {
	return s.getByPhoneFn(ctx, phoneNumber)
}

func (s stubUserStore) GetByReferralCode(ctx context.Context, referralCode string) (store.User, error) {
	return s.getByReferralCodeFn(ctx, referralCode)
}

func (s stubUserStore) GetRole(ctx context.Context, userID string) (string, error) {
	if s.getRoleFn == nil {
		return "CUSTOMER", nil
	}
	return s.getRoleFn(ctx, userID)
}

func (s stubUserStore) SetRole(ctx context.Context, tx store.Execer, userID, role string) error {
	if s.setRoleFn == nil {
		return nil
	}
	return s.setRoleFn(ctx, tx, userID, role)
}

func (s stubUserStore) SetKYCStatus(ctx context.Context, tx store.Execer, userID, kycStatus string) error {
	if s.setKYCStatusFn == nil {
		return nil
	}
	return s.setKYCStatusFn(ctx, tx, userID, kycStatus)
}

type stubWalletStore struct {
	createFn       func(ctx context.Context, tx store.Execer, id, userID string, dailyLimit, monthlyLimit int64) error
	getByUserFn    func(ctx context.Context, userID string) (store.Wallet, error)
	getByIDFn      func(ctx context.Context, walletID string) (store.Wallet, error)
	updateStatusFn func(ctx context.Context, tx store.Execer, walletID, status string) error
}

func (s stubWalletStore) Create(ctx context.Context, tx store.Execer, id, userID string, dailyLimit, monthlyLimit int64) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, userID, dailyLimit, monthlyLimit)
}

func (s stubWalletStore) GetByUser(ctx context.Context, userID string) (store.Wallet, error) {
	if s.getByUserFn == nil {
		return store.Wallet{ID: "wallet-1", UserID: userID, Status: "ACTIVE"}, nil
	}
	return s.getByUserFn(ctx, userID)
}

func (s stubWalletStore) GetByID(ctx context.Context, walletID string) (store.Wallet, error) {
	if s.getByIDFn == nil {
		return store.Wallet{ID: walletID, Status: "ACTIVE"}, nil
	}
	return s.getByIDFn(ctx, walletID)
}

func (s stubWalletStore) UpdateStatus(ctx context.Context, tx store.Execer, walletID, status string) error {
	if s.updateStatusFn == nil {
		return nil
	}
	return s.updateStatusFn(ctx, tx, walletID, status)
}

type stubAgentStore struct {
	getByUserFn    func(ctx context.Context, userID string) (store.Agent, error)
	getByIDFn      func(ctx context.Context, agentID string) (store.Agent, error)
	updateStatusFn func(ctx context.Context, tx store.Execer, agentID, status string) error
}

func (s stubAgentStore) GetByUser(ctx context.Context, userID string) (store.Agent, error) {
	return s.getByUserFn(ctx, userID)
}

func (s stubAgentStore) GetByID(ctx context.Context, agentID string) (store.Agent, error) {
	if s.getByIDFn == nil {
		return store.Agent{ID: agentID, Status: "ACTIVE"}, nil
	}
	return s.getByIDFn(ctx, agentID)
}

func (s stubAgentStore) UpdateStatus(ctx context.Context, tx store.Execer, agentID, status string) error {
	if s.updateStatusFn == nil {
		return nil
	}
	return s.updateStatusFn(ctx, tx, agentID, status)
}

type stubTransactionStore struct {
	getByIDFn       func(ctx context.Context, transactionID string) (store.Transaction, error)
	listByWalletFn  func(ctx context.Context, walletID, txType string, limit, offset int) ([]store.Transaction, error)
	countByWalletFn func(ctx context.Context, walletID, txType string) (int, error)
	listByAgentFn   func(ctx context.Context, agentID, ledger string, limit, offset int) ([]store.Transaction, error)
	listAllFn       func(ctx context.Context, limit, offset int) ([]store.Transaction, error)
}

func (s stubTransactionStore) GetByID(ctx context.Context, transactionID string) (store.Transaction, error) {
	return s.getByIDFn(ctx, transactionID)
}

func (s stubTransactionStore) ListByWallet(ctx context.Context, walletID, txType string, limit, offset int) ([]store.Transaction, error) {
	if s.listByWalletFn == nil {
		return nil, nil
	}
	return s.listByWalletFn(ctx, walletID, txType, limit, offset)
}

func (s stubTransactionStore) CountByWallet(ctx context.Context, walletID, txType string) (int, error) {
	if s.countByWalletFn == nil {
		return 0, nil
	}
	return s.countByWalletFn(ctx, walletID, txType)
}

func (s stubTransactionStore) ListByAgent(ctx context.Context, agentID, ledger string, limit, offset int) ([]store.Transaction, error) {
	if s.listByAgentFn == nil {
		return nil, nil
	}
	return s.listByAgentFn(ctx, agentID, ledger, limit, offset)
}

func (s stubTransactionStore) ListAll(ctx context.Context, limit, offset int) ([]store.Transaction, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

type stubPackageStore struct {
	listActiveWiFiFn        func(ctx context.Context) ([]store.WiFiPackage, error)
	listActiveElectricityFn func(ctx context.Context) ([]store.ElectricityPackage, error)
	createWiFiFn            func(ctx context.Context, tx store.Execer, input store.WiFiPackageInput) error
	createElectricityFn     func(ctx context.Context, tx store.Execer, input store.ElectricityPackageInput) error
	setWiFiActiveFn         func(ctx context.Context, tx store.Execer, packageID string, active bool) error
	setElectricityActiveFn  func(ctx context.Context, tx store.Execer, packageID string, active bool) error
}

func (s stubPackageStore) ListActiveWiFi(ctx context.Context) ([]store.WiFiPackage, error) {
	if s.listActiveWiFiFn == nil {
		return nil, nil
	}
	return s.listActiveWiFiFn(ctx)
}

func (s stubPackageStore) ListActiveElectricity(ctx context.Context) ([]store.ElectricityPackage, error) {
	if s.listActiveElectricityFn == nil {
		return nil, nil
	}
	return s.listActiveElectricityFn(ctx)
}

func (s stubPackageStore) CreateWiFi(ctx context.Context, tx store.Execer, input store.WiFiPackageInput) error {
	if s.createWiFiFn == nil {
		return nil
	}
	return s.createWiFiFn(ctx, tx, input)
}

func (s stubPackageStore) CreateElectricity(ctx context.Context, tx store.Execer, input store.ElectricityPackageInput) error {
	if s.createElectricityFn == nil {
		return nil
	}
	return s.createElectricityFn(ctx, tx, input)
}

func (s stubPackageStore) SetWiFiActive(ctx context.Context, tx store.Execer, packageID string, active bool) error {
	if s.setWiFiActiveFn == nil {
		return nil
	}
	return s.setWiFiActiveFn(ctx, tx, packageID, active)
}

func (s stubPackageStore) SetElectricityActive(ctx context.Context, tx store.Execer, packageID string, active bool) error {
	if s.setElectricityActiveFn == nil {
		return nil
	}
	return s.setElectricityActiveFn(ctx, tx, packageID, active)
}

type stubVoucherStore struct {
	listByUserFn func(ctx context.Context, userID, status string) ([]store.Voucher, error)
}

func (s stubVoucherStore) ListByUser(ctx context.Context, userID, status string) ([]store.Voucher, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, status)
}

type stubMeterStore struct {
	createFn     func(ctx context.Context, tx store.Execer, id, meterNumber, userID string, address *string) error
	listByUserFn func(ctx context.Context, userID string) ([]store.Meter, error)
}

func (s stubMeterStore) Create(ctx context.Context, tx store.Execer, id, meterNumber, userID string, address *string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, meterNumber, userID, address)
}

func (s stubMeterStore) ListByUser(ctx context.Context, userID string) ([]store.Meter, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

type stubSettlement struct {
	purchaseWiFiFn        func(ctx context.Context, userID, packageID string, idempotencyKey *string) (services.WiFiPurchaseResult, error)
	activateVoucherFn     func(ctx context.Context, userID, voucherID string) (store.Voucher, error)
	voucherByIDFn         func(ctx context.Context, userID, voucherID string) (store.Voucher, error)
	purchaseElectricityFn func(ctx context.Context, userID, packageID, meterID string, idempotencyKey *string) (store.Transaction, error)
	registerAgentFn       func(ctx context.Context, userID string, input services.AgentRegistration) (store.Agent, error)
	topUpFloatFn          func(ctx context.Context, userID string, amount int64, idempotencyKey *string) (store.Transaction, error)
	processAgentSaleFn    func(ctx context.Context, agentUserID string, sale services.AgentSale) (services.AgentSaleResult, error)
	withdrawCommissionFn  func(ctx context.Context, userID string, amount int64, method string, idempotencyKey *string) (store.Transaction, error)
	transferFundsFn       func(ctx context.Context, senderUserID, recipientPhone string, amount int64, description, idempotencyKey *string) (services.TransferPair, error)
	initiateTopUpFn       func(ctx context.Context, userID string, amount int64, paymentMethod string, idempotencyKey *string) (store.Transaction, error)
	completeTopUpFn       func(ctx context.Context, transactionID string, success bool) (store.Transaction, error)
	creditReferralFn      func(ctx context.Context, referrerUserID, referredUserID string) (store.Transaction, error)
}

func (s stubSettlement) PurchaseWiFi(ctx context.Context, userID, packageID string, idempotencyKey *string) (services.WiFiPurchaseResult, error) {
	return s.purchaseWiFiFn(ctx, userID, packageID, idempotencyKey)
}

func (s stubSettlement) ActivateVoucher(ctx context.Context, userID, voucherID string) (store.Voucher, error) {
	return s.activateVoucherFn(ctx, userID, voucherID)
}

func (s stubSettlement) VoucherByID(ctx context.Context, userID, voucherID string) (store.Voucher, error) {
	return s.voucherByIDFn(ctx, userID, voucherID)
}

func (s stubSettlement) PurchaseElectricity(ctx context.Context, userID, packageID, meterID string, idempotencyKey *string) (store.Transaction, error) {
	return s.purchaseElectricityFn(ctx, userID, packageID, meterID, idempotencyKey)
}

func (s stubSettlement) RegisterAgent(ctx context.Context, userID string, input services.AgentRegistration) (store.Agent, error) {
	return s.registerAgentFn(ctx, userID, input)
}

func (s stubSettlement) TopUpFloat(ctx context.Context, userID string, amount int64, idempotencyKey *string) (store.Transaction, error) {
	return s.topUpFloatFn(ctx, userID, amount, idempotencyKey)
}

func (s stubSettlement) ProcessAgentSale(ctx context.Context, agentUserID string, sale services.AgentSale) (services.AgentSaleResult, error) {
	return s.processAgentSaleFn(ctx, agentUserID, sale)
}

func (s stubSettlement) WithdrawCommission(ctx context.Context, userID string, amount int64, method string, idempotencyKey *string) (store.Transaction, error) {
	return s.withdrawCommissionFn(ctx, userID, amount, method, idempotencyKey)
}

func (s stubSettlement) TransferFunds(ctx context.Context, senderUserID, recipientPhone string, amount int64, description, idempotencyKey *string) (services.TransferPair, error) {
	return s.transferFundsFn(ctx, senderUserID, recipientPhone, amount, description, idempotencyKey)
}

func (s stubSettlement) InitiateTopUp(ctx context.Context, userID string, amount int64, paymentMethod string, idempotencyKey *string) (store.Transaction, error) {
	return s.initiateTopUpFn(ctx, userID, amount, paymentMethod, idempotencyKey)
}

func (s stubSettlement) CompleteTopUp(ctx context.Context, transactionID string, success bool) (store.Transaction, error) {
	return s.completeTopUpFn(ctx, transactionID, success)
}

func (s stubSettlement) CreditReferralBonus(ctx context.Context, referrerUserID, referredUserID string) (store.Transaction, error) {
	if s.creditReferralFn == nil {
		return store.Transaction{}, nil
	}
	return s.creditReferralFn(ctx, referrerUserID, referredUserID)
}

type testDeps struct {
	txRunner     fakeTxRunner
	users        stubUserStore
	wallets      stubWalletStore
	agents       stubAgentStore
	transactions stubTransactionStore
	packages     stubPackageStore
	vouchers     stubVoucherStore
	meters       stubMeterStore
	settlement   stubSettlement
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{
		JWTSecret:           "secret",
		TokenTTL:            time.Minute,
		AllowedOrigins:      "*",
		DefaultDailyLimit:   500000,
		DefaultMonthlyLimit: 5000000,
	}
	return New(deps.txRunner, cfg, deps.users, deps.wallets, deps.agents, deps.transactions, deps.packages, deps.vouchers, deps.meters, deps.settlement, websocket.NewHub())
}

// requestWithToken builds a request authenticated as userID.
func requestWithToken(t *testing.T, method, target, userID string, body []byte) *http.Request {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func stringPtr(s string) *string { return &s }

func withAuth(handlerFn http.HandlerFunc) http.Handler {
	return middleware.Auth("secret")(handlerFn)
}
