package services

import (
	"context"
	"database/sql"
	"time"

	"lokalpay/internal/store"
	"lokalpay/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// Memory-backed stores. Mutations apply immediately, so failure tests must
// assert on paths that reject before the first write, which is how the
// services are built anyway.

type memWallets struct {
	rows map[string]*store.Wallet
	// locks records row-lock acquisitions, shared with memAgents so tests
	// can assert lock ordering across the two stores.
	locks *[]string
}

func newMemWallets(rows ...store.Wallet) *memWallets {
	m := &memWallets{rows: make(map[string]*store.Wallet)}
	for i := range rows {
		row := rows[i]
		m.rows[row.ID] = &row
	}
	return m
}

func (m *memWallets) Create(_ context.Context, _ store.Execer, id, userID string, dailyLimit, monthlyLimit int64) error {
	m.rows[id] = &store.Wallet{ID: id, UserID: userID, Status: "ACTIVE", DailyLimit: dailyLimit, MonthlyLimit: monthlyLimit}
	return nil
}

func (m *memWallets) GetByUser(_ context.Context, userID string) (store.Wallet, error) {
	for _, row := range m.rows {
		if row.UserID == userID {
			return *row, nil
		}
	}
	return store.Wallet{}, sql.ErrNoRows
}

func (m *memWallets) GetByID(_ context.Context, walletID string) (store.Wallet, error) {
	if row, ok := m.rows[walletID]; ok {
		return *row, nil
	}
	return store.Wallet{}, sql.ErrNoRows
}

func (m *memWallets) GetForUpdate(_ context.Context, _ store.Getter, walletID string) (store.Wallet, error) {
	m.recordLock()
	if row, ok := m.rows[walletID]; ok {
		return *row, nil
	}
	return store.Wallet{}, sql.ErrNoRows
}

func (m *memWallets) GetForUpdateByUser(ctx context.Context, _ store.Getter, userID string) (store.Wallet, error) {
	m.recordLock()
	return m.GetByUser(ctx, userID)
}

func (m *memWallets) recordLock() {
	if m.locks != nil {
		*m.locks = append(*m.locks, "wallet")
	}
}

func (m *memWallets) UpdateBalance(_ context.Context, _ store.Execer, walletID string, balance int64) error {
	m.rows[walletID].Balance = balance
	return nil
}

func (m *memWallets) UpdateSpend(_ context.Context, _ store.Execer, walletID string, dailySpent, monthlySpent int64, dailyPeriod, monthlyPeriod string) error {
	row := m.rows[walletID]
	row.DailySpent = dailySpent
	row.MonthlySpent = monthlySpent
	row.DailyPeriod = dailyPeriod
	row.MonthlyPeriod = monthlyPeriod
	return nil
}

type memAgents struct {
	rows  map[string]*store.Agent
	locks *[]string
}

func newMemAgents(rows ...store.Agent) *memAgents {
	m := &memAgents{rows: make(map[string]*store.Agent)}
	for i := range rows {
		row := rows[i]
		m.rows[row.ID] = &row
	}
	return m
}

func (m *memAgents) Create(_ context.Context, _ store.Execer, input store.AgentInput) error {
	m.rows[input.ID] = &store.Agent{
		ID:           input.ID,
		UserID:       input.UserID,
		AgentCode:    input.AgentCode,
		BusinessName: input.BusinessName,
		BusinessType: input.BusinessType,
		Tier:         "BRONZE",
		FloatBalance: input.FloatBalance,
		Status:       input.Status,
	}
	return nil
}

func (m *memAgents) GetByUser(_ context.Context, userID string) (store.Agent, error) {
	for _, row := range m.rows {
		if row.UserID == userID {
			return *row, nil
		}
	}
	return store.Agent{}, sql.ErrNoRows
}

func (m *memAgents) GetByID(_ context.Context, agentID string) (store.Agent, error) {
	if row, ok := m.rows[agentID]; ok {
		return *row, nil
	}
	return store.Agent{}, sql.ErrNoRows
}

func (m *memAgents) GetForUpdate(ctx context.Context, _ store.Getter, agentID string) (store.Agent, error) {
	if m.locks != nil {
		*m.locks = append(*m.locks, "agent")
	}
	return m.GetByID(ctx, agentID)
}

func (m *memAgents) UpdateFloatBalance(_ context.Context, _ store.Execer, agentID string, floatBalance int64) error {
	m.rows[agentID].FloatBalance = floatBalance
	return nil
}

func (m *memAgents) UpdateCommissionBalance(_ context.Context, _ store.Execer, agentID string, commissionBalance int64) error {
	m.rows[agentID].CommissionBalance = commissionBalance
	return nil
}

func (m *memAgents) UpdateSales(_ context.Context, _ store.Execer, agentID string, totalSales, monthlySales int64) error {
	row := m.rows[agentID]
	row.TotalSales = totalSales
	row.MonthlySales = monthlySales
	return nil
}

type memTransactions struct {
	rows []store.Transaction
	keys map[string]struct{}
	// missFirstLookup makes the first GetByIdempotencyKey report a miss even
	// for a stored key, simulating the loser of a concurrent insert race.
	missFirstLookup bool
}

func newMemTransactions() *memTransactions {
	return &memTransactions{keys: make(map[string]struct{})}
}

func (m *memTransactions) Create(_ context.Context, _ store.Execer, input store.TransactionInput) error {
	if input.IdempotencyKey != nil && *input.IdempotencyKey != "" {
		if _, taken := m.keys[*input.IdempotencyKey]; taken {
			return &pq.Error{Code: "23505", Constraint: "transactions_idempotency_key_key"}
		}
		m.keys[*input.IdempotencyKey] = struct{}{}
	}
	if input.Metadata == "" {
		input.Metadata = "{}"
	}
	m.rows = append(m.rows, transactionFromInput(input))
	return nil
}

func (m *memTransactions) GetByID(_ context.Context, transactionID string) (store.Transaction, error) {
	for _, row := range m.rows {
		if row.ID == transactionID {
			return row, nil
		}
	}
	return store.Transaction{}, sql.ErrNoRows
}

func (m *memTransactions) GetByIdempotencyKey(_ context.Context, key string) (store.Transaction, bool, error) {
	if m.missFirstLookup {
		m.missFirstLookup = false
		return store.Transaction{}, false, nil
	}
	for _, row := range m.rows {
		if row.IdempotencyKey != nil && *row.IdempotencyKey == key {
			return row, true, nil
		}
	}
	return store.Transaction{}, false, nil
}

func (m *memTransactions) GetByReference(_ context.Context, reference string) (store.Transaction, error) {
	for _, row := range m.rows {
		if row.Reference == reference {
			return row, nil
		}
	}
	return store.Transaction{}, sql.ErrNoRows
}

func (m *memTransactions) Complete(_ context.Context, _ store.Execer, transactionID string, balanceBefore, balanceAfter int64) (int64, error) {
	for i := range m.rows {
		if m.rows[i].ID == transactionID && m.rows[i].Status == "PENDING" {
			m.rows[i].Status = "COMPLETED"
			m.rows[i].BalanceBefore = balanceBefore
			m.rows[i].BalanceAfter = balanceAfter
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memTransactions) MarkFailed(_ context.Context, _ store.Execer, transactionID string) (int64, error) {
	for i := range m.rows {
		if m.rows[i].ID == transactionID && m.rows[i].Status == "PENDING" {
			m.rows[i].Status = "FAILED"
			return 1, nil
		}
	}
	return 0, nil
}

type memUsers struct {
	rows   map[string]*store.User
	points map[string]int
	// missFirstPhoneLookup makes the first GetByPhone miss even for a stored
	// row, simulating a customer created between the lookup and the sale's
	// transaction.
	missFirstPhoneLookup bool
}

func newMemUsers(rows ...store.User) *memUsers {
	m := &memUsers{rows: make(map[string]*store.User), points: make(map[string]int)}
	for i := range rows {
		row := rows[i]
		m.rows[row.ID] = &row
	}
	return m
}

func (m *memUsers) Create(_ context.Context, _ store.Execer, input store.UserInput) error {
	m.rows[input.ID] = &store.User{
		ID:           input.ID,
		PhoneNumber:  input.PhoneNumber,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PINHash:      input.PINHash,
		Role:         input.Role,
		Status:       "ACTIVE",
		KYCStatus:    "PENDING",
		ReferralCode: input.ReferralCode,
		ReferredBy:   input.ReferredBy,
	}
	return nil
}

func (m *memUsers) GetByID(_ context.Context, userID string) (store.User, error) {
	if row, ok := m.rows[userID]; ok {
		return *row, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memUsers) GetByPhone(_ context.Context, phoneNumber string) (store.User, error) {
	if m.missFirstPhoneLookup {
		m.missFirstPhoneLookup = false
		return store.User{}, sql.ErrNoRows
	}
	return m.findByPhone(phoneNumber)
}

func (m *memUsers) GetByPhoneTx(_ context.Context, _ store.Getter, phoneNumber string) (store.User, error) {
	return m.findByPhone(phoneNumber)
}

func (m *memUsers) findByPhone(phoneNumber string) (store.User, error) {
	for _, row := range m.rows {
		if row.PhoneNumber == phoneNumber {
			return *row, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memUsers) AddLoyaltyPoints(_ context.Context, _ store.Execer, userID string, points int) error {
	m.points[userID] += points
	return nil
}

type memPackages struct {
	wifi map[string]store.WiFiPackage
	elec map[string]store.ElectricityPackage
}

func newMemPackages() *memPackages {
	return &memPackages{wifi: make(map[string]store.WiFiPackage), elec: make(map[string]store.ElectricityPackage)}
}

func (m *memPackages) GetWiFi(_ context.Context, packageID string) (store.WiFiPackage, error) {
	if pkg, ok := m.wifi[packageID]; ok {
		return pkg, nil
	}
	return store.WiFiPackage{}, sql.ErrNoRows
}

func (m *memPackages) GetElectricity(_ context.Context, packageID string) (store.ElectricityPackage, error) {
	if pkg, ok := m.elec[packageID]; ok {
		return pkg, nil
	}
	return store.ElectricityPackage{}, sql.ErrNoRows
}

type memVouchers struct {
	rows map[string]*store.Voucher
}

func newMemVouchers() *memVouchers {
	return &memVouchers{rows: make(map[string]*store.Voucher)}
}

func (m *memVouchers) Create(_ context.Context, _ store.Execer, input store.VoucherInput) error {
	transactionID := input.TransactionID
	m.rows[input.ID] = &store.Voucher{
		ID:            input.ID,
		UserID:        input.UserID,
		PackageID:     input.PackageID,
		Code:          input.Code,
		Status:        store.VoucherUnused,
		DataLimitMB:   input.DataLimitMB,
		ValidityHours: input.ValidityHours,
		TransactionID: &transactionID,
	}
	return nil
}

func (m *memVouchers) GetByID(_ context.Context, voucherID, userID string) (store.Voucher, error) {
	if row, ok := m.rows[voucherID]; ok && row.UserID == userID {
		return *row, nil
	}
	return store.Voucher{}, sql.ErrNoRows
}

func (m *memVouchers) GetByTransaction(_ context.Context, transactionID string) (store.Voucher, error) {
	for _, row := range m.rows {
		if row.TransactionID != nil && *row.TransactionID == transactionID {
			return *row, nil
		}
	}
	return store.Voucher{}, sql.ErrNoRows
}

func (m *memVouchers) Activate(_ context.Context, _ store.Execer, voucherID string, activatedAt, expiresAt time.Time) (int64, error) {
	row, ok := m.rows[voucherID]
	if !ok || row.Status != store.VoucherUnused {
		return 0, nil
	}
	row.Status = store.VoucherActive
	row.ActivatedAt = &activatedAt
	row.ExpiresAt = &expiresAt
	return 1, nil
}

func (m *memVouchers) UpdateStatus(_ context.Context, _ store.Execer, voucherID, status string) error {
	if row, ok := m.rows[voucherID]; ok {
		row.Status = status
	}
	return nil
}

type memMeters struct {
	rows map[string]*store.Meter
}

func newMemMeters(rows ...store.Meter) *memMeters {
	m := &memMeters{rows: make(map[string]*store.Meter)}
	for i := range rows {
		row := rows[i]
		m.rows[row.ID] = &row
	}
	return m
}

func (m *memMeters) GetByID(_ context.Context, meterID string) (store.Meter, error) {
	if row, ok := m.rows[meterID]; ok {
		return *row, nil
	}
	return store.Meter{}, sql.ErrNoRows
}

func (m *memMeters) GetByNumber(_ context.Context, meterNumber string) (store.Meter, error) {
	for _, row := range m.rows {
		if row.MeterNumber == meterNumber {
			return *row, nil
		}
	}
	return store.Meter{}, sql.ErrNoRows
}

func (m *memMeters) GetForUpdate(ctx context.Context, _ store.Getter, meterID string) (store.Meter, error) {
	return m.GetByID(ctx, meterID)
}

func (m *memMeters) UpdateKWhBalance(_ context.Context, _ store.Execer, meterID string, kwhBalance decimal.Decimal) error {
	m.rows[meterID].KWhBalance = kwhBalance
	return nil
}

func (m *memMeters) UpdateUnlimitedExpiry(_ context.Context, _ store.Execer, meterID string, expiresAt time.Time) error {
	m.rows[meterID].UnlimitedExpiresAt = &expiresAt
	return nil
}

type stubHub struct {
	users  []string
	events []websocket.TransactionEvent
}

func (s *stubHub) BroadcastTransaction(userID string, event websocket.TransactionEvent) {
	s.users = append(s.users, userID)
	s.events = append(s.events, event)
}

// settlementEnv wires a Settlement over memory stores with a fixed clock.
type settlementEnv struct {
	settlement   *Settlement
	ledger       *Ledger
	wallets      *memWallets
	agents       *memAgents
	transactions *memTransactions
	users        *memUsers
	packages     *memPackages
	vouchers     *memVouchers
	meters       *memMeters
	hub          *stubHub
	now          time.Time
	lockOrder    []string
}

func newSettlementEnv() *settlementEnv {
	env := &settlementEnv{
		wallets:      newMemWallets(),
		agents:       newMemAgents(),
		transactions: newMemTransactions(),
		users:        newMemUsers(),
		packages:     newMemPackages(),
		vouchers:     newMemVouchers(),
		meters:       newMemMeters(),
		hub:          &stubHub{},
		now:          time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	env.wallets.locks = &env.lockOrder
	env.agents.locks = &env.lockOrder
	env.ledger = NewLedger(fakeTxRunner{}, env.wallets, env.agents, env.transactions)
	env.ledger.now = func() time.Time { return env.now }
	env.settlement = NewSettlement(
		fakeTxRunner{}, env.ledger,
		env.users, env.wallets, env.agents, env.transactions,
		env.packages, env.vouchers, env.meters, env.hub,
		SettlementConfig{MinFloatDeposit: 50000, ReferralBonus: 1000, DefaultDailyLimit: 500000, DefaultMonthlyLimit: 5000000},
	)
	env.settlement.now = func() time.Time { return env.now }
	return env
}
