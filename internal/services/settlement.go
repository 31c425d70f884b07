package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"lokalpay/internal/db"
	"lokalpay/internal/money"
	"lokalpay/internal/refs"
	"lokalpay/internal/store"
	"lokalpay/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Loyalty points accrue at 1 point per R10 spent.
const loyaltyDivisorCents = 1000

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, input store.UserInput) error
	GetByID(ctx context.Context, userID string) (store.User, error)
	GetByPhone(ctx context.Context, phoneNumber string) (store.User, error)
	GetByPhoneTx(ctx context.Context, tx store.Getter, phoneNumber string) (store.User, error)
	AddLoyaltyPoints(ctx context.Context, tx store.Execer, userID string, points int) error
}

type PackageStore interface {
	GetWiFi(ctx context.Context, packageID string) (store.WiFiPackage, error)
	GetElectricity(ctx context.Context, packageID string) (store.ElectricityPackage, error)
}

type VoucherStore interface {
	Create(ctx context.Context, tx store.Execer, input store.VoucherInput) error
	GetByID(ctx context.Context, voucherID, userID string) (store.Voucher, error)
	GetByTransaction(ctx context.Context, transactionID string) (store.Voucher, error)
	Activate(ctx context.Context, tx store.Execer, voucherID string, activatedAt, expiresAt time.Time) (int64, error)
	UpdateStatus(ctx context.Context, tx store.Execer, voucherID, status string) error
}

type MeterStore interface {
	GetByID(ctx context.Context, meterID string) (store.Meter, error)
	GetByNumber(ctx context.Context, meterNumber string) (store.Meter, error)
	GetForUpdate(ctx context.Context, tx store.Getter, meterID string) (store.Meter, error)
	UpdateKWhBalance(ctx context.Context, tx store.Execer, meterID string, kwhBalance decimal.Decimal) error
	UpdateUnlimitedExpiry(ctx context.Context, tx store.Execer, meterID string, expiresAt time.Time) error
}

// Notifier is the post-commit notification channel. The hub satisfies it.
type Notifier interface {
	BroadcastTransaction(userID string, event websocket.TransactionEvent)
}

// Settlement is the product settlement engine. Every purchase, sale, transfer
// and withdrawal runs here: the money leg goes through the ledger and the
// product leg (voucher, meter credit) lands in the same storage transaction,
// so a committed debit always has its product and vice versa.
type Settlement struct {
	txRunner     db.TxRunner
	ledger       *Ledger
	users        UserStore
	wallets      WalletStore
	agents       AgentStore
	transactions TransactionStore
	packages     PackageStore
	vouchers     VoucherStore
	meters       MeterStore
	notifier     Notifier

	minFloatDeposit int64
	referralBonus   int64
	defaultDaily    int64
	defaultMonthly  int64

	now func() time.Time
}

type SettlementConfig struct {
	MinFloatDeposit     int64
	ReferralBonus       int64
	DefaultDailyLimit   int64
	DefaultMonthlyLimit int64
}

func NewSettlement(
	txRunner db.TxRunner,
	ledger *Ledger,
	users UserStore,
	wallets WalletStore,
	agents AgentStore,
	transactions TransactionStore,
	packages PackageStore,
	vouchers VoucherStore,
	meters MeterStore,
	notifier Notifier,
	cfg SettlementConfig,
) *Settlement {
	return &Settlement{
		txRunner:        txRunner,
		ledger:          ledger,
		users:           users,
		wallets:         wallets,
		agents:          agents,
		transactions:    transactions,
		packages:        packages,
		vouchers:        vouchers,
		meters:          meters,
		notifier:        notifier,
		minFloatDeposit: cfg.MinFloatDeposit,
		referralBonus:   cfg.ReferralBonus,
		defaultDaily:    cfg.DefaultDailyLimit,
		defaultMonthly:  cfg.DefaultMonthlyLimit,
		now:             time.Now,
	}
}

// replayByKey returns the prior transaction for an idempotency key, if one
// exists. Called before an operation starts and again when the unique
// constraint on transactions.idempotency_key reports that a concurrent
// request won the race.
func (s *Settlement) replayByKey(ctx context.Context, key *string) (store.Transaction, bool, error) {
	if key == nil || *key == "" {
		return store.Transaction{}, false, nil
	}
	return s.transactions.GetByIdempotencyKey(ctx, *key)
}

func (s *Settlement) notify(userID string, txn store.Transaction) {
	if s.notifier == nil {
		return
	}
	s.notifier.BroadcastTransaction(userID, websocket.TransactionEvent{
		AccountID: userID,
		Type:      txn.Type,
		Amount:    money.FormatMinor(txn.Amount),
		Reference: txn.Reference,
		Status:    txn.Status,
	})
}

// WiFiPurchaseResult carries the debit row and the voucher it paid for.
type WiFiPurchaseResult struct {
	Transaction store.Transaction
	Voucher     store.Voucher
}

// PurchaseWiFi debits the customer's wallet and issues an UNUSED voucher in
// one transaction.
func (s *Settlement) PurchaseWiFi(ctx context.Context, userID, packageID string, idempotencyKey *string) (WiFiPurchaseResult, error) {
	if prior, ok, err := s.replayByKey(ctx, idempotencyKey); err != nil {
		return WiFiPurchaseResult{}, err
	} else if ok {
		return s.wifiResultFor(ctx, prior)
	}

	pkg, err := s.packages.GetWiFi(ctx, packageID)
	if err != nil || !pkg.IsActive {
		return WiFiPurchaseResult{}, ErrPackageNotFound
	}
	wallet, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return WiFiPurchaseResult{}, err
	}
	if wallet.Status != "ACTIVE" {
		return WiFiPurchaseResult{}, ErrWalletUnavailable
	}

	var result WiFiPurchaseResult
	description := "WiFi: " + pkg.Name
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.ledger.ApplyWalletDeltaTx(ctx, tx, WalletDelta{
			WalletID:       wallet.ID,
			Type:           "PURCHASE",
			Amount:         -pkg.Price,
			Description:    &description,
			Metadata:       map[string]any{"product": "WIFI", "package_id": pkg.ID},
			IdempotencyKey: idempotencyKey,
			EnforceLimits:  true,
		})
		if err != nil {
			return err
		}
		voucher := store.VoucherInput{
			ID:            uuid.NewString(),
			UserID:        userID,
			PackageID:     pkg.ID,
			Code:          refs.VoucherCode(),
			DataLimitMB:   pkg.DataLimitMB,
			ValidityHours: pkg.ValidityHours,
			TransactionID: txn.ID,
		}
		if err := s.vouchers.Create(ctx, tx, voucher); err != nil {
			return err
		}
		if points := int(pkg.Price / loyaltyDivisorCents); points > 0 {
			if err := s.users.AddLoyaltyPoints(ctx, tx, userID, points); err != nil {
				return err
			}
		}
		result.Transaction = txn
		result.Voucher = store.Voucher{
			ID:            voucher.ID,
			UserID:        voucher.UserID,
			PackageID:     voucher.PackageID,
			Code:          voucher.Code,
			Status:        store.VoucherUnused,
			DataLimitMB:   voucher.DataLimitMB,
			ValidityHours: voucher.ValidityHours,
			TransactionID: &txn.ID,
		}
		return nil
	})
	if err != nil {
		if IsIdempotencyConflict(err) {
			if prior, ok, rerr := s.replayByKey(ctx, idempotencyKey); rerr == nil && ok {
				return s.wifiResultFor(ctx, prior)
			}
		}
		return WiFiPurchaseResult{}, err
	}
	s.notify(userID, result.Transaction)
	return result, nil
}

func (s *Settlement) wifiResultFor(ctx context.Context, txn store.Transaction) (WiFiPurchaseResult, error) {
	voucher, err := s.voucherByTransaction(ctx, txn.ID)
	if err != nil {
		return WiFiPurchaseResult{}, err
	}
	return WiFiPurchaseResult{Transaction: txn, Voucher: voucher}, nil
}

// ActivateVoucher starts an UNUSED voucher's validity clock.
func (s *Settlement) ActivateVoucher(ctx context.Context, userID, voucherID string) (store.Voucher, error) {
	voucher, err := s.vouchers.GetByID(ctx, voucherID, userID)
	if err != nil {
		return store.Voucher{}, err
	}
	if voucher.Status != store.VoucherUnused {
		return store.Voucher{}, ErrVoucherNotActivatable
	}
	activatedAt := s.now().UTC()
	expiresAt := activatedAt.Add(time.Duration(voucher.ValidityHours) * time.Hour)
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.vouchers.Activate(ctx, tx, voucherID, activatedAt, expiresAt)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrVoucherNotActivatable
		}
		return nil
	})
	if err != nil {
		return store.Voucher{}, err
	}
	voucher.Status = store.VoucherActive
	voucher.ActivatedAt = &activatedAt
	voucher.ExpiresAt = &expiresAt
	return voucher, nil
}

// VoucherByID loads the caller's voucher and settles its status on the way
// out: an ACTIVE voucher past its validity window transitions to EXPIRED
// before it is returned.
func (s *Settlement) VoucherByID(ctx context.Context, userID, voucherID string) (store.Voucher, error) {
	voucher, err := s.vouchers.GetByID(ctx, voucherID, userID)
	if err != nil {
		return store.Voucher{}, err
	}
	if voucher.Status == store.VoucherActive && voucher.ExpiresAt != nil && !voucher.ExpiresAt.After(s.now()) {
		err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.vouchers.UpdateStatus(ctx, tx, voucher.ID, store.VoucherExpired)
		})
		if err != nil {
			return store.Voucher{}, err
		}
		voucher.Status = store.VoucherExpired
	}
	return voucher, nil
}

// PurchaseElectricity debits the wallet and credits the meter, either with
// kWh units or an unlimited-access window, in one transaction.
func (s *Settlement) PurchaseElectricity(ctx context.Context, userID, packageID, meterID string, idempotencyKey *string) (store.Transaction, error) {
	if prior, ok, err := s.replayByKey(ctx, idempotencyKey); err != nil {
		return store.Transaction{}, err
	} else if ok {
		return prior, nil
	}

	pkg, err := s.packages.GetElectricity(ctx, packageID)
	if err != nil || !pkg.IsActive {
		return store.Transaction{}, ErrPackageNotFound
	}
	meter, err := s.meters.GetByID(ctx, meterID)
	if err != nil {
		return store.Transaction{}, ErrMeterNotFound
	}
	if meter.UserID != userID {
		return store.Transaction{}, ErrMeterNotFound
	}
	if meter.Status != store.MeterOn {
		return store.Transaction{}, ErrMeterUnavailable
	}
	wallet, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return store.Transaction{}, err
	}
	if wallet.Status != "ACTIVE" {
		return store.Transaction{}, ErrWalletUnavailable
	}

	var result store.Transaction
	description := "Electricity: " + pkg.Name
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.ledger.ApplyWalletDeltaTx(ctx, tx, WalletDelta{
			WalletID:       wallet.ID,
			Type:           "PURCHASE",
			Amount:         -pkg.Price,
			Description:    &description,
			Metadata:       map[string]any{"product": "ELECTRICITY", "package_id": pkg.ID, "meter_id": meter.ID},
			IdempotencyKey: idempotencyKey,
			EnforceLimits:  true,
		})
		if err != nil {
			return err
		}
		if err := s.creditMeterTx(ctx, tx, meter.ID, pkg); err != nil {
			return err
		}
		if points := int(pkg.Price / loyaltyDivisorCents); points > 0 {
			if err := s.users.AddLoyaltyPoints(ctx, tx, userID, points); err != nil {
				return err
			}
		}
		result = txn
		return nil
	})
	if err != nil {
		if IsIdempotencyConflict(err) {
			if prior, ok, rerr := s.replayByKey(ctx, idempotencyKey); rerr == nil && ok {
				return prior, nil
			}
		}
		return store.Transaction{}, err
	}
	s.notify(userID, result)
	return result, nil
}

// creditMeterTx applies an electricity package to a locked meter row. UNITS
// packages add kWh, UNLIMITED packages extend the access window from
// whichever is later, now or the current expiry.
func (s *Settlement) creditMeterTx(ctx context.Context, tx store.Tx, meterID string, pkg store.ElectricityPackage) error {
	locked, err := s.meters.GetForUpdate(ctx, tx, meterID)
	if err != nil {
		return err
	}
	switch pkg.PackageType {
	case store.PackageUnits:
		if pkg.KWhAmount == nil {
			return ErrPackageNotFound
		}
		return s.meters.UpdateKWhBalance(ctx, tx, meterID, locked.KWhBalance.Add(*pkg.KWhAmount))
	case store.PackageUnlimited:
		if pkg.ValidityDays == nil {
			return ErrPackageNotFound
		}
		from := s.now().UTC()
		if locked.UnlimitedExpiresAt != nil && locked.UnlimitedExpiresAt.After(from) {
			from = *locked.UnlimitedExpiresAt
		}
		return s.meters.UpdateUnlimitedExpiry(ctx, tx, meterID, from.AddDate(0, 0, *pkg.ValidityDays))
	default:
		return ErrPackageNotFound
	}
}

// AgentRegistration is the boarding request for a verified customer.
type AgentRegistration struct {
	BusinessName string
	BusinessType string
	FloatDeposit int64
}

// RegisterAgent boards a KYC-verified customer as an agent, funding the
// initial float from their wallet in the same transaction.
func (s *Settlement) RegisterAgent(ctx context.Context, userID string, input AgentRegistration) (store.Agent, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return store.Agent{}, err
	}
	if user.KYCStatus != "VERIFIED" {
		return store.Agent{}, ErrKYCRequired
	}
	if _, err := s.agents.GetByUser(ctx, userID); err == nil {
		return store.Agent{}, ErrAlreadyAgent
	}
	if input.FloatDeposit < s.minFloatDeposit {
		return store.Agent{}, ErrFloatBelowMinimum
	}
	wallet, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return store.Agent{}, err
	}

	agentID := uuid.NewString()
	agentInput := store.AgentInput{
		ID:           agentID,
		UserID:       userID,
		AgentCode:    refs.AgentCode(),
		BusinessName: input.BusinessName,
		BusinessType: input.BusinessType,
		Status:       "ACTIVE",
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.agents.Create(ctx, tx, agentInput); err != nil {
			return err
		}
		return s.moveWalletToFloatTx(ctx, tx, wallet.ID, agentID, input.FloatDeposit, "Initial float deposit")
	})
	if err != nil {
		return store.Agent{}, err
	}
	return s.agents.GetByID(ctx, agentID)
}

// TopUpFloat moves funds from the agent's own wallet into their float.
func (s *Settlement) TopUpFloat(ctx context.Context, userID string, amount int64, idempotencyKey *string) (store.Transaction, error) {
	if amount <= 0 {
		return store.Transaction{}, ErrInvalidAmount
	}
	if prior, ok, err := s.replayByKey(ctx, idempotencyKey); err != nil {
		return store.Transaction{}, err
	} else if ok {
		return prior, nil
	}
	agent, err := s.agents.GetByUser(ctx, userID)
	if err != nil {
		return store.Transaction{}, ErrNotAgent
	}
	if agent.Status != "ACTIVE" {
		return store.Transaction{}, ErrAgentUnavailable
	}
	wallet, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return store.Transaction{}, err
	}

	var result store.Transaction
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		reference := refs.TransactionReference()
		description := "Float top-up from wallet"
		debit, err := s.ledger.ApplyWalletDeltaTx(ctx, tx, WalletDelta{
			WalletID:       wallet.ID,
			Type:           "TOPUP",
			Amount:         -amount,
			Reference:      reference,
			Description:    &description,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}
		_, err = s.ledger.ApplyAgentDeltaTx(ctx, tx, AgentDelta{
			AgentID:     agent.ID,
			Ledger:      store.LedgerFloat,
			Type:        "TOPUP",
			Amount:      amount,
			Reference:   reference + "-F",
			Description: &description,
		})
		if err != nil {
			return err
		}
		result = debit
		return nil
	})
	if err != nil {
		if IsIdempotencyConflict(err) {
			if prior, ok, rerr := s.replayByKey(ctx, idempotencyKey); rerr == nil && ok {
				return prior, nil
			}
		}
		return store.Transaction{}, err
	}
	s.notify(userID, result)
	return result, nil
}

func (s *Settlement) moveWalletToFloatTx(ctx context.Context, tx store.Tx, walletID, agentID string, amount int64, note string) error {
	reference := refs.TransactionReference()
	if _, err := s.ledger.ApplyWalletDeltaTx(ctx, tx, WalletDelta{
		WalletID:    walletID,
		Type:        "TOPUP",
		Amount:      -amount,
		Reference:   reference,
		Description: &note,
	}); err != nil {
		return err
	}
	_, err := s.ledger.ApplyAgentDeltaTx(ctx, tx, AgentDelta{
		AgentID:     agentID,
		Ledger:      store.LedgerFloat,
		Type:        "TOPUP",
		Amount:      amount,
		Reference:   reference + "-F",
		Description: &note,
	})
	return err
}

// AgentSale is a cash sale an agent performs on a customer's behalf. The
// meter is addressed by its printed number, which is what the customer can
// read out at the counter.
type AgentSale struct {
	CustomerPhone  string
	ProductType    string // WIFI or ELECTRICITY
	PackageID      string
	MeterNumber    *string
	CashReceived   int64
	IdempotencyKey *string
}

type AgentSaleResult struct {
	Sale       store.Transaction
	Commission store.Transaction
	Voucher    *store.Voucher
	Change     int64
}

// resolveSaleCustomer looks up the buyer by phone. An unknown phone is a
// walk-in: the sale creates the account on the spot, with a zero-balance
// wallet, so the product still lands on a real user row.
func (s *Settlement) resolveSaleCustomer(ctx context.Context, phone string) (store.User, bool, error) {
	customer, err := s.users.GetByPhone(ctx, phone)
	if err == nil {
		return customer, false, nil
	}
	if err != sql.ErrNoRows {
		return store.User{}, false, err
	}
	referral := refs.ReferralCode()
	return store.User{
		ID:           uuid.NewString(),
		PhoneNumber:  phone,
		Role:         "CUSTOMER",
		Status:       "ACTIVE",
		ReferralCode: &referral,
	}, true, nil
}

// ensureSaleCustomerTx re-checks the phone inside the sale's transaction
// before inserting. Two agents selling to the same walk-in at once both reach
// here; the second one picks up the row the first committed.
func (s *Settlement) ensureSaleCustomerTx(ctx context.Context, tx *sqlx.Tx, customer store.User) (store.User, error) {
	existing, err := s.users.GetByPhoneTx(ctx, tx, customer.PhoneNumber)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return store.User{}, err
	}
	if err := s.users.Create(ctx, tx, store.UserInput{
		ID:           customer.ID,
		PhoneNumber:  customer.PhoneNumber,
		Role:         customer.Role,
		ReferralCode: customer.ReferralCode,
	}); err != nil {
		return store.User{}, err
	}
	if err := s.wallets.Create(ctx, tx, uuid.NewString(), customer.ID, s.defaultDaily, s.defaultMonthly); err != nil {
		return store.User{}, err
	}
	return customer, nil
}

// ProcessAgentSale settles a cash sale: the agent's float pays for the
// product, the product is issued to the customer, and the commission, at the
// rate the agent's tier carries right now, lands on the commission ledger.
// Float debit, product issue and commission credit commit together.
func (s *Settlement) ProcessAgentSale(ctx context.Context, agentUserID string, sale AgentSale) (AgentSaleResult, error) {
	if prior, ok, err := s.replayByKey(ctx, sale.IdempotencyKey); err != nil {
		return AgentSaleResult{}, err
	} else if ok {
		return s.saleResultFor(ctx, prior)
	}

	agent, err := s.agents.GetByUser(ctx, agentUserID)
	if err != nil {
		return AgentSaleResult{}, ErrNotAgent
	}
	if agent.Status != "ACTIVE" {
		return AgentSaleResult{}, ErrAgentUnavailable
	}
	customer, newCustomer, err := s.resolveSaleCustomer(ctx, sale.CustomerPhone)
	if err != nil {
		return AgentSaleResult{}, err
	}

	var (
		price        int64
		productName  string
		wifiPkg      store.WiFiPackage
		elecPkg      store.ElectricityPackage
		meter        store.Meter
		issueVoucher bool
	)
	switch sale.ProductType {
	case "WIFI":
		wifiPkg, err = s.packages.GetWiFi(ctx, sale.PackageID)
		if err != nil || !wifiPkg.IsActive {
			return AgentSaleResult{}, ErrPackageNotFound
		}
		price, productName, issueVoucher = wifiPkg.Price, wifiPkg.Name, true
	case "ELECTRICITY":
		elecPkg, err = s.packages.GetElectricity(ctx, sale.PackageID)
		if err != nil || !elecPkg.IsActive {
			return AgentSaleResult{}, ErrPackageNotFound
		}
		if sale.MeterNumber == nil {
			return AgentSaleResult{}, ErrMeterRequired
		}
		meter, err = s.meters.GetByNumber(ctx, *sale.MeterNumber)
		if err != nil || meter.UserID != customer.ID {
			return AgentSaleResult{}, ErrMeterNotFound
		}
		if meter.Status != store.MeterOn {
			return AgentSaleResult{}, ErrMeterUnavailable
		}
		price, productName = elecPkg.Price, elecPkg.Name
	default:
		return AgentSaleResult{}, ErrInvalidProductType
	}
	if sale.CashReceived < price {
		return AgentSaleResult{}, ErrInsufficientCash
	}

	rate := TierRate(agent.Tier)
	commission := money.ApplyRate(price, rate)
	var result AgentSaleResult
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if newCustomer {
			resolved, err := s.ensureSaleCustomerTx(ctx, tx, customer)
			if err != nil {
				return err
			}
			customer = resolved
		}
		reference := refs.TransactionReference()
		description := "Sale: " + productName + " to " + sale.CustomerPhone
		saleTxn, err := s.ledger.ApplyAgentDeltaTx(ctx, tx, AgentDelta{
			AgentID:     agent.ID,
			Ledger:      store.LedgerFloat,
			Type:        "PURCHASE",
			Amount:      -price,
			Reference:   reference,
			Description: &description,
			Metadata: map[string]any{
				"product":       sale.ProductType,
				"package_id":    sale.PackageID,
				"customer_id":   customer.ID,
				"cash_received": sale.CashReceived,
			},
			IdempotencyKey: sale.IdempotencyKey,
		})
		if err != nil {
			return err
		}
		if issueVoucher {
			voucher := store.VoucherInput{
				ID:            uuid.NewString(),
				UserID:        customer.ID,
				PackageID:     wifiPkg.ID,
				Code:          refs.VoucherCode(),
				DataLimitMB:   wifiPkg.DataLimitMB,
				ValidityHours: wifiPkg.ValidityHours,
				TransactionID: saleTxn.ID,
			}
			if err := s.vouchers.Create(ctx, tx, voucher); err != nil {
				return err
			}
			result.Voucher = &store.Voucher{
				ID:            voucher.ID,
				UserID:        voucher.UserID,
				PackageID:     voucher.PackageID,
				Code:          voucher.Code,
				Status:        store.VoucherUnused,
				DataLimitMB:   voucher.DataLimitMB,
				ValidityHours: voucher.ValidityHours,
				TransactionID: &saleTxn.ID,
			}
		} else {
			if err := s.creditMeterTx(ctx, tx, meter.ID, elecPkg); err != nil {
				return err
			}
		}
		commissionNote := "Commission on " + reference
		commissionTxn, err := s.ledger.ApplyAgentDeltaTx(ctx, tx, AgentDelta{
			AgentID:     agent.ID,
			Ledger:      store.LedgerCommission,
			Type:        "COMMISSION",
			Amount:      commission,
			Reference:   reference + "-C",
			Description: &commissionNote,
			Metadata: map[string]any{
				"tier": agent.Tier,
				"rate": rate.String(),
			},
		})
		if err != nil {
			return err
		}
		if err := s.agents.UpdateSales(ctx, tx, agent.ID, agent.TotalSales+price, agent.MonthlySales+price); err != nil {
			return err
		}
		if points := int(price / loyaltyDivisorCents); points > 0 {
			if err := s.users.AddLoyaltyPoints(ctx, tx, customer.ID, points); err != nil {
				return err
			}
		}
		result.Sale = saleTxn
		result.Commission = commissionTxn
		result.Change = sale.CashReceived - price
		return nil
	})
	if err != nil {
		if IsIdempotencyConflict(err) {
			if prior, ok, rerr := s.replayByKey(ctx, sale.IdempotencyKey); rerr == nil && ok {
				return s.saleResultFor(ctx, prior)
			}
		}
		return AgentSaleResult{}, err
	}
	s.notify(agentUserID, result.Sale)
	s.notify(customer.ID, result.Sale)
	return result, nil
}

// saleResultFor rebuilds the full sale result from the committed rows, so a
// replayed request answers exactly like the first one: the commission leg
// comes back by its paired reference and the change from the recorded cash.
func (s *Settlement) saleResultFor(ctx context.Context, saleTxn store.Transaction) (AgentSaleResult, error) {
	result := AgentSaleResult{Sale: saleTxn}
	commission, err := s.transactions.GetByReference(ctx, saleTxn.Reference+"-C")
	if err != nil {
		return AgentSaleResult{}, err
	}
	result.Commission = commission
	var meta struct {
		CashReceived int64 `json:"cash_received"`
	}
	if err := json.Unmarshal([]byte(saleTxn.Metadata), &meta); err != nil {
		return AgentSaleResult{}, err
	}
	// Amount on the float debit is -price.
	result.Change = meta.CashReceived + saleTxn.Amount
	if voucher, err := s.voucherByTransaction(ctx, saleTxn.ID); err == nil {
		result.Voucher = &voucher
	}
	return result, nil
}

func (s *Settlement) voucherByTransaction(ctx context.Context, transactionID string) (store.Voucher, error) {
	return s.vouchers.GetByTransaction(ctx, transactionID)
}

// WithdrawCommission moves earned commission out. The WALLET method credits
// the agent's own wallet atomically with the commission debit; the BANK
// method records the payout only.
func (s *Settlement) WithdrawCommission(ctx context.Context, userID string, amount int64, method string, idempotencyKey *string) (store.Transaction, error) {
	if amount <= 0 {
		return store.Transaction{}, ErrInvalidAmount
	}
	if method != "WALLET" && method != "BANK" {
		return store.Transaction{}, ErrInvalidWithdrawMethod
	}
	if prior, ok, err := s.replayByKey(ctx, idempotencyKey); err != nil {
		return store.Transaction{}, err
	} else if ok {
		return prior, nil
	}
	agent, err := s.agents.GetByUser(ctx, userID)
	if err != nil {
		return store.Transaction{}, ErrNotAgent
	}
	if agent.Status != "ACTIVE" {
		return store.Transaction{}, ErrAgentUnavailable
	}

	var result store.Transaction
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Wallet row first, then agent row, the same order the float
		// top-up takes, so the concurrent pair cannot deadlock.
		var wallet store.Wallet
		if method == "WALLET" {
			var err error
			wallet, err = s.wallets.GetForUpdateByUser(ctx, tx, userID)
			if err != nil {
				return err
			}
		}
		reference := refs.TransactionReference()
		description := "Commission withdrawal to " + method
		debit, err := s.ledger.ApplyAgentDeltaTx(ctx, tx, AgentDelta{
			AgentID:        agent.ID,
			Ledger:         store.LedgerCommission,
			Type:           "WITHDRAWAL",
			Amount:         -amount,
			Reference:      reference,
			Description:    &description,
			Metadata:       map[string]any{"method": method},
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}
		if method == "WALLET" {
			creditNote := "Commission payout"
			if _, err := s.ledger.applyLockedWalletDelta(ctx, tx, wallet, WalletDelta{
				Type:        "COMMISSION",
				Amount:      amount,
				Reference:   reference + "-W",
				Description: &creditNote,
			}); err != nil {
				return err
			}
		}
		result = debit
		return nil
	})
	if err != nil {
		if IsIdempotencyConflict(err) {
			if prior, ok, rerr := s.replayByKey(ctx, idempotencyKey); rerr == nil && ok {
				return prior, nil
			}
		}
		return store.Transaction{}, err
	}
	s.notify(userID, result)
	return result, nil
}

// TransferFunds moves money between two customers, addressed by phone number.
func (s *Settlement) TransferFunds(ctx context.Context, senderUserID, recipientPhone string, amount int64, description *string, idempotencyKey *string) (TransferPair, error) {
	if prior, ok, err := s.replayByKey(ctx, idempotencyKey); err != nil {
		return TransferPair{}, err
	} else if ok {
		return TransferPair{Debit: prior}, nil
	}
	sender, err := s.users.GetByID(ctx, senderUserID)
	if err != nil {
		return TransferPair{}, err
	}
	recipient, err := s.users.GetByPhone(ctx, recipientPhone)
	if err != nil {
		return TransferPair{}, ErrRecipientNotFound
	}
	if recipient.ID == sender.ID {
		return TransferPair{}, ErrSelfTransfer
	}
	senderWallet, err := s.wallets.GetByUser(ctx, sender.ID)
	if err != nil {
		return TransferPair{}, err
	}
	recipientWallet, err := s.wallets.GetByUser(ctx, recipient.ID)
	if err != nil {
		return TransferPair{}, err
	}

	pair, err := s.ledger.TransferBetween(ctx, TransferInput{
		FromWalletID:    senderWallet.ID,
		ToWalletID:      recipientWallet.ID,
		Amount:          amount,
		FromDescription: description,
		ToDescription:   description,
		IdempotencyKey:  idempotencyKey,
		EnforceLimits:   true,
	})
	if err != nil {
		if IsIdempotencyConflict(err) {
			if prior, ok, rerr := s.replayByKey(ctx, idempotencyKey); rerr == nil && ok {
				return TransferPair{Debit: prior}, nil
			}
		}
		return TransferPair{}, err
	}
	s.notify(sender.ID, pair.Debit)
	s.notify(recipient.ID, pair.Credit)
	return pair, nil
}

// InitiateTopUp records a PENDING wallet top-up awaiting the payment
// gateway's callback. No balance moves yet.
func (s *Settlement) InitiateTopUp(ctx context.Context, userID string, amount int64, paymentMethod string, idempotencyKey *string) (store.Transaction, error) {
	if amount <= 0 {
		return store.Transaction{}, ErrInvalidAmount
	}
	if prior, ok, err := s.replayByKey(ctx, idempotencyKey); err != nil {
		return store.Transaction{}, err
	} else if ok {
		return prior, nil
	}
	wallet, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return store.Transaction{}, err
	}
	if wallet.Status != "ACTIVE" {
		return store.Transaction{}, ErrWalletUnavailable
	}

	input := store.TransactionInput{
		ID:             uuid.NewString(),
		WalletID:       &wallet.ID,
		Ledger:         store.LedgerWallet,
		Type:           "TOPUP",
		Amount:         amount,
		Reference:      refs.TransactionReference(),
		Status:         "PENDING",
		PaymentMethod:  &paymentMethod,
		IdempotencyKey: idempotencyKey,
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.transactions.Create(ctx, tx, input)
	})
	if err != nil {
		if IsIdempotencyConflict(err) {
			if prior, ok, rerr := s.replayByKey(ctx, idempotencyKey); rerr == nil && ok {
				return prior, nil
			}
		}
		return store.Transaction{}, err
	}
	return transactionFromInput(input), nil
}

// CompleteTopUp finalizes a PENDING top-up after the gateway confirms or
// rejects the payment. The guarded status transition makes duplicate
// callbacks harmless.
func (s *Settlement) CompleteTopUp(ctx context.Context, transactionID string, success bool) (store.Transaction, error) {
	txn, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return store.Transaction{}, ErrTransactionNotFound
	}
	if txn.Type != "TOPUP" || txn.WalletID == nil {
		return store.Transaction{}, ErrTransactionNotFound
	}
	if txn.Status != "PENDING" {
		return store.Transaction{}, ErrAlreadyProcessed
	}

	if !success {
		err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			affected, err := s.transactions.MarkFailed(ctx, tx, txn.ID)
			if err != nil {
				return err
			}
			if affected == 0 {
				return ErrAlreadyProcessed
			}
			return nil
		})
		if err != nil {
			return store.Transaction{}, err
		}
		txn.Status = "FAILED"
		return txn, nil
	}

	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.wallets.GetForUpdate(ctx, tx, *txn.WalletID)
		if err != nil {
			return err
		}
		newBalance := wallet.Balance + txn.Amount
		affected, err := s.transactions.Complete(ctx, tx, txn.ID, wallet.Balance, newBalance)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrAlreadyProcessed
		}
		if err := s.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
			return err
		}
		txn.Status = "COMPLETED"
		txn.BalanceBefore = wallet.Balance
		txn.BalanceAfter = newBalance
		return nil
	})
	if err != nil {
		return store.Transaction{}, err
	}
	wallet, werr := s.wallets.GetByID(ctx, *txn.WalletID)
	if werr == nil {
		s.notify(wallet.UserID, txn)
	}
	return txn, nil
}

// CreditReferralBonus pays the configured bonus into the referrer's wallet.
// The idempotency key is derived from the referred user, so a signup can never
// pay out twice no matter how often the caller retries.
func (s *Settlement) CreditReferralBonus(ctx context.Context, referrerUserID, referredUserID string) (store.Transaction, error) {
	if s.referralBonus <= 0 {
		return store.Transaction{}, nil
	}
	key := "referral-" + referredUserID
	if prior, ok, err := s.replayByKey(ctx, &key); err != nil {
		return store.Transaction{}, err
	} else if ok {
		return prior, nil
	}
	wallet, err := s.wallets.GetByUser(ctx, referrerUserID)
	if err != nil {
		return store.Transaction{}, err
	}
	description := "Referral bonus"
	txn, err := s.ledger.ApplyWalletDelta(ctx, WalletDelta{
		WalletID:       wallet.ID,
		Type:           "TOPUP",
		Amount:         s.referralBonus,
		Description:    &description,
		Metadata:       map[string]any{"referred_user_id": referredUserID},
		IdempotencyKey: &key,
	})
	if err != nil {
		if IsIdempotencyConflict(err) {
			if prior, ok, rerr := s.replayByKey(ctx, &key); rerr == nil && ok {
				return prior, nil
			}
		}
		return store.Transaction{}, err
	}
	s.notify(referrerUserID, txn)
	return txn, nil
}
