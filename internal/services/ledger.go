package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"lokalpay/internal/db"
	"lokalpay/internal/refs"
	"lokalpay/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store interfaces consumed by the ledger. Declared here, implemented by the
// concrete stores in internal/store.

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID string, dailyLimit, monthlyLimit int64) error
	GetByUser(ctx context.Context, userID string) (store.Wallet, error)
	GetByID(ctx context.Context, walletID string) (store.Wallet, error)
	GetForUpdate(ctx context.Context, tx store.Getter, walletID string) (store.Wallet, error)
	GetForUpdateByUser(ctx context.Context, tx store.Getter, userID string) (store.Wallet, error)
	UpdateBalance(ctx context.Context, tx store.Execer, walletID string, balance int64) error
	UpdateSpend(ctx context.Context, tx store.Execer, walletID string, dailySpent, monthlySpent int64, dailyPeriod, monthlyPeriod string) error
}

type AgentStore interface {
	Create(ctx context.Context, tx store.Execer, input store.AgentInput) error
	GetByUser(ctx context.Context, userID string) (store.Agent, error)
	GetByID(ctx context.Context, agentID string) (store.Agent, error)
	GetForUpdate(ctx context.Context, tx store.Getter, agentID string) (store.Agent, error)
	UpdateFloatBalance(ctx context.Context, tx store.Execer, agentID string, floatBalance int64) error
	UpdateCommissionBalance(ctx context.Context, tx store.Execer, agentID string, commissionBalance int64) error
	UpdateSales(ctx context.Context, tx store.Execer, agentID string, totalSales, monthlySales int64) error
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	GetByID(ctx context.Context, transactionID string) (store.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (store.Transaction, bool, error)
	GetByReference(ctx context.Context, reference string) (store.Transaction, error)
	Complete(ctx context.Context, tx store.Execer, transactionID string, balanceBefore, balanceAfter int64) (int64, error)
	MarkFailed(ctx context.Context, tx store.Execer, transactionID string) (int64, error)
}

// Ledger is the account mutator: the single component allowed to change a
// wallet, float, or commission balance. Every mutation locks the account row,
// recomputes the balance, and writes a transaction row carrying
// balance_before/balance_after in the same storage transaction.
type Ledger struct {
	txRunner     db.TxRunner
	wallets      WalletStore
	agents       AgentStore
	transactions TransactionStore
	now          func() time.Time
}

func NewLedger(txRunner db.TxRunner, wallets WalletStore, agents AgentStore, transactions TransactionStore) *Ledger {
	return &Ledger{
		txRunner:     txRunner,
		wallets:      wallets,
		agents:       agents,
		transactions: transactions,
		now:          time.Now,
	}
}

// WalletDelta describes a single signed mutation of a wallet balance.
type WalletDelta struct {
	WalletID       string
	Type           string
	Amount         int64
	Fee            int64
	Reference      string
	PaymentMethod  *string
	Description    *string
	Metadata       map[string]any
	IdempotencyKey *string
	// CountSpend adds the debit to the wallet's daily/monthly counters.
	CountSpend bool
	// EnforceLimits rejects the debit with ErrLimitExceeded when a counter
	// would pass its configured ceiling. Implies CountSpend.
	EnforceLimits bool
}

// ApplyWalletDelta runs the mutation in its own serializable transaction.
func (l *Ledger) ApplyWalletDelta(ctx context.Context, delta WalletDelta) (store.Transaction, error) {
	var txn store.Transaction
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		txn, err = l.ApplyWalletDeltaTx(ctx, tx, delta)
		return err
	})
	if err != nil {
		return store.Transaction{}, err
	}
	return txn, nil
}

// ApplyWalletDeltaTx is the transaction-scoped primitive, used by the
// settlement engine inside its own unit of work so a debit and the product
// credit it pays for commit together.
func (l *Ledger) ApplyWalletDeltaTx(ctx context.Context, tx store.Tx, delta WalletDelta) (store.Transaction, error) {
	if delta.Amount == 0 {
		return store.Transaction{}, ErrInvalidAmount
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, delta.WalletID)
	if err != nil {
		return store.Transaction{}, err
	}
	newBalance := wallet.Balance + delta.Amount
	if newBalance < 0 {
		return store.Transaction{}, ErrInsufficientFunds
	}
	if delta.Amount < 0 && (delta.CountSpend || delta.EnforceLimits) {
		if err := l.recordSpend(ctx, tx, wallet, -delta.Amount, delta.EnforceLimits); err != nil {
			return store.Transaction{}, err
		}
	}
	if err := l.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		return store.Transaction{}, err
	}
	input := store.TransactionInput{
		ID:             uuid.NewString(),
		WalletID:       &wallet.ID,
		Ledger:         store.LedgerWallet,
		Type:           delta.Type,
		Amount:         delta.Amount,
		Fee:            delta.Fee,
		BalanceBefore:  wallet.Balance,
		BalanceAfter:   newBalance,
		Reference:      delta.Reference,
		Status:         "COMPLETED",
		PaymentMethod:  delta.PaymentMethod,
		Description:    delta.Description,
		Metadata:       metadataJSON(delta.Metadata),
		IdempotencyKey: delta.IdempotencyKey,
	}
	if input.Reference == "" {
		input.Reference = refs.TransactionReference()
	}
	if err := l.transactions.Create(ctx, tx, input); err != nil {
		return store.Transaction{}, err
	}
	return transactionFromInput(input), nil
}

func (l *Ledger) recordSpend(ctx context.Context, tx store.Tx, wallet store.Wallet, amount int64, enforce bool) error {
	period := CurrentPeriod(l.now())
	dailySpent := EffectiveDailySpent(wallet, period) + amount
	monthlySpent := EffectiveMonthlySpent(wallet, period) + amount
	if enforce {
		if dailySpent > wallet.DailyLimit || monthlySpent > wallet.MonthlyLimit {
			return ErrLimitExceeded
		}
	}
	return l.wallets.UpdateSpend(ctx, tx, wallet.ID, dailySpent, monthlySpent, period.Daily, period.Monthly)
}

// AgentDelta mutates an agent's float or commission balance.
type AgentDelta struct {
	AgentID        string
	Ledger         string // store.LedgerFloat or store.LedgerCommission
	Type           string
	Amount         int64
	Reference      string
	Description    *string
	Metadata       map[string]any
	IdempotencyKey *string
}

func (l *Ledger) ApplyAgentDelta(ctx context.Context, delta AgentDelta) (store.Transaction, error) {
	var txn store.Transaction
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		txn, err = l.ApplyAgentDeltaTx(ctx, tx, delta)
		return err
	})
	if err != nil {
		return store.Transaction{}, err
	}
	return txn, nil
}

func (l *Ledger) ApplyAgentDeltaTx(ctx context.Context, tx store.Tx, delta AgentDelta) (store.Transaction, error) {
	if delta.Amount == 0 {
		return store.Transaction{}, ErrInvalidAmount
	}
	agent, err := l.agents.GetForUpdate(ctx, tx, delta.AgentID)
	if err != nil {
		return store.Transaction{}, err
	}
	var before int64
	switch delta.Ledger {
	case store.LedgerFloat:
		before = agent.FloatBalance
	case store.LedgerCommission:
		before = agent.CommissionBalance
	default:
		return store.Transaction{}, errors.New("unknown agent ledger: " + delta.Ledger)
	}
	after := before + delta.Amount
	if after < 0 {
		if delta.Ledger == store.LedgerFloat {
			return store.Transaction{}, ErrInsufficientFloat
		}
		return store.Transaction{}, ErrInsufficientCommission
	}
	if delta.Ledger == store.LedgerFloat {
		err = l.agents.UpdateFloatBalance(ctx, tx, agent.ID, after)
	} else {
		err = l.agents.UpdateCommissionBalance(ctx, tx, agent.ID, after)
	}
	if err != nil {
		return store.Transaction{}, err
	}
	input := store.TransactionInput{
		ID:             uuid.NewString(),
		AgentID:        &agent.ID,
		Ledger:         delta.Ledger,
		Type:           delta.Type,
		Amount:         delta.Amount,
		BalanceBefore:  before,
		BalanceAfter:   after,
		Reference:      delta.Reference,
		Status:         "COMPLETED",
		Description:    delta.Description,
		Metadata:       metadataJSON(delta.Metadata),
		IdempotencyKey: delta.IdempotencyKey,
	}
	if input.Reference == "" {
		input.Reference = refs.TransactionReference()
	}
	if err := l.transactions.Create(ctx, tx, input); err != nil {
		return store.Transaction{}, err
	}
	return transactionFromInput(input), nil
}

// TransferInput moves amount between two wallets as one unit of work.
type TransferInput struct {
	FromWalletID    string
	ToWalletID      string
	Amount          int64
	FromDescription *string
	ToDescription   *string
	IdempotencyKey  *string
	EnforceLimits   bool
}

type TransferPair struct {
	Debit  store.Transaction
	Credit store.Transaction
}

// TransferBetween debits one wallet and credits the other under a single
// transaction, locking both rows in lexicographic id order so two opposite
// transfers cannot deadlock. The credit leg's reference is the debit leg's
// with an "-R" suffix for reconciliation.
func (l *Ledger) TransferBetween(ctx context.Context, input TransferInput) (TransferPair, error) {
	if input.Amount <= 0 {
		return TransferPair{}, ErrInvalidAmount
	}
	if input.FromWalletID == input.ToWalletID {
		return TransferPair{}, ErrSelfTransfer
	}
	var pair TransferPair
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		from, to, err := l.lockTwoWallets(ctx, tx, input.FromWalletID, input.ToWalletID)
		if err != nil {
			return err
		}
		if from.Status != "ACTIVE" {
			return ErrWalletUnavailable
		}
		if to.Status != "ACTIVE" {
			return ErrRecipientWalletUnavailable
		}
		reference := refs.TransactionReference()
		method := "WALLET"
		pair.Debit, err = l.applyLockedWalletDelta(ctx, tx, from, WalletDelta{
			Type:           "TRANSFER",
			Amount:         -input.Amount,
			Reference:      reference,
			PaymentMethod:  &method,
			Description:    input.FromDescription,
			IdempotencyKey: input.IdempotencyKey,
			CountSpend:     true,
			EnforceLimits:  input.EnforceLimits,
		})
		if err != nil {
			return err
		}
		pair.Credit, err = l.applyLockedWalletDelta(ctx, tx, to, WalletDelta{
			Type:          "TRANSFER",
			Amount:        input.Amount,
			Reference:     reference + "-R",
			PaymentMethod: &method,
			Description:   input.ToDescription,
		})
		return err
	})
	if err != nil {
		return TransferPair{}, err
	}
	return pair, nil
}

// applyLockedWalletDelta is ApplyWalletDeltaTx for a row the caller already
// holds the lock on.
func (l *Ledger) applyLockedWalletDelta(ctx context.Context, tx store.Tx, wallet store.Wallet, delta WalletDelta) (store.Transaction, error) {
	newBalance := wallet.Balance + delta.Amount
	if newBalance < 0 {
		return store.Transaction{}, ErrInsufficientFunds
	}
	if delta.Amount < 0 && (delta.CountSpend || delta.EnforceLimits) {
		if err := l.recordSpend(ctx, tx, wallet, -delta.Amount, delta.EnforceLimits); err != nil {
			return store.Transaction{}, err
		}
	}
	if err := l.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		return store.Transaction{}, err
	}
	input := store.TransactionInput{
		ID:             uuid.NewString(),
		WalletID:       &wallet.ID,
		Ledger:         store.LedgerWallet,
		Type:           delta.Type,
		Amount:         delta.Amount,
		Fee:            delta.Fee,
		BalanceBefore:  wallet.Balance,
		BalanceAfter:   newBalance,
		Reference:      delta.Reference,
		Status:         "COMPLETED",
		PaymentMethod:  delta.PaymentMethod,
		Description:    delta.Description,
		Metadata:       metadataJSON(delta.Metadata),
		IdempotencyKey: delta.IdempotencyKey,
	}
	if err := l.transactions.Create(ctx, tx, input); err != nil {
		return store.Transaction{}, err
	}
	return transactionFromInput(input), nil
}

func (l *Ledger) lockTwoWallets(ctx context.Context, tx store.Tx, firstID, secondID string) (store.Wallet, store.Wallet, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	left, err := l.wallets.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return store.Wallet{}, store.Wallet{}, err
	}
	right, err := l.wallets.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return store.Wallet{}, store.Wallet{}, err
	}
	if firstID == leftID {
		return left, right, nil
	}
	return right, left, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}

func metadataJSON(metadata map[string]any) string {
	if len(metadata) == 0 {
		return "{}"
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(payload)
}

func transactionFromInput(input store.TransactionInput) store.Transaction {
	return store.Transaction{
		ID:             input.ID,
		WalletID:       input.WalletID,
		AgentID:        input.AgentID,
		Ledger:         input.Ledger,
		Type:           input.Type,
		Amount:         input.Amount,
		Fee:            input.Fee,
		BalanceBefore:  input.BalanceBefore,
		BalanceAfter:   input.BalanceAfter,
		Reference:      input.Reference,
		Status:         input.Status,
		PaymentMethod:  input.PaymentMethod,
		Description:    input.Description,
		Metadata:       input.Metadata,
		IdempotencyKey: input.IdempotencyKey,
	}
}

// IsIdempotencyConflict reports whether err is the unique violation raised
// when two requests race on the same idempotency key. The loser re-fetches
// the winner's transaction and returns it unchanged.
func IsIdempotencyConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == "transactions_idempotency_key_key"
}
