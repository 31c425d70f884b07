package store

import (
	"context"
	"database/sql"
	"time"
)

// Ledger names for the balance a transaction row snapshots.
const (
	LedgerWallet     = "WALLET"
	LedgerFloat      = "FLOAT"
	LedgerCommission = "COMMISSION"
)

type TransactionStore struct {
	db DB
}

type Transaction struct {
	ID             string    `db:"id"`
	WalletID       *string   `db:"wallet_id"`
	AgentID        *string   `db:"agent_id"`
	Ledger         string    `db:"ledger"`
	Type           string    `db:"type"`
	Amount         int64     `db:"amount"`
	Fee            int64     `db:"fee"`
	BalanceBefore  int64     `db:"balance_before"`
	BalanceAfter   int64     `db:"balance_after"`
	Reference      string    `db:"reference"`
	Status         string    `db:"status"`
	PaymentMethod  *string   `db:"payment_method"`
	Description    *string   `db:"description"`
	Metadata       string    `db:"metadata"`
	IdempotencyKey *string   `db:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at"`
}

type TransactionInput struct {
	ID             string
	WalletID       *string
	AgentID        *string
	Ledger         string
	Type           string
	Amount         int64
	Fee            int64
	BalanceBefore  int64
	BalanceAfter   int64
	Reference      string
	Status         string
	PaymentMethod  *string
	Description    *string
	Metadata       string
	IdempotencyKey *string
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	metadata := input.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	query := `
		INSERT INTO transactions (id, wallet_id, agent_id, ledger, type, amount, fee,
			balance_before, balance_after, reference, status, payment_method,
			description, metadata, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.WalletID, input.AgentID, input.Ledger, input.Type,
		input.Amount, input.Fee, input.BalanceBefore, input.BalanceAfter,
		input.Reference, input.Status, input.PaymentMethod,
		input.Description, metadata, input.IdempotencyKey,
	)
	return err
}

func (s *TransactionStore) GetByID(ctx context.Context, transactionID string) (Transaction, error) {
	var row Transaction
	err := s.db.GetContext(ctx, &row, `
		SELECT id, wallet_id, agent_id, ledger, type, amount, fee, balance_before, balance_after,
		       reference, status, payment_method, description, metadata, idempotency_key, created_at
		FROM transactions
		WHERE id = $1
	`, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	return row, nil
}

// GetByIdempotencyKey returns the prior transaction for a key, or ok=false if
// none exists. Callers short-circuit replays with the returned row.
func (s *TransactionStore) GetByIdempotencyKey(ctx context.Context, key string) (Transaction, bool, error) {
	var row Transaction
	err := s.db.GetContext(ctx, &row, `
		SELECT id, wallet_id, agent_id, ledger, type, amount, fee, balance_before, balance_after,
		       reference, status, payment_method, description, metadata, idempotency_key, created_at
		FROM transactions
		WHERE idempotency_key = $1
	`, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return row, true, nil
}

// GetByReference resolves a transaction by its unique reference. Replay paths
// use it to recover the paired legs of a settled operation.
func (s *TransactionStore) GetByReference(ctx context.Context, reference string) (Transaction, error) {
	var row Transaction
	err := s.db.GetContext(ctx, &row, `
		SELECT id, wallet_id, agent_id, ledger, type, amount, fee, balance_before, balance_after,
		       reference, status, payment_method, description, metadata, idempotency_key, created_at
		FROM transactions
		WHERE reference = $1
	`, reference)
	if err != nil {
		return Transaction{}, err
	}
	return row, nil
}

// Complete finalizes a PENDING transaction with its settled balance snapshots.
// Only the PENDING -> COMPLETED/FAILED transition touches a committed row.
func (s *TransactionStore) Complete(ctx context.Context, tx Execer, transactionID string, balanceBefore, balanceAfter int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'COMPLETED', balance_before = $1, balance_after = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'PENDING'
	`, balanceBefore, balanceAfter, transactionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) MarkFailed(ctx context.Context, tx Execer, transactionID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'FAILED', updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, transactionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) ListByWallet(ctx context.Context, walletID, txType string, limit, offset int) ([]Transaction, error) {
	var rows []Transaction
	query := `
		SELECT id, wallet_id, agent_id, ledger, type, amount, fee, balance_before, balance_after,
		       reference, status, payment_method, description, metadata, idempotency_key, created_at
		FROM transactions
		WHERE wallet_id = $1
	`
	args := []any{walletID}
	if txType != "" {
		query += ` AND type = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		args = append(args, txType, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) CountByWallet(ctx context.Context, walletID, txType string) (int, error) {
	var count int
	if txType != "" {
		err := s.db.GetContext(ctx, &count, `
			SELECT COUNT(1) FROM transactions WHERE wallet_id = $1 AND type = $2
		`, walletID, txType)
		return count, err
	}
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM transactions WHERE wallet_id = $1
	`, walletID)
	return count, err
}

// ListByAgent pages an agent's transactions, optionally narrowed to one
// ledger. Filtering happens before LIMIT so pages stay full.
func (s *TransactionStore) ListByAgent(ctx context.Context, agentID, ledger string, limit, offset int) ([]Transaction, error) {
	var rows []Transaction
	query := `
		SELECT id, wallet_id, agent_id, ledger, type, amount, fee, balance_before, balance_after,
		       reference, status, payment_method, description, metadata, idempotency_key, created_at
		FROM transactions
		WHERE agent_id = $1
	`
	args := []any{agentID}
	if ledger != "" {
		query += ` AND ledger = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		args = append(args, ledger, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListAll(ctx context.Context, limit, offset int) ([]Transaction, error) {
	var rows []Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, wallet_id, agent_id, ledger, type, amount, fee, balance_before, balance_after,
		       reference, status, payment_method, description, metadata, idempotency_key, created_at
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
