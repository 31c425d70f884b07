package store

import (
	"context"
	"time"
)

type WalletStore struct {
	db DB
}

type Wallet struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	Balance       int64     `db:"balance"`
	Currency      string    `db:"currency"`
	Status        string    `db:"status"`
	DailyLimit    int64     `db:"daily_limit"`
	MonthlyLimit  int64     `db:"monthly_limit"`
	DailySpent    int64     `db:"daily_spent"`
	MonthlySpent  int64     `db:"monthly_spent"`
	DailyPeriod   string    `db:"daily_period"`
	MonthlyPeriod string    `db:"monthly_period"`
	CreatedAt     time.Time `db:"created_at"`
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) Create(ctx context.Context, tx Execer, id, userID string, dailyLimit, monthlyLimit int64) error {
	query := `
		INSERT INTO wallets (id, user_id, daily_limit, monthly_limit)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.ExecContext(ctx, query, id, userID, dailyLimit, monthlyLimit)
	return err
}

func (s *WalletStore) GetByUser(ctx context.Context, userID string) (Wallet, error) {
	var row Wallet
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, balance, currency, status, daily_limit, monthly_limit,
		       daily_spent, monthly_spent, daily_period, monthly_period, created_at
		FROM wallets
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) GetByID(ctx context.Context, walletID string) (Wallet, error) {
	var row Wallet
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, balance, currency, status, daily_limit, monthly_limit,
		       daily_spent, monthly_spent, daily_period, monthly_period, created_at
		FROM wallets
		WHERE id = $1
	`, walletID)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

// GetForUpdate locks the wallet row for the remainder of the transaction. All
// balance mutations read through here so concurrent writers serialize.
func (s *WalletStore) GetForUpdate(ctx context.Context, tx Getter, walletID string) (Wallet, error) {
	var row Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, balance, currency, status, daily_limit, monthly_limit,
		       daily_spent, monthly_spent, daily_period, monthly_period
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`, walletID)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) GetForUpdateByUser(ctx context.Context, tx Getter, userID string) (Wallet, error) {
	var row Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, balance, currency, status, daily_limit, monthly_limit,
		       daily_spent, monthly_spent, daily_period, monthly_period
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) UpdateBalance(ctx context.Context, tx Execer, walletID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, walletID)
	return err
}

// UpdateSpend overwrites the spend counters together with the billing-period
// keys they belong to. The caller recomputes both under the row lock.
func (s *WalletStore) UpdateSpend(ctx context.Context, tx Execer, walletID string, dailySpent, monthlySpent int64, dailyPeriod, monthlyPeriod string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET daily_spent = $1, monthly_spent = $2, daily_period = $3, monthly_period = $4, updated_at = NOW()
		WHERE id = $5
	`, dailySpent, monthlySpent, dailyPeriod, monthlyPeriod, walletID)
	return err
}

func (s *WalletStore) UpdateStatus(ctx context.Context, tx Execer, walletID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, walletID)
	return err
}
