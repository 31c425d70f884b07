package store

import (
	"context"
	"time"
)

// Voucher statuses.
const (
	VoucherUnused   = "UNUSED"
	VoucherActive   = "ACTIVE"
	VoucherExpired  = "EXPIRED"
	VoucherDepleted = "DEPLETED"
)

type VoucherStore struct {
	db DB
}

type Voucher struct {
	ID            string     `db:"id"`
	UserID        string     `db:"user_id"`
	PackageID     string     `db:"package_id"`
	Code          string     `db:"code"`
	Status        string     `db:"status"`
	DataLimitMB   int        `db:"data_limit_mb"`
	DataUsedMB    int        `db:"data_used_mb"`
	ValidityHours int        `db:"validity_hours"`
	ActivatedAt   *time.Time `db:"activated_at"`
	ExpiresAt     *time.Time `db:"expires_at"`
	TransactionID *string    `db:"transaction_id"`
	CreatedAt     time.Time  `db:"created_at"`
}

type VoucherInput struct {
	ID            string
	UserID        string
	PackageID     string
	Code          string
	DataLimitMB   int
	ValidityHours int
	TransactionID string
}

func NewVoucherStore(db DB) *VoucherStore {
	return &VoucherStore{db: db}
}

// Create inserts an UNUSED voucher linked to the transaction that paid for it.
// Always called inside the same transaction as the wallet/float debit.
func (s *VoucherStore) Create(ctx context.Context, tx Execer, input VoucherInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wifi_vouchers (id, user_id, package_id, code, status, data_limit_mb, validity_hours, transaction_id)
		VALUES ($1, $2, $3, $4, 'UNUSED', $5, $6, $7)
	`, input.ID, input.UserID, input.PackageID, input.Code, input.DataLimitMB, input.ValidityHours, input.TransactionID)
	return err
}

func (s *VoucherStore) GetByID(ctx context.Context, voucherID, userID string) (Voucher, error) {
	var row Voucher
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, package_id, code, status, data_limit_mb, data_used_mb,
		       validity_hours, activated_at, expires_at, transaction_id, created_at
		FROM wifi_vouchers
		WHERE id = $1 AND user_id = $2
	`, voucherID, userID)
	if err != nil {
		return Voucher{}, err
	}
	return row, nil
}

func (s *VoucherStore) GetByTransaction(ctx context.Context, transactionID string) (Voucher, error) {
	var row Voucher
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, package_id, code, status, data_limit_mb, data_used_mb,
		       validity_hours, activated_at, expires_at, transaction_id, created_at
		FROM wifi_vouchers
		WHERE transaction_id = $1
	`, transactionID)
	if err != nil {
		return Voucher{}, err
	}
	return row, nil
}

func (s *VoucherStore) ListByUser(ctx context.Context, userID, status string) ([]Voucher, error) {
	var rows []Voucher
	query := `
		SELECT id, user_id, package_id, code, status, data_limit_mb, data_used_mb,
		       validity_hours, activated_at, expires_at, transaction_id, created_at
		FROM wifi_vouchers
		WHERE user_id = $1
	`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// Activate transitions UNUSED -> ACTIVE and stamps the validity window.
// Returns rows affected so the caller can detect a voucher that was already
// activated concurrently.
func (s *VoucherStore) Activate(ctx context.Context, tx Execer, voucherID string, activatedAt, expiresAt time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE wifi_vouchers
		SET status = 'ACTIVE', activated_at = $1, expires_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'UNUSED'
	`, activatedAt, expiresAt, voucherID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *VoucherStore) UpdateStatus(ctx context.Context, tx Execer, voucherID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wifi_vouchers
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, voucherID)
	return err
}
