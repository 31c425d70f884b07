package store

import (
	"context"
	"time"
)

type UserStore struct {
	db DB
}

type User struct {
	ID            string    `db:"id"`
	PhoneNumber   string    `db:"phone_number"`
	FirstName     *string   `db:"first_name"`
	LastName      *string   `db:"last_name"`
	PINHash       *string   `db:"pin_hash"`
	Role          string    `db:"role"`
	Status        string    `db:"status"`
	KYCStatus     string    `db:"kyc_status"`
	ReferralCode  *string   `db:"referral_code"`
	ReferredBy    *string   `db:"referred_by"`
	LoyaltyPoints int       `db:"loyalty_points"`
	CreatedAt     time.Time `db:"created_at"`
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

type UserInput struct {
	ID           string
	PhoneNumber  string
	FirstName    *string
	LastName     *string
	PINHash      *string
	Role         string
	ReferralCode *string
	ReferredBy   *string
}

func (s *UserStore) Create(ctx context.Context, tx Execer, input UserInput) error {
	query := `
		INSERT INTO users (id, phone_number, first_name, last_name, pin_hash, role, referral_code, referred_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.PhoneNumber, input.FirstName, input.LastName,
		input.PINHash, input.Role, input.ReferralCode, input.ReferredBy,
	)
	return err
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (User, error) {
	var row User
	err := s.db.GetContext(ctx, &row, `
		SELECT id, phone_number, first_name, last_name, pin_hash, role, status, kyc_status,
		       referral_code, referred_by, loyalty_points, created_at
		FROM users
		WHERE id = $1
	`, userID)
	if err != nil {
		return User{}, err
	}
	return row, nil
}

func (s *UserStore) GetByPhone(ctx context.Context, phoneNumber string) (User, error) {
	var row User
	err := s.db.GetContext(ctx, &row, `
		SELECT id, phone_number, first_name, last_name, pin_hash, role, status, kyc_status,
		       referral_code, referred_by, loyalty_points, created_at
		FROM users
		WHERE phone_number = $1
	`, phoneNumber)
	if err != nil {
		return User{}, err
	}
	return row, nil
}

// GetByPhoneTx resolves a user inside a transaction, used by the agent sale
// find-or-create path.
func (s *UserStore) GetByPhoneTx(ctx context.Context, tx Getter, phoneNumber string) (User, error) {
	var row User
	err := tx.GetContext(ctx, &row, `
		SELECT id, phone_number, first_name, last_name, pin_hash, role, status, kyc_status,
		       referral_code, referred_by, loyalty_points, created_at
		FROM users
		WHERE phone_number = $1
	`, phoneNumber)
	if err != nil {
		return User{}, err
	}
	return row, nil
}

func (s *UserStore) AddLoyaltyPoints(ctx context.Context, tx Execer, userID string, points int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET loyalty_points = loyalty_points + $1, updated_at = NOW()
		WHERE id = $2
	`, points, userID)
	return err
}

func (s *UserStore) GetByReferralCode(ctx context.Context, referralCode string) (User, error) {
	var row User
	err := s.db.GetContext(ctx, &row, `
		SELECT id, phone_number, first_name, last_name, pin_hash, role, status, kyc_status,
		       referral_code, referred_by, loyalty_points, created_at
		FROM users
		WHERE referral_code = $1
	`, referralCode)
	if err != nil {
		return User{}, err
	}
	return row, nil
}

// GetRole backs the role-gated routes.
func (s *UserStore) GetRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1`, userID)
	return role, err
}

func (s *UserStore) SetRole(ctx context.Context, tx Execer, userID, role string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET role = $1, updated_at = NOW()
		WHERE id = $2
	`, role, userID)
	return err
}

func (s *UserStore) SetKYCStatus(ctx context.Context, tx Execer, userID, kycStatus string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET kyc_status = $1, updated_at = NOW()
		WHERE id = $2
	`, kycStatus, userID)
	return err
}
