package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Meter statuses.
const (
	MeterOn       = "ON"
	MeterOff      = "OFF"
	MeterTampered = "TAMPERED"
	MeterOffline  = "OFFLINE"
)

type MeterStore struct {
	db DB
}

type Meter struct {
	ID                 string          `db:"id"`
	MeterNumber        string          `db:"meter_number"`
	UserID             string          `db:"user_id"`
	Address            *string         `db:"address"`
	KWhBalance         decimal.Decimal `db:"kwh_balance"`
	UnlimitedExpiresAt *time.Time      `db:"unlimited_expires_at"`
	Status             string          `db:"status"`
	CreatedAt          time.Time       `db:"created_at"`
}

func NewMeterStore(db DB) *MeterStore {
	return &MeterStore{db: db}
}

func (s *MeterStore) Create(ctx context.Context, tx Execer, id, meterNumber, userID string, address *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meters (id, meter_number, user_id, address)
		VALUES ($1, $2, $3, $4)
	`, id, meterNumber, userID, address)
	return err
}

func (s *MeterStore) GetByID(ctx context.Context, meterID string) (Meter, error) {
	var row Meter
	err := s.db.GetContext(ctx, &row, `
		SELECT id, meter_number, user_id, address, kwh_balance, unlimited_expires_at, status, created_at
		FROM meters
		WHERE id = $1
	`, meterID)
	if err != nil {
		return Meter{}, err
	}
	return row, nil
}

func (s *MeterStore) GetByNumber(ctx context.Context, meterNumber string) (Meter, error) {
	var row Meter
	err := s.db.GetContext(ctx, &row, `
		SELECT id, meter_number, user_id, address, kwh_balance, unlimited_expires_at, status, created_at
		FROM meters
		WHERE meter_number = $1
	`, meterNumber)
	if err != nil {
		return Meter{}, err
	}
	return row, nil
}

// GetForUpdate locks the meter row so concurrent purchases for the same meter
// serialize their kWh credit.
func (s *MeterStore) GetForUpdate(ctx context.Context, tx Getter, meterID string) (Meter, error) {
	var row Meter
	err := tx.GetContext(ctx, &row, `
		SELECT id, meter_number, user_id, address, kwh_balance, unlimited_expires_at, status
		FROM meters
		WHERE id = $1
		FOR UPDATE
	`, meterID)
	if err != nil {
		return Meter{}, err
	}
	return row, nil
}

func (s *MeterStore) ListByUser(ctx context.Context, userID string) ([]Meter, error) {
	var rows []Meter
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, meter_number, user_id, address, kwh_balance, unlimited_expires_at, status, created_at
		FROM meters
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *MeterStore) UpdateKWhBalance(ctx context.Context, tx Execer, meterID string, kwhBalance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE meters
		SET kwh_balance = $1, updated_at = NOW()
		WHERE id = $2
	`, kwhBalance, meterID)
	return err
}

func (s *MeterStore) UpdateUnlimitedExpiry(ctx context.Context, tx Execer, meterID string, expiresAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE meters
		SET unlimited_expires_at = $1, updated_at = NOW()
		WHERE id = $2
	`, expiresAt, meterID)
	return err
}
