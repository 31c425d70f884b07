package store

import (
	"context"

	"github.com/shopspring/decimal"
)

// Electricity package kinds.
const (
	PackageUnits     = "UNITS"
	PackageUnlimited = "UNLIMITED"
)

type PackageStore struct {
	db DB
}

type WiFiPackage struct {
	ID            string  `db:"id"`
	Name          string  `db:"name"`
	Description   *string `db:"description"`
	Price         int64   `db:"price"`
	DataLimitMB   int     `db:"data_limit_mb"`
	ValidityHours int     `db:"validity_hours"`
	IsActive      bool    `db:"is_active"`
	SortOrder     int     `db:"sort_order"`
}

type ElectricityPackage struct {
	ID           string           `db:"id"`
	Name         string           `db:"name"`
	Description  *string          `db:"description"`
	Price        int64            `db:"price"`
	PackageType  string           `db:"package_type"`
	KWhAmount    *decimal.Decimal `db:"kwh_amount"`
	ValidityDays *int             `db:"validity_days"`
	IsActive     bool             `db:"is_active"`
	SortOrder    int              `db:"sort_order"`
}

func NewPackageStore(db DB) *PackageStore {
	return &PackageStore{db: db}
}

func (s *PackageStore) GetWiFi(ctx context.Context, packageID string) (WiFiPackage, error) {
	var row WiFiPackage
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, description, price, data_limit_mb, validity_hours, is_active, sort_order
		FROM wifi_packages
		WHERE id = $1
	`, packageID)
	if err != nil {
		return WiFiPackage{}, err
	}
	return row, nil
}

func (s *PackageStore) ListActiveWiFi(ctx context.Context) ([]WiFiPackage, error) {
	var rows []WiFiPackage
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, description, price, data_limit_mb, validity_hours, is_active, sort_order
		FROM wifi_packages
		WHERE is_active = TRUE
		ORDER BY sort_order, price
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *PackageStore) GetElectricity(ctx context.Context, packageID string) (ElectricityPackage, error) {
	var row ElectricityPackage
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, description, price, package_type, kwh_amount, validity_days, is_active, sort_order
		FROM electricity_packages
		WHERE id = $1
	`, packageID)
	if err != nil {
		return ElectricityPackage{}, err
	}
	return row, nil
}

func (s *PackageStore) ListActiveElectricity(ctx context.Context) ([]ElectricityPackage, error) {
	var rows []ElectricityPackage
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, description, price, package_type, kwh_amount, validity_days, is_active, sort_order
		FROM electricity_packages
		WHERE is_active = TRUE
		ORDER BY sort_order, price
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type WiFiPackageInput struct {
	ID            string
	Name          string
	Description   *string
	Price         int64
	DataLimitMB   int
	ValidityHours int
	SortOrder     int
}

func (s *PackageStore) CreateWiFi(ctx context.Context, tx Execer, input WiFiPackageInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wifi_packages (id, name, description, price, data_limit_mb, validity_hours, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, input.ID, input.Name, input.Description, input.Price, input.DataLimitMB, input.ValidityHours, input.SortOrder)
	return err
}

type ElectricityPackageInput struct {
	ID           string
	Name         string
	Description  *string
	Price        int64
	PackageType  string
	KWhAmount    *decimal.Decimal
	ValidityDays *int
	SortOrder    int
}

func (s *PackageStore) CreateElectricity(ctx context.Context, tx Execer, input ElectricityPackageInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO electricity_packages (id, name, description, price, package_type, kwh_amount, validity_days, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, input.ID, input.Name, input.Description, input.Price, input.PackageType, input.KWhAmount, input.ValidityDays, input.SortOrder)
	return err
}

func (s *PackageStore) SetWiFiActive(ctx context.Context, tx Execer, packageID string, active bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wifi_packages SET is_active = $1, updated_at = NOW() WHERE id = $2
	`, active, packageID)
	return err
}

func (s *PackageStore) SetElectricityActive(ctx context.Context, tx Execer, packageID string, active bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE electricity_packages SET is_active = $1, updated_at = NOW() WHERE id = $2
	`, active, packageID)
	return err
}
