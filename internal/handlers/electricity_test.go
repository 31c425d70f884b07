package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lokalpay/internal/services"
	"lokalpay/internal/store"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func TestListElectricityPackagesShapesByType(t *testing.T) {
	kwh := decimal.New(105, -1)
	days := 30
	handler := newTestHandler(testDeps{
		packages: stubPackageStore{
			listActiveElectricityFn: func(_ context.Context) ([]store.ElectricityPackage, error) {
				return []store.ElectricityPackage{
					{ID: "e-1", Name: "10.5 kWh", Price: 5000, PackageType: "UNITS", KWhAmount: &kwh},
					{ID: "e-2", Name: "Monthly Unlimited", Price: 45000, PackageType: "UNLIMITED", ValidityDays: &days},
				}, nil
			},
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/electricity/packages", nil)
	rr := httptest.NewRecorder()
	handler.ListElectricityPackages(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp[0]["kwh_amount"] != "10.5" {
		t.Errorf("expected kwh_amount 10.5, got %v", resp[0]["kwh_amount"])
	}
	if _, present := resp[0]["validity_days"]; present {
		t.Error("units package should not carry validity_days")
	}
	if resp[1]["validity_days"] != float64(30) {
		t.Errorf("expected validity_days 30, got %v", resp[1]["validity_days"])
	}
	if _, present := resp[1]["kwh_amount"]; present {
		t.Error("unlimited package should not carry kwh_amount")
	}
}

func TestPurchaseElectricityRequiresMeter(t *testing.T) {
	handler := newTestHandler(testDeps{})
	req := requestWithToken(t, http.MethodPost, "/electricity/purchase", "u-1", []byte(`{"package_id":"e-1"}`))
	rr := httptest.NewRecorder()
	withAuth(handler.PurchaseElectricity).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPurchaseElectricityForeignMeter(t *testing.T) {
	handler := newTestHandler(testDeps{
		settlement: stubSettlement{
			purchaseElectricityFn: func(_ context.Context, _, _, _ string, _ *string) (store.Transaction, error) {
				return store.Transaction{}, services.ErrMeterNotFound
			},
		},
	})
	body := `{"package_id":"e-1","meter_id":"m-other"}`
	req := requestWithToken(t, http.MethodPost, "/electricity/purchase", "u-1", []byte(body))
	rr := httptest.NewRecorder()
	withAuth(handler.PurchaseElectricity).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRegisterMeter(t *testing.T) {
	var createdNumber string
	handler := newTestHandler(testDeps{
		meters: stubMeterStore{
			createFn: func(_ context.Context, _ store.Execer, _, meterNumber, _ string, _ *string) error {
				createdNumber = meterNumber
				return nil
			},
		},
	})
	body := `{"meter_number":"MTR-001234","address":"12 Vilakazi St"}`
	req := requestWithToken(t, http.MethodPost, "/electricity/meters/register", "u-1", []byte(body))
	rr := httptest.NewRecorder()
	withAuth(handler.RegisterMeter).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if createdNumber != "MTR-001234" {
		t.Errorf("expected MTR-001234, got %s", createdNumber)
	}
}

func TestRegisterMeterValidatesNumber(t *testing.T) {
	handler := newTestHandler(testDeps{})
	req := requestWithToken(t, http.MethodPost, "/electricity/meters/register", "u-1", []byte(`{"meter_number":"x"}`))
	rr := httptest.NewRecorder()
	withAuth(handler.RegisterMeter).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRegisterMeterDuplicate(t *testing.T) {
	handler := newTestHandler(testDeps{
		meters: stubMeterStore{
			createFn: func(_ context.Context, _ store.Execer, _, _, _ string, _ *string) error {
				return &pq.Error{Code: "23505", Constraint: "meters_meter_number_key"}
			},
		},
	})
	req := requestWithToken(t, http.MethodPost, "/electricity/meters/register", "u-1", []byte(`{"meter_number":"MTR-001234"}`))
	rr := httptest.NewRecorder()
	withAuth(handler.RegisterMeter).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
}
