package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lokalpay/internal/store"

	"github.com/go-chi/chi/v5"
)

func TestCreateElectricityPackageValidation(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			"units with kwh",
			`{"name":"10 kWh","price":"50.00","package_type":"UNITS","kwh_amount":"10"}`,
			http.StatusCreated,
		},
		{
			"units without kwh",
			`{"name":"10 kWh","price":"50.00","package_type":"UNITS"}`,
			http.StatusBadRequest,
		},
		{
			"units with zero kwh",
			`{"name":"0 kWh","price":"50.00","package_type":"UNITS","kwh_amount":"0"}`,
			http.StatusBadRequest,
		},
		{
			"unlimited with validity",
			`{"name":"Monthly","price":"450.00","package_type":"UNLIMITED","validity_days":30}`,
			http.StatusCreated,
		},
		{
			"unlimited without validity",
			`{"name":"Monthly","price":"450.00","package_type":"UNLIMITED"}`,
			http.StatusBadRequest,
		},
		{
			"unknown type",
			`{"name":"Odd","price":"1.00","package_type":"PREMIUM"}`,
			http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(testDeps{})
			req := httptest.NewRequest(http.MethodPost, "/admin/packages/electricity", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			handler.CreateElectricityPackage(rr, req)
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCreateWiFiPackage(t *testing.T) {
	var created store.WiFiPackageInput
	handler := newTestHandler(testDeps{
		packages: stubPackageStore{
			createWiFiFn: func(_ context.Context, _ store.Execer, input store.WiFiPackageInput) error {
				created = input
				return nil
			},
		},
	})
	body := `{"name":"Week Pass","price":"99.00","data_limit_mb":10240,"validity_hours":168}`
	req := httptest.NewRequest(http.MethodPost, "/admin/packages/wifi", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.CreateWiFiPackage(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if created.Price != 9900 {
		t.Errorf("expected price 9900 cents, got %d", created.Price)
	}
	if created.ValidityHours != 168 {
		t.Errorf("expected 168 validity hours, got %d", created.ValidityHours)
	}
}

func TestDeactivatePackageUnknownKind(t *testing.T) {
	handler := newTestHandler(testDeps{})
	router := chi.NewRouter()
	router.Post("/admin/packages/{kind}/{id}/deactivate", handler.DeactivatePackage)

	req := httptest.NewRequest(http.MethodPost, "/admin/packages/gas/pkg-1/deactivate", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDeactivateWiFiPackage(t *testing.T) {
	var deactivated string
	handler := newTestHandler(testDeps{
		packages: stubPackageStore{
			setWiFiActiveFn: func(_ context.Context, _ store.Execer, packageID string, active bool) error {
				if active {
					t.Error("expected active=false")
				}
				deactivated = packageID
				return nil
			},
		},
	})
	router := chi.NewRouter()
	router.Post("/admin/packages/{kind}/{id}/deactivate", handler.DeactivatePackage)

	req := httptest.NewRequest(http.MethodPost, "/admin/packages/wifi/pkg-1/deactivate", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if deactivated != "pkg-1" {
		t.Errorf("expected pkg-1, got %s", deactivated)
	}
}

func TestUpdateUserKYC(t *testing.T) {
	var updatedUser, updatedStatus string
	handler := newTestHandler(testDeps{
		users: stubUserStore{
			getByIDFn: func(_ context.Context, userID string) (store.User, error) {
				if userID != "u-1" {
					return store.User{}, sql.ErrNoRows
				}
				return store.User{ID: userID, KYCStatus: "PENDING"}, nil
			},
			setKYCStatusFn: func(_ context.Context, _ store.Execer, userID, kycStatus string) error {
				updatedUser = userID
				updatedStatus = kycStatus
				return nil
			},
		},
	})
	router := chi.NewRouter()
	router.Put("/admin/users/{id}/kyc", handler.UpdateUserKYC)

	req := httptest.NewRequest(http.MethodPut, "/admin/users/u-1/kyc", strings.NewReader(`{"status":"VERIFIED"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if updatedUser != "u-1" || updatedStatus != "VERIFIED" {
		t.Errorf("expected u-1 marked VERIFIED, got %s %s", updatedUser, updatedStatus)
	}

	req = httptest.NewRequest(http.MethodPut, "/admin/users/u-1/kyc", strings.NewReader(`{"status":"APPROVED"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/admin/users/u-404/kyc", strings.NewReader(`{"status":"REJECTED"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rr.Code)
	}
}

func TestUpdateUserRole(t *testing.T) {
	var updatedRole string
	handler := newTestHandler(testDeps{
		users: stubUserStore{
			setRoleFn: func(_ context.Context, _ store.Execer, userID, role string) error {
				updatedRole = role
				return nil
			},
		},
	})
	router := chi.NewRouter()
	router.Put("/admin/users/{id}/role", handler.UpdateUserRole)

	req := httptest.NewRequest(http.MethodPut, "/admin/users/u-1/role", strings.NewReader(`{"role":"ADMIN"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if updatedRole != "ADMIN" {
		t.Errorf("expected role ADMIN, got %s", updatedRole)
	}

	req = httptest.NewRequest(http.MethodPut, "/admin/users/u-1/role", strings.NewReader(`{"role":"SUPERUSER"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", rr.Code)
	}
}

func TestUpdateAgentStatus(t *testing.T) {
	var updatedAgent, updatedStatus string
	handler := newTestHandler(testDeps{
		agents: stubAgentStore{
			updateStatusFn: func(_ context.Context, _ store.Execer, agentID, status string) error {
				updatedAgent = agentID
				updatedStatus = status
				return nil
			},
		},
	})
	router := chi.NewRouter()
	router.Put("/admin/agents/{id}/status", handler.UpdateAgentStatus)

	req := httptest.NewRequest(http.MethodPut, "/admin/agents/a-1/status", strings.NewReader(`{"status":"SUSPENDED"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if updatedAgent != "a-1" || updatedStatus != "SUSPENDED" {
		t.Errorf("expected a-1 SUSPENDED, got %s %s", updatedAgent, updatedStatus)
	}
}

func TestUpdateWalletStatus(t *testing.T) {
	var updatedStatus string
	handler := newTestHandler(testDeps{
		wallets: stubWalletStore{
			updateStatusFn: func(_ context.Context, _ store.Execer, walletID, status string) error {
				updatedStatus = status
				return nil
			},
		},
	})
	router := chi.NewRouter()
	router.Put("/admin/wallets/{id}/status", handler.UpdateWalletStatus)

	req := httptest.NewRequest(http.MethodPut, "/admin/wallets/w-1/status", strings.NewReader(`{"status":"FROZEN"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if updatedStatus != "FROZEN" {
		t.Errorf("expected FROZEN, got %s", updatedStatus)
	}

	req = httptest.NewRequest(http.MethodPut, "/admin/wallets/w-1/status", strings.NewReader(`{"status":"PAUSED"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
}

func TestAdminListTransactionsIncludesOwners(t *testing.T) {
	walletID := "wallet-1"
	agentID := "a-1"
	handler := newTestHandler(testDeps{
		transactions: stubTransactionStore{
			listAllFn: func(_ context.Context, _, _ int) ([]store.Transaction, error) {
				return []store.Transaction{
					{ID: "t-1", WalletID: &walletID, Ledger: store.LedgerWallet},
					{ID: "t-2", AgentID: &agentID, Ledger: store.LedgerFloat},
				}, nil
			},
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/admin/transactions", nil)
	rr := httptest.NewRecorder()
	handler.AdminListTransactions(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"wallet_id":"wallet-1"`) {
		t.Errorf("expected wallet_id in response, got %s", body)
	}
	if !strings.Contains(body, `"agent_id":"a-1"`) {
		t.Errorf("expected agent_id in response, got %s", body)
	}
}
