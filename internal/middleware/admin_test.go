package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubRoleStore struct {
	getRoleFn func(ctx context.Context, userID string) (string, error)
}

func (s stubRoleStore) GetRole(ctx context.Context, userID string) (string, error) {
	return s.getRoleFn(ctx, userID)
}

func TestRequireRoleMissingUser(t *testing.T) {
	handler := RequireRole(stubRoleStore{
		getRoleFn: func(context.Context, string) (string, error) {
			t.Fatalf("unexpected call")
			return "", nil
		},
	}, "ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called")
	}))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireRoleForbidden(t *testing.T) {
	handler := RequireRole(stubRoleStore{
		getRoleFn: func(context.Context, string) (string, error) {
			return "CUSTOMER", nil
		},
	}, "ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called")
	}))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(contextWithUser(req.Context(), "user-1"))
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequireRoleLookupError(t *testing.T) {
	handler := RequireRole(stubRoleStore{
		getRoleFn: func(context.Context, string) (string, error) {
			return "", errors.New("db down")
		},
	}, "ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called")
	}))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(contextWithUser(req.Context(), "user-1"))
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestRequireRoleAllowed(t *testing.T) {
	handler := RequireRole(stubRoleStore{
		getRoleFn: func(context.Context, string) (string, error) {
			return "ADMIN", nil
		},
	}, "ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(contextWithUser(req.Context(), "user-1"))
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func contextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
