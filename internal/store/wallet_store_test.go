package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestWalletGetForUpdateLocksRow(t *testing.T) {
	var capturedQuery string
	var capturedArgs []any
	getter := stubGetter{
		getFn: func(ctx context.Context, dest any, query string, args ...any) error {
			capturedQuery = query
			capturedArgs = args
			wallet := dest.(*Wallet)
			wallet.ID = "wallet-1"
			wallet.Balance = 10000
			wallet.Status = "ACTIVE"
			return nil
		},
	}
	walletStore := NewWalletStore(stubDB{})
	wallet, err := walletStore.GetForUpdate(context.Background(), getter, "wallet-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(capturedQuery, "FOR UPDATE") {
		t.Fatalf("expected FOR UPDATE in query, got %q", capturedQuery)
	}
	if len(capturedArgs) != 1 || capturedArgs[0] != "wallet-1" {
		t.Fatalf("unexpected args: %v", capturedArgs)
	}
	if wallet.Balance != 10000 {
		t.Fatalf("expected balance 10000, got %d", wallet.Balance)
	}
}

func TestWalletUpdateBalance(t *testing.T) {
	var capturedQuery string
	var capturedArgs []any
	execer := stubExecer{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			capturedQuery = query
			capturedArgs = args
			return stubResult{rows: 1}, nil
		},
	}
	walletStore := NewWalletStore(stubDB{})
	if err := walletStore.UpdateBalance(context.Background(), execer, "wallet-1", 7500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(capturedQuery, "UPDATE wallets") {
		t.Fatalf("unexpected query %q", capturedQuery)
	}
	if capturedArgs[0] != int64(7500) || capturedArgs[1] != "wallet-1" {
		t.Fatalf("unexpected args: %v", capturedArgs)
	}
}

func TestWalletUpdateSpendCarriesPeriods(t *testing.T) {
	var capturedArgs []any
	execer := stubExecer{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			capturedArgs = args
			return stubResult{rows: 1}, nil
		},
	}
	walletStore := NewWalletStore(stubDB{})
	err := walletStore.UpdateSpend(context.Background(), execer, "wallet-1", 2500, 40000, "2026-08-30", "2026-08")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []any{int64(2500), int64(40000), "2026-08-30", "2026-08", "wallet-1"}
	if len(capturedArgs) != len(want) {
		t.Fatalf("expected %d args, got %d", len(want), len(capturedArgs))
	}
	for i := range want {
		if capturedArgs[i] != want[i] {
			t.Fatalf("arg %d = %v, want %v", i, capturedArgs[i], want[i])
		}
	}
}
