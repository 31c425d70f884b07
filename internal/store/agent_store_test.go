package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestAgentGetForUpdateLocksRow(t *testing.T) {
	var capturedQuery string
	getter := stubGetter{
		getFn: func(ctx context.Context, dest any, query string, args ...any) error {
			capturedQuery = query
			agent := dest.(*Agent)
			agent.ID = "agent-1"
			agent.Tier = "SILVER"
			agent.FloatBalance = 20000
			return nil
		},
	}
	agentStore := NewAgentStore(stubDB{})
	agent, err := agentStore.GetForUpdate(context.Background(), getter, "agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(capturedQuery, "FOR UPDATE") {
		t.Fatalf("expected FOR UPDATE in query, got %q", capturedQuery)
	}
	if agent.FloatBalance != 20000 || agent.Tier != "SILVER" {
		t.Fatalf("unexpected agent %+v", agent)
	}
}

func TestAgentBalanceUpdates(t *testing.T) {
	var queries []string
	var argSets [][]any
	execer := stubExecer{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			queries = append(queries, query)
			argSets = append(argSets, args)
			return stubResult{rows: 1}, nil
		},
	}
	agentStore := NewAgentStore(stubDB{})
	if err := agentStore.UpdateFloatBalance(context.Background(), execer, "agent-1", 15000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := agentStore.UpdateCommissionBalance(context.Background(), execer, "agent-1", 350); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(queries[0], "float_balance") {
		t.Fatalf("expected float_balance update, got %q", queries[0])
	}
	if !strings.Contains(queries[1], "commission_balance") {
		t.Fatalf("expected commission_balance update, got %q", queries[1])
	}
	if argSets[0][0] != int64(15000) || argSets[1][0] != int64(350) {
		t.Fatalf("unexpected args: %v %v", argSets[0], argSets[1])
	}
}
