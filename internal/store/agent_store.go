package store

import (
	"context"
	"time"
)

type AgentStore struct {
	db DB
}

type Agent struct {
	ID                string    `db:"id"`
	UserID            string    `db:"user_id"`
	AgentCode         string    `db:"agent_code"`
	BusinessName      string    `db:"business_name"`
	BusinessType      string    `db:"business_type"`
	Tier              string    `db:"tier"`
	FloatBalance      int64     `db:"float_balance"`
	CommissionBalance int64     `db:"commission_balance"`
	TotalSales        int64     `db:"total_sales"`
	MonthlySales      int64     `db:"monthly_sales"`
	LowFloatThreshold int64     `db:"low_float_threshold"`
	Status            string    `db:"status"`
	CreatedAt         time.Time `db:"created_at"`
}

func NewAgentStore(db DB) *AgentStore {
	return &AgentStore{db: db}
}

type AgentInput struct {
	ID           string
	UserID       string
	AgentCode    string
	BusinessName string
	BusinessType string
	FloatBalance int64
	Status       string
}

func (s *AgentStore) Create(ctx context.Context, tx Execer, input AgentInput) error {
	query := `
		INSERT INTO agents (id, user_id, agent_code, business_name, business_type, float_balance, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.UserID, input.AgentCode, input.BusinessName,
		input.BusinessType, input.FloatBalance, input.Status,
	)
	return err
}

func (s *AgentStore) GetByUser(ctx context.Context, userID string) (Agent, error) {
	var row Agent
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, agent_code, business_name, business_type, tier, float_balance,
		       commission_balance, total_sales, monthly_sales, low_float_threshold, status, created_at
		FROM agents
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return Agent{}, err
	}
	return row, nil
}

func (s *AgentStore) GetByID(ctx context.Context, agentID string) (Agent, error) {
	var row Agent
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, agent_code, business_name, business_type, tier, float_balance,
		       commission_balance, total_sales, monthly_sales, low_float_threshold, status, created_at
		FROM agents
		WHERE id = $1
	`, agentID)
	if err != nil {
		return Agent{}, err
	}
	return row, nil
}

// GetForUpdate locks the agent row; float and commission mutations read
// through here for the same reason wallet mutations lock the wallet row.
func (s *AgentStore) GetForUpdate(ctx context.Context, tx Getter, agentID string) (Agent, error) {
	var row Agent
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, agent_code, business_name, business_type, tier, float_balance,
		       commission_balance, total_sales, monthly_sales, low_float_threshold, status
		FROM agents
		WHERE id = $1
		FOR UPDATE
	`, agentID)
	if err != nil {
		return Agent{}, err
	}
	return row, nil
}

func (s *AgentStore) UpdateFloatBalance(ctx context.Context, tx Execer, agentID string, floatBalance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET float_balance = $1, updated_at = NOW()
		WHERE id = $2
	`, floatBalance, agentID)
	return err
}

func (s *AgentStore) UpdateCommissionBalance(ctx context.Context, tx Execer, agentID string, commissionBalance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET commission_balance = $1, updated_at = NOW()
		WHERE id = $2
	`, commissionBalance, agentID)
	return err
}

func (s *AgentStore) UpdateSales(ctx context.Context, tx Execer, agentID string, totalSales, monthlySales int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET total_sales = $1, monthly_sales = $2, updated_at = NOW()
		WHERE id = $3
	`, totalSales, monthlySales, agentID)
	return err
}

func (s *AgentStore) UpdateStatus(ctx context.Context, tx Execer, agentID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, agentID)
	return err
}
