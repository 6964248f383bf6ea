package agents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresRepo stores agent presence in the agents table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// SetStatus upserts the agent's presence. Agents are created on first status change.
func (r *PostgresRepo) SetStatus(ctx context.Context, agentID string, status Status, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	const q = `
INSERT INTO agents (id, status, last_status_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  last_status_at = EXCLUDED.last_status_at
`
	if _, err := r.db.ExecContext(ctx, q, agentID, string(status), at); err != nil {
		return fmt.Errorf("agents: set status: %w", err)
	}
	return nil
}

func (r *PostgresRepo) SetAvailable(ctx context.Context, agentID string, at time.Time) error {
	return r.SetStatus(ctx, agentID, StatusAvailable, at)
}

func (r *PostgresRepo) SetOnCall(ctx context.Context, agentID string, at time.Time) error {
	return r.SetStatus(ctx, agentID, StatusOnCall, at)
}

func (r *PostgresRepo) Get(ctx context.Context, agentID string) (Agent, error) {
	const q = `SELECT id, status, last_status_at FROM agents WHERE id = $1`
	var a Agent
	if err := r.db.QueryRowContext(ctx, q, agentID).Scan(&a.ID, &a.Status, &a.LastStatusAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, fmt.Errorf("agents: get: %w", err)
	}
	return a, nil
}
