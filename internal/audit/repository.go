package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends events to audit_events. It has no update or delete path.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_events (
  id, agent_id, type, actor_user_id, actor_role,
  customer_leg_id, agent_leg_id, consult_leg_id, destination,
  message, metadata, created_at
) VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),NULLIF($8,''),NULLIF($9,''),$10,NULLIF($11,'')::jsonb,$12)
`, e.ID, e.AgentID, string(e.Type), e.ActorUserID, e.ActorRole,
		e.CustomerLegID, e.AgentLegID, e.ConsultLegID, e.Destination,
		e.Message, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: append %s: %w", e.Type, err)
	}
	return nil
}
