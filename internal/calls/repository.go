package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dispo-crm/pkg/utils"
)

// PostgresRepo implements ActiveCallStore, TransferStore and HistoryStore.
//
// Tables (see internal/migrate):
// - active_calls (PK agent_id)
// - transfer_attempts (unique consult_leg_id where not null)
// - call_history (unique provider_leg_id)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func dbErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

const activeCallColumns = `agent_id, customer_leg_id, agent_leg_id, consult_leg_id, hold_state, playback_state, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActiveCall(row rowScanner) (ActiveCall, error) {
	var (
		c                           ActiveCall
		customer, agentLeg, consult sql.NullString
	)
	err := row.Scan(
		&c.AgentID,
		&customer,
		&agentLeg,
		&consult,
		&c.HoldState,
		&c.PlaybackState,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	c.CustomerLegID = customer.String
	c.AgentLegID = agentLeg.String
	c.ConsultLegID = consult.String
	return c, err
}

func (r *PostgresRepo) UpsertActiveCall(ctx context.Context, c ActiveCall) (ActiveCall, error) {
	const q = `
INSERT INTO active_calls (` + activeCallColumns + `)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), $5, $6, $7, $8)
ON CONFLICT (agent_id) DO UPDATE SET
  customer_leg_id = EXCLUDED.customer_leg_id,
  agent_leg_id = EXCLUDED.agent_leg_id,
  consult_leg_id = EXCLUDED.consult_leg_id,
  hold_state = EXCLUDED.hold_state,
  playback_state = EXCLUDED.playback_state,
  created_at = EXCLUDED.created_at,
  updated_at = EXCLUDED.updated_at
RETURNING ` + activeCallColumns
	out, err := scanActiveCall(r.db.QueryRowContext(ctx, q,
		c.AgentID, c.CustomerLegID, c.AgentLegID, c.ConsultLegID,
		string(c.HoldState), string(c.PlaybackState), c.CreatedAt, c.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActiveCall{}, ErrConflictIgnored
		}
		return ActiveCall{}, dbErr("upsert active call", err)
	}
	return out, nil
}

func (r *PostgresRepo) GetActiveCall(ctx context.Context, agentID string) (ActiveCall, bool, error) {
	const q = `SELECT ` + activeCallColumns + ` FROM active_calls WHERE agent_id = $1`
	c, err := scanActiveCall(r.db.QueryRowContext(ctx, q, agentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActiveCall{}, false, nil
		}
		return ActiveCall{}, false, dbErr("get active call", err)
	}
	return c, true, nil
}

func (r *PostgresRepo) FindActiveCallByLeg(ctx context.Context, legID string) (ActiveCall, bool, error) {
	const q = `
SELECT ` + activeCallColumns + `
FROM active_calls
WHERE agent_leg_id = $1 OR customer_leg_id = $1 OR consult_leg_id = $1
ORDER BY updated_at DESC
LIMIT 1
`
	c, err := scanActiveCall(r.db.QueryRowContext(ctx, q, legID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActiveCall{}, false, nil
		}
		return ActiveCall{}, false, dbErr("find active call by leg", err)
	}
	return c, true, nil
}

// updateActiveCall runs a single-row UPDATE and maps "no row" to ErrNoActiveCall.
func (r *PostgresRepo) updateActiveCall(ctx context.Context, op, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return dbErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(op, err)
	}
	if n == 0 {
		return ErrNoActiveCall
	}
	return nil
}

func (r *PostgresRepo) SetCustomerLeg(ctx context.Context, agentID, customerLegID string, at time.Time) error {
	return r.updateActiveCall(ctx, "set customer leg",
		`UPDATE active_calls SET customer_leg_id = $2, updated_at = $3 WHERE agent_id = $1`,
		agentID, customerLegID, at)
}

func (r *PostgresRepo) SetConsultLeg(ctx context.Context, agentID, consultLegID string, at time.Time) error {
	return r.updateActiveCall(ctx, "set consult leg",
		`UPDATE active_calls SET consult_leg_id = $2, updated_at = $3 WHERE agent_id = $1`,
		agentID, consultLegID, at)
}

func (r *PostgresRepo) SetHoldState(ctx context.Context, agentID string, hold HoldState, playback PlaybackState, at time.Time) error {
	return r.updateActiveCall(ctx, "set hold state",
		`UPDATE active_calls SET hold_state = $2, playback_state = $3, updated_at = $4 WHERE agent_id = $1`,
		agentID, string(hold), string(playback), at)
}

func (r *PostgresRepo) ClearConsultLeg(ctx context.Context, agentID, consultLegID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE active_calls SET consult_leg_id = NULL, updated_at = $3 WHERE agent_id = $1 AND consult_leg_id = $2`,
		agentID, consultLegID, at)
	if err != nil {
		return false, dbErr("clear consult leg", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr("clear consult leg", err)
	}
	return n > 0, nil
}

func (r *PostgresRepo) DeleteActiveCall(ctx context.Context, agentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM active_calls WHERE agent_id = $1`, agentID)
	if err != nil {
		return false, dbErr("delete active call", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr("delete active call", err)
	}
	return n > 0, nil
}

func (r *PostgresRepo) DeleteActiveCallByAgentLeg(ctx context.Context, agentLegID string) (string, bool, error) {
	var agentID string
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM active_calls WHERE agent_leg_id = $1 RETURNING agent_id`, agentLegID,
	).Scan(&agentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, dbErr("delete active call by agent leg", err)
	}
	return agentID, true, nil
}

const transferColumns = `id, agent_id, call_control_id, agent_leg_id, transfer_type, destination, consult_leg_id, status, initiated_at, answered_at, agent_bridged_at, completed_at`

func scanTransfer(row rowScanner) (TransferAttempt, error) {
	var (
		t                            TransferAttempt
		agentLeg, consult            sql.NullString
		answered, bridged, completed sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.AgentID,
		&t.CallControlID,
		&agentLeg,
		&t.TransferType,
		&t.Destination,
		&consult,
		&t.Status,
		&t.InitiatedAt,
		&answered,
		&bridged,
		&completed,
	)
	t.AgentLegID = agentLeg.String
	t.ConsultLegID = consult.String
	t.AnsweredAt = nullTime(answered)
	t.AgentBridgedAt = nullTime(bridged)
	t.CompletedAt = nullTime(completed)
	return t, err
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func insertTransfer(ctx context.Context, tx *sql.Tx, t TransferAttempt) error {
	const q = `
INSERT INTO transfer_attempts (
  id, agent_id, call_control_id, agent_leg_id, transfer_type, destination, consult_leg_id, status, initiated_at, completed_at
) VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,NULLIF($7,''),$8,$9,$10)
`
	_, err := tx.ExecContext(ctx, q,
		t.ID, t.AgentID, t.CallControlID, t.AgentLegID, string(t.TransferType),
		t.Destination, t.ConsultLegID, string(t.Status), t.InitiatedAt, t.CompletedAt,
	)
	return err
}

func (r *PostgresRepo) StartConsult(ctx context.Context, t TransferAttempt) error {
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertTransfer(ctx, tx, t); err != nil {
			if utils.IsUniqueViolation(err) {
				return fmt.Errorf("%w: consult leg %s already recorded", ErrInvalidState, t.ConsultLegID)
			}
			return dbErr("insert transfer attempt", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE active_calls SET consult_leg_id = $2, updated_at = $3 WHERE agent_id = $1`,
			t.AgentID, t.ConsultLegID, t.InitiatedAt)
		if err != nil {
			return dbErr("set consult leg", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNoActiveCall
		}
		return nil
	})
	return storageErr(err)
}

func (r *PostgresRepo) RecordTransfer(ctx context.Context, t TransferAttempt) error {
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return insertTransfer(ctx, tx, t)
	})
	if err != nil {
		return dbErr("record transfer", err)
	}
	return nil
}

func (r *PostgresRepo) GetTransferByConsultLeg(ctx context.Context, consultLegID string) (TransferAttempt, bool, error) {
	const q = `SELECT ` + transferColumns + ` FROM transfer_attempts WHERE consult_leg_id = $1`
	t, err := scanTransfer(r.db.QueryRowContext(ctx, q, consultLegID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TransferAttempt{}, false, nil
		}
		return TransferAttempt{}, false, dbErr("get transfer", err)
	}
	return t, true, nil
}

// conditionalMiss explains why a status-guarded update touched no row.
func conditionalMiss(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, consultLegID string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM transfer_attempts WHERE consult_leg_id = $1`, consultLegID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return dbErr("get transfer status", err)
	}
	return fmt.Errorf("%w: transfer is %s", ErrInvalidState, status)
}

func (r *PostgresRepo) markConsulting(ctx context.Context, op, column, consultLegID string, at time.Time) error {
	q := `UPDATE transfer_attempts SET ` + column + ` = COALESCE(` + column + `, $2) WHERE consult_leg_id = $1 AND status = 'consulting'`
	res, err := r.db.ExecContext(ctx, q, consultLegID, at)
	if err != nil {
		return dbErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(op, err)
	}
	if n == 0 {
		return conditionalMiss(ctx, r.db, consultLegID)
	}
	return nil
}

func (r *PostgresRepo) MarkAnswered(ctx context.Context, consultLegID string, at time.Time) error {
	return r.markConsulting(ctx, "mark answered", "answered_at", consultLegID, at)
}

func (r *PostgresRepo) MarkAgentBridged(ctx context.Context, consultLegID string, at time.Time) error {
	return r.markConsulting(ctx, "mark agent bridged", "agent_bridged_at", consultLegID, at)
}

func (r *PostgresRepo) FinishTransfer(ctx context.Context, consultLegID string, status TransferStatus, at time.Time) (TransferAttempt, error) {
	if !status.Terminal() {
		return TransferAttempt{}, fmt.Errorf("%w: %q is not a terminal status", ErrInvalidInput, status)
	}
	var out TransferAttempt
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE transfer_attempts
SET status = $2, completed_at = $3
WHERE consult_leg_id = $1 AND status = 'consulting'
RETURNING ` + transferColumns
		t, err := scanTransfer(tx.QueryRowContext(ctx, q, consultLegID, string(status), at))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return conditionalMiss(ctx, tx, consultLegID)
			}
			return dbErr("finish transfer", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE active_calls SET consult_leg_id = NULL, updated_at = $3 WHERE agent_id = $1 AND consult_leg_id = $2`,
			t.AgentID, consultLegID, at); err != nil {
			return dbErr("clear consult leg", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return TransferAttempt{}, storageErr(err)
	}
	return out, nil
}

func (r *PostgresRepo) ListTransfersByAgent(ctx context.Context, agentID string, from, to time.Time) ([]TransferAttempt, error) {
	const q = `
SELECT ` + transferColumns + `
FROM transfer_attempts
WHERE agent_id = $1 AND initiated_at >= $2 AND initiated_at < $3
ORDER BY initiated_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, agentID, from, to)
	if err != nil {
		return nil, dbErr("list transfers", err)
	}
	defer rows.Close()

	var out []TransferAttempt
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, dbErr("scan transfer", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list transfers", err)
	}
	return out, nil
}

func (r *PostgresRepo) UpsertCallRecord(ctx context.Context, c CallRecord) error {
	const q = `
INSERT INTO call_history (id, agent_id, provider_leg_id, from_number, to_number, status, started_at, ended_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (provider_leg_id) DO UPDATE SET
  status = EXCLUDED.status,
  ended_at = EXCLUDED.ended_at,
  updated_at = EXCLUDED.updated_at
`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.AgentID, c.ProviderLegID, c.From, c.To, string(c.Status), c.StartedAt, c.EndedAt, c.UpdatedAt)
	if err != nil {
		return dbErr("upsert call record", err)
	}
	return nil
}

func (r *PostgresRepo) EndCallRecord(ctx context.Context, agentLegID string, status CallStatus, endedAt time.Time) error {
	const q = `
UPDATE call_history
SET status = $2, ended_at = COALESCE(ended_at, $3), updated_at = $3
WHERE provider_leg_id = $1 AND status IN ('queued', 'ringing', 'in_progress')
`
	if _, err := r.db.ExecContext(ctx, q, agentLegID, string(status), endedAt); err != nil {
		return dbErr("end call record", err)
	}
	return nil
}
