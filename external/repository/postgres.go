package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxseedlab/voicelink/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const callColumns = `id, call_sid, stream_sid, caller, mode, started_at, ended_at, status,
	COALESCE(stop_reason, ''), priority, facts, timings_ms, target_ms, budget_exceeded, turn_count`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func scanCall(row pgx.Row) (*repository.Call, error) {
	var c repository.Call
	err := row.Scan(&c.ID, &c.CallSID, &c.StreamSID, &c.Caller, &c.Mode, &c.StartedAt, &c.EndedAt, &c.Status,
		&c.StopReason, &c.Priority, &c.Facts, &c.TimingsMs, &c.TargetMs, &c.BudgetExceeded, &c.TurnCount)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) CreateCall(ctx context.Context, input repository.CreateCallInput) (*repository.Call, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO calls (call_sid, stream_sid, caller, mode, started_at, status)
		 VALUES ($1, $2, $3, $4, $5, 'running')
		 RETURNING `+callColumns,
		input.CallSID, input.StreamSID, input.Caller, input.Mode, input.StartedAt)
	c, err := scanCall(row)
	if err != nil {
		return nil, fmt.Errorf("insert call %s: %w", input.CallSID, err)
	}
	return c, nil
}

func (r *PostgresRepository) CompleteCall(ctx context.Context, input repository.CompleteCallInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE calls
		 SET status = 'completed', ended_at = $2, stop_reason = $3, priority = $4, facts = $5,
		     timings_ms = $6, target_ms = $7, budget_exceeded = $8, turn_count = $9
		 WHERE id = $1`,
		input.CallID, input.EndedAt, input.StopReason, input.Priority, input.Facts,
		input.TimingsMs, input.TargetMs, input.BudgetExceeded, input.TurnCount)
	if err != nil {
		return fmt.Errorf("complete call %s: %w", input.CallID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete call %s: not found", input.CallID)
	}
	return nil
}

func (r *PostgresRepository) GetRunningCallBySID(ctx context.Context, callSID string) (*repository.Call, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+callColumns+`
		 FROM calls WHERE call_sid = $1 AND status = 'running'
		 ORDER BY started_at DESC
		 LIMIT 1`,
		callSID)
	c, err := scanCall(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) InsertTurn(ctx context.Context, input repository.InsertTurnInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO call_turns (call_id, role, content, turn_index, spoken_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		input.CallID, input.Role, input.Content, input.TurnIndex, input.SpokenAt)
	return err
}

func (r *PostgresRepository) ListTurnsByCallID(ctx context.Context, callID string) ([]repository.CallTurn, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, call_id, role, content, turn_index, spoken_at, created_at
		 FROM call_turns WHERE call_id = $1 ORDER BY turn_index ASC`,
		callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.CallTurn
	for rows.Next() {
		var t repository.CallTurn
		if err := rows.Scan(&t.ID, &t.CallID, &t.Role, &t.Content, &t.TurnIndex, &t.SpokenAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
