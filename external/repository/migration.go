package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE call_status AS ENUM ('running', 'completed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS calls (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		call_sid TEXT NOT NULL,
		stream_sid TEXT NOT NULL DEFAULT '',
		caller TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status call_status NOT NULL DEFAULT 'running',
		stop_reason TEXT,
		priority TEXT NOT NULL DEFAULT 'STANDARD',
		facts JSONB NOT NULL DEFAULT '{}'::jsonb,
		timings_ms JSONB NOT NULL DEFAULT '{}'::jsonb,
		target_ms BIGINT NOT NULL DEFAULT 0,
		budget_exceeded BOOLEAN NOT NULL DEFAULT FALSE,
		turn_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_running ON calls (call_sid) WHERE status = 'running'`,
	`CREATE TABLE IF NOT EXISTS call_turns (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		call_id UUID NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		turn_index INTEGER NOT NULL,
		spoken_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(call_id, turn_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_call_turns_call ON call_turns (call_id, turn_index)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
