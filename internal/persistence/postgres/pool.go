// Package postgres implements persistence.Store on top of pgx/v5: a
// single pgxpool.Pool, idempotent DDL run at startup, and parameterized
// queries throughout.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool opens a pgx connection pool against dsn and verifies connectivity.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS lavis_sessions (
	key            TEXT PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	message_count  INT NOT NULL DEFAULT 0,
	token_estimate INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS lavis_messages (
	id             TEXT PRIMARY KEY,
	session_key    TEXT NOT NULL REFERENCES lavis_sessions(key) ON DELETE CASCADE,
	turn_id        TEXT NOT NULL,
	position       INT NOT NULL,
	kind           TEXT NOT NULL,
	content        TEXT NOT NULL DEFAULT '',
	image_id       TEXT NOT NULL DEFAULT '',
	tool_calls     JSONB,
	tool_call_id   TEXT NOT NULL DEFAULT '',
	tool_result    TEXT NOT NULL DEFAULT '',
	token_estimate INT NOT NULL DEFAULT 0,
	is_compressed  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS lavis_messages_session_position_idx
	ON lavis_messages (session_key, position);

CREATE TABLE IF NOT EXISTS lavis_scheduled_tasks (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	cron_expr       TEXT NOT NULL,
	command         TEXT NOT NULL,
	enabled         BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	last_run_at     TIMESTAMPTZ,
	last_run_status TEXT NOT NULL DEFAULT '',
	run_count       INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS lavis_task_run_logs (
	id          BIGSERIAL PRIMARY KEY,
	task_id     TEXT NOT NULL REFERENCES lavis_scheduled_tasks(id) ON DELETE CASCADE,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL,
	output      TEXT NOT NULL DEFAULT '',
	error_text  TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS lavis_task_run_logs_task_idx ON lavis_task_run_logs (task_id, started_at);

CREATE TABLE IF NOT EXISTS lavis_skills (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	version        TEXT NOT NULL DEFAULT '',
	author         TEXT NOT NULL DEFAULT '',
	body           TEXT NOT NULL DEFAULT '',
	command        TEXT NOT NULL,
	enabled        BOOLEAN NOT NULL DEFAULT TRUE,
	install_source TEXT NOT NULL DEFAULT '',
	last_used_at   TIMESTAMPTZ,
	use_count      INT NOT NULL DEFAULT 0
);
`

// Migrate applies the idempotent DDL for every table this package owns.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
