package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lavis/internal/persistence"
)

// Store implements persistence.Store on a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open opens a pool against dsn, runs migrations, and returns a ready Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := OpenPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateSession(ctx context.Context, key string) (persistence.Session, error) {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lavis_sessions (key, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (key) DO NOTHING`, key, now)
	if err != nil {
		return persistence.Session{}, err
	}
	return s.GetSession(ctx, key)
}

func (s *Store) GetSession(ctx context.Context, key string) (persistence.Session, error) {
	var sess persistence.Session
	err := s.pool.QueryRow(ctx, `
		SELECT key, created_at, updated_at, message_count, token_estimate
		FROM lavis_sessions WHERE key = $1`, key).
		Scan(&sess.Key, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount, &sess.TokenEstimate)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return sess, err
}

func (s *Store) TouchSession(ctx context.Context, key string, addMessages, addTokens int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE lavis_sessions
		SET message_count = message_count + $2, token_estimate = token_estimate + $3, updated_at = $4
		WHERE key = $1`, key, addMessages, addTokens, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg persistence.Message) (persistence.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	var pos int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0) FROM lavis_messages WHERE session_key = $1`, msg.SessionKey).Scan(&pos)
	if err != nil {
		return persistence.Message{}, err
	}
	msg.Position = pos

	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return persistence.Message{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO lavis_messages
			(id, session_key, turn_id, position, kind, content, image_id, tool_calls, tool_call_id, tool_result, token_estimate, is_compressed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		msg.ID, msg.SessionKey, msg.TurnID, msg.Position, msg.Kind, msg.Content, msg.ImageID,
		toolCalls, msg.ToolCallID, msg.ToolResult, msg.TokenEstimate, msg.IsCompressed, msg.CreatedAt)
	if err != nil {
		return persistence.Message{}, err
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionKey string) ([]persistence.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_key, turn_id, position, kind, content, image_id, tool_calls, tool_call_id, tool_result, token_estimate, is_compressed, created_at
		FROM lavis_messages WHERE session_key = $1 ORDER BY position ASC`, sessionKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.Message
	for rows.Next() {
		var m persistence.Message
		var toolCalls []byte
		if err := rows.Scan(&m.ID, &m.SessionKey, &m.TurnID, &m.Position, &m.Kind, &m.Content, &m.ImageID,
			&toolCalls, &m.ToolCallID, &m.ToolResult, &m.TokenEstimate, &m.IsCompressed, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(toolCalls) > 0 {
			_ = json.Unmarshal(toolCalls, &m.ToolCalls)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) MarkCompressed(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE lavis_messages SET is_compressed = TRUE WHERE id = ANY($1)`, messageIDs)
	return err
}

func (s *Store) DeleteSessionMessages(ctx context.Context, sessionKey string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM lavis_messages WHERE session_key = $1`, sessionKey)
	return err
}

func (s *Store) CreateTask(ctx context.Context, task persistence.ScheduledTask) (persistence.ScheduledTask, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lavis_scheduled_tasks (id, name, description, cron_expr, command, enabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		task.ID, task.Name, task.Description, task.CronExpr, task.Command, task.Enabled, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return persistence.ScheduledTask{}, err
	}
	return task, nil
}

func scanTask(row pgx.Row) (persistence.ScheduledTask, error) {
	var t persistence.ScheduledTask
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.CronExpr, &t.Command, &t.Enabled,
		&t.CreatedAt, &t.UpdatedAt, &t.LastRunAt, &t.LastRunStatus, &t.RunCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ScheduledTask{}, persistence.ErrNotFound
	}
	return t, err
}

const taskColumns = `id, name, description, cron_expr, command, enabled, created_at, updated_at, last_run_at, last_run_status, run_count`

func (s *Store) GetTask(ctx context.Context, id string) (persistence.ScheduledTask, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM lavis_scheduled_tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (s *Store) ListTasks(ctx context.Context) ([]persistence.ScheduledTask, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM lavis_scheduled_tasks ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTask(ctx context.Context, task persistence.ScheduledTask) (persistence.ScheduledTask, error) {
	task.UpdatedAt = time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE lavis_scheduled_tasks
		SET name=$2, description=$3, cron_expr=$4, command=$5, enabled=$6, updated_at=$7
		WHERE id=$1`, task.ID, task.Name, task.Description, task.CronExpr, task.Command, task.Enabled, task.UpdatedAt)
	if err != nil {
		return persistence.ScheduledTask{}, err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ScheduledTask{}, persistence.ErrNotFound
	}
	return s.GetTask(ctx, task.ID)
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM lavis_scheduled_tasks WHERE id = $1`, id)
	return err
}

func (s *Store) SetTaskRunState(ctx context.Context, id string, status string, ranAt time.Time, incrementRunCount bool) error {
	inc := 0
	if incrementRunCount {
		inc = 1
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE lavis_scheduled_tasks
		SET last_run_status=$2, last_run_at=$3, run_count = run_count + $4, updated_at = $3
		WHERE id=$1`, id, status, ranAt, inc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *Store) AppendRunLog(ctx context.Context, log persistence.TaskRunLog) (persistence.TaskRunLog, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO lavis_task_run_logs (task_id, started_at, ended_at, status, output, error_text, duration_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		log.TaskID, log.StartedAt, log.EndedAt, log.Status, log.Output, log.ErrorText, log.DurationMS).Scan(&log.ID)
	if err != nil {
		return persistence.TaskRunLog{}, err
	}
	return log, nil
}

func (s *Store) ListRunLogs(ctx context.Context, taskID string, limit int) ([]persistence.TaskRunLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, started_at, ended_at, status, output, error_text, duration_ms
		FROM lavis_task_run_logs WHERE task_id = $1 ORDER BY started_at DESC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.TaskRunLog
	for rows.Next() {
		var l persistence.TaskRunLog
		if err := rows.Scan(&l.ID, &l.TaskID, &l.StartedAt, &l.EndedAt, &l.Status, &l.Output, &l.ErrorText, &l.DurationMS); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) PruneRunLogs(ctx context.Context, olderThanDays int) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM lavis_task_run_logs WHERE started_at < $1`, time.Now().AddDate(0, 0, -olderThanDays))
	return err
}

func (s *Store) UpsertSkill(ctx context.Context, skill persistence.Skill) (persistence.Skill, error) {
	if skill.ID == "" {
		skill.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lavis_skills (id, name, description, category, version, author, body, command, enabled, install_source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			name=$2, description=$3, category=$4, version=$5, author=$6, body=$7, command=$8, enabled=$9, install_source=$10`,
		skill.ID, skill.Name, skill.Description, skill.Category, skill.Version, skill.Author, skill.Body, skill.Command, skill.Enabled, skill.InstallSource)
	if err != nil {
		return persistence.Skill{}, err
	}
	return skill, nil
}

const skillColumns = `id, name, description, category, version, author, body, command, enabled, install_source, last_used_at, use_count`

func scanSkill(row pgx.Row) (persistence.Skill, error) {
	var sk persistence.Skill
	err := row.Scan(&sk.ID, &sk.Name, &sk.Description, &sk.Category, &sk.Version, &sk.Author, &sk.Body, &sk.Command, &sk.Enabled, &sk.InstallSource, &sk.LastUsedAt, &sk.UseCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Skill{}, persistence.ErrNotFound
	}
	return sk, err
}

func (s *Store) GetSkill(ctx context.Context, id string) (persistence.Skill, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+skillColumns+` FROM lavis_skills WHERE id = $1`, id)
	return scanSkill(row)
}

func (s *Store) ListSkills(ctx context.Context) ([]persistence.Skill, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+skillColumns+` FROM lavis_skills ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.Skill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSkill(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM lavis_skills WHERE id = $1`, id)
	return err
}

func (s *Store) RecordSkillUse(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE lavis_skills SET use_count = use_count + 1, last_used_at = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

var _ persistence.Store = (*Store)(nil)
