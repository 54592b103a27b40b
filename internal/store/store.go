package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// Schema creates the journal tables if they do not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id             TEXT PRIMARY KEY,
    objective      TEXT NOT NULL,
    mode           TEXT NOT NULL,
    state          TEXT NOT NULL,
    steps          INTEGER NOT NULL DEFAULT 0,
    batch_failures INTEGER NOT NULL DEFAULT 0,
    started_at     TIMESTAMPTZ NOT NULL,
    finished_at    TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS plan_steps (
    session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    description TEXT NOT NULL,
    PRIMARY KEY (session_id, position)
);
CREATE TABLE IF NOT EXISTS actions (
    id         BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    step_index INTEGER NOT NULL,
    attempt    INTEGER NOT NULL,
    raw        TEXT NOT NULL,
    kind       TEXT NOT NULL,
    outcome    TEXT NOT NULL,
    error_code TEXT,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS actions_session_idx ON actions (session_id, id);
`

// Store journals sessions, plans and actions to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// Open connects to url, verifies the connection and applies the schema.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the journal tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const sqlStartSession = `
        INSERT INTO sessions (id, objective, mode, state, batch_failures, started_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET
            state = EXCLUDED.state,
            started_at = EXCLUDED.started_at;
    `

// StartSession inserts the session row.
func (s *Store) StartSession(ctx context.Context, rec schemas.SessionRecord) error {
	_, err := s.pool.Exec(ctx, sqlStartSession,
		rec.ID, rec.Objective, rec.Mode, string(rec.State), rec.BatchFailures, rec.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", rec.ID, err)
	}
	return nil
}

const sqlSetStepCount = `UPDATE sessions SET steps = $2 WHERE id = $1;`

// RecordPlan stores the plan's steps in order.
func (s *Store) RecordPlan(ctx context.Context, sessionID string, steps []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlSetStepCount, sessionID, len(steps)); err != nil {
		return fmt.Errorf("failed to update step count: %w", err)
	}

	rows := make([][]any, len(steps))
	for i, step := range steps {
		rows[i] = []any{sessionID, i, step}
	}
	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"plan_steps"},
		[]string{"session_id", "position", "description"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy plan steps: %w", err)
	}
	if int(copyCount) != len(steps) {
		return fmt.Errorf("mismatch in copied plan steps count: expected %d, got %d", len(steps), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const sqlInsertAction = `
        INSERT INTO actions (session_id, step_index, attempt, raw, kind, outcome, error_code, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `

// RecordAction appends one executed action.
func (s *Store) RecordAction(ctx context.Context, rec schemas.ActionRecord) error {
	var code *string
	if rec.ErrorCode != "" {
		code = &rec.ErrorCode
	}
	_, err := s.pool.Exec(ctx, sqlInsertAction,
		rec.SessionID, rec.StepIndex, rec.Attempt, rec.Raw, rec.Kind, rec.Outcome, code, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

const sqlFinishSession = `
        UPDATE sessions
        SET state = $2, batch_failures = $3, finished_at = $4
        WHERE id = $1;
    `

// FinishSession records the final state.
func (s *Store) FinishSession(ctx context.Context, rec schemas.SessionRecord) error {
	finished := time.Now().UTC()
	if rec.FinishedAt != nil {
		finished = rec.FinishedAt.UTC()
	}
	tag, err := s.pool.Exec(ctx, sqlFinishSession, rec.ID, string(rec.State), rec.BatchFailures, finished)
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Warn("Finished a session that was never started", zap.String("session_id", rec.ID))
	}
	return nil
}

const sqlGetSession = `
        SELECT id, objective, mode, state, batch_failures, started_at, finished_at
        FROM sessions
        WHERE id = $1;
    `

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("store: session not found")

// GetSession loads one session row.
func (s *Store) GetSession(ctx context.Context, id string) (schemas.SessionRecord, error) {
	var rec schemas.SessionRecord
	var state string
	err := s.pool.QueryRow(ctx, sqlGetSession, id).Scan(
		&rec.ID, &rec.Objective, &rec.Mode, &state, &rec.BatchFailures, &rec.StartedAt, &rec.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return schemas.SessionRecord{}, fmt.Errorf("failed to query session: %w", err)
	}
	rec.State = schemas.SessionState(state)
	return rec, nil
}

const sqlListActions = `
        SELECT step_index, attempt, raw, kind, outcome, COALESCE(error_code, ''), created_at
        FROM actions
        WHERE session_id = $1
        ORDER BY id ASC;
    `

// ListActions returns a session's actions in execution order.
func (s *Store) ListActions(ctx context.Context, sessionID string) ([]schemas.ActionRecord, error) {
	rows, err := s.pool.Query(ctx, sqlListActions, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []schemas.ActionRecord
	for rows.Next() {
		a := schemas.ActionRecord{SessionID: sessionID}
		if err := rows.Scan(&a.StepIndex, &a.Attempt, &a.Raw, &a.Kind, &a.Outcome, &a.ErrorCode, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return actions, nil
}
