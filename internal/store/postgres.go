package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists transcripts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_metadata (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			end_time TIMESTAMPTZ,
			duration_seconds INTEGER,
			session_summary TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS event_log (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES session_metadata(session_id),
			event_type TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_event_log_session_ts ON event_log (session_id, timestamp);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sessionID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_metadata (session_id, user_id, start_time) VALUES ($1, $2, $3)`,
		sessionID, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, user_id, start_time, end_time, duration_seconds, session_summary
		 FROM session_metadata WHERE session_id=$1`,
		sessionID,
	).Scan(&sess.SessionID, &sess.UserID, &sess.StartTime, &sess.EndTime, &sess.DurationSeconds, &sess.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sessionID string, upd SessionUpdate) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE session_metadata
		 SET end_time = COALESCE($2, end_time),
		     duration_seconds = COALESCE($3, duration_seconds),
		     session_summary = COALESCE($4, session_summary)
		 WHERE session_id = $1`,
		sessionID, upd.EndTime, upd.DurationSeconds, upd.Summary,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LogEvent(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO event_log (id, session_id, event_type, content, metadata, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.SessionID, ev.Type, ev.Content, ev.Metadata, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

func (s *PostgresStore) SessionEvents(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, event_type, content, metadata, timestamp
		 FROM event_log WHERE session_id=$1 ORDER BY timestamp ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Type, &ev.Content, &ev.Metadata, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
