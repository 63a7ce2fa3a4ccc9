// Package pgstore implements persistence.Store backed by PostgreSQL via
// jackc/pgx, grounded on the pack's constructor-injected *pgxpool.Pool
// pattern (the caller owns and closes the pool) and golang-migrate schema
// management via internal/persistence/pgstore/migrations.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nextlevelbuilder/clawbridge/internal/persistence"
)

// Store implements persistence.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ persistence.Store = (*Store)(nil)

// New wraps an externally-owned pool. The caller is responsible for
// running migrations (cmd migrate up) before use, and for closing the
// pool on shutdown.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) SaveSession(r persistence.SessionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO bridge_session (id, session_id, saved_at, working_dir, total_input_tokens, total_output_tokens, total_queries, session_start_time)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			session_id = excluded.session_id, saved_at = excluded.saved_at, working_dir = excluded.working_dir,
			total_input_tokens = excluded.total_input_tokens, total_output_tokens = excluded.total_output_tokens,
			total_queries = excluded.total_queries, session_start_time = excluded.session_start_time`,
		r.SessionID, r.SavedAt, r.WorkingDir, r.TotalInputTokens, r.TotalOutputTokens, r.TotalQueries, r.SessionStartTime)
	if err != nil {
		return fmt.Errorf("pgstore: save session: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(workingDir string) (*persistence.SessionRecord, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var r persistence.SessionRecord
	row := s.pool.QueryRow(ctx, `SELECT session_id, saved_at, working_dir, total_input_tokens, total_output_tokens, total_queries, session_start_time FROM bridge_session WHERE id = 1`)
	if err := row.Scan(&r.SessionID, &r.SavedAt, &r.WorkingDir, &r.TotalInputTokens, &r.TotalOutputTokens, &r.TotalQueries, &r.SessionStartTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("pgstore: load session: %w", err)
	}
	if r.WorkingDir != workingDir {
		return nil, false, nil
	}
	r.Backend = "postgres"
	return &r, true, nil
}

func (s *Store) ClearSession() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `DELETE FROM bridge_session WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("pgstore: clear session: %w", err)
	}
	return nil
}

func (s *Store) SaveRestartPointer(p persistence.RestartPointer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bridge_restart_pointer (id, chat_id, message_id, timestamp)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET chat_id = excluded.chat_id, message_id = excluded.message_id, timestamp = excluded.timestamp`,
		p.ChatID, p.MessageID, p.Timestamp)
	if err != nil {
		return fmt.Errorf("pgstore: save restart pointer: %w", err)
	}
	return nil
}

func (s *Store) LoadRestartPointer() (*persistence.RestartPointer, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var p persistence.RestartPointer
	row := s.pool.QueryRow(ctx, `SELECT chat_id, message_id, timestamp FROM bridge_restart_pointer WHERE id = 1`)
	if err := row.Scan(&p.ChatID, &p.MessageID, &p.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("pgstore: load restart pointer: %w", err)
	}
	return &p, true, nil
}

func (s *Store) ClearRestartPointer() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `DELETE FROM bridge_restart_pointer WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("pgstore: clear restart pointer: %w", err)
	}
	return nil
}
