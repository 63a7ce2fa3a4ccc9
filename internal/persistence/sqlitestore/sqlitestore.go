// Package sqlitestore implements persistence.Store backed by a local
// SQLite file via the pure-Go modernc.org/sqlite driver, grounded on the
// pack's sqlite store pattern of a single-connection pool (SetMaxOpenConns(1))
// to avoid SQLITE_BUSY from concurrent writers opening independent
// connections.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/clawbridge/internal/persistence"
)

// Store implements persistence.Store backed by a local SQLite file.
type Store struct {
	db *sql.DB
}

var _ persistence.Store = (*Store)(nil)

// New opens (and migrates) a SQLite-backed Store at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			session_id TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			working_dir TEXT NOT NULL,
			total_input_tokens INTEGER NOT NULL,
			total_output_tokens INTEGER NOT NULL,
			total_queries INTEGER NOT NULL,
			session_start_time TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS restart_pointer (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			chat_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlitestore: init: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveSession(r persistence.SessionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO session (id, session_id, saved_at, working_dir, total_input_tokens, total_output_tokens, total_queries, session_start_time)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id=excluded.session_id, saved_at=excluded.saved_at, working_dir=excluded.working_dir,
			total_input_tokens=excluded.total_input_tokens, total_output_tokens=excluded.total_output_tokens,
			total_queries=excluded.total_queries, session_start_time=excluded.session_start_time`,
		r.SessionID, r.SavedAt.Format(time.RFC3339Nano), r.WorkingDir,
		r.TotalInputTokens, r.TotalOutputTokens, r.TotalQueries, r.SessionStartTime.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlitestore: save session: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(workingDir string) (*persistence.SessionRecord, bool, error) {
	row := s.db.QueryRow(`SELECT session_id, saved_at, working_dir, total_input_tokens, total_output_tokens, total_queries, session_start_time FROM session WHERE id = 1`)

	var r persistence.SessionRecord
	var savedAt, startedAt string
	if err := row.Scan(&r.SessionID, &savedAt, &r.WorkingDir, &r.TotalInputTokens, &r.TotalOutputTokens, &r.TotalQueries, &startedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sqlitestore: load session: %w", err)
	}
	if r.WorkingDir != workingDir {
		return nil, false, nil
	}
	r.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
	r.SessionStartTime, _ = time.Parse(time.RFC3339Nano, startedAt)
	r.Backend = "sqlite"
	return &r, true, nil
}

func (s *Store) ClearSession() error {
	_, err := s.db.Exec(`DELETE FROM session WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("sqlitestore: clear session: %w", err)
	}
	return nil
}

func (s *Store) SaveRestartPointer(p persistence.RestartPointer) error {
	_, err := s.db.Exec(`
		INSERT INTO restart_pointer (id, chat_id, message_id, timestamp)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET chat_id=excluded.chat_id, message_id=excluded.message_id, timestamp=excluded.timestamp`,
		p.ChatID, p.MessageID, p.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlitestore: save restart pointer: %w", err)
	}
	return nil
}

func (s *Store) LoadRestartPointer() (*persistence.RestartPointer, bool, error) {
	row := s.db.QueryRow(`SELECT chat_id, message_id, timestamp FROM restart_pointer WHERE id = 1`)
	var p persistence.RestartPointer
	var ts string
	if err := row.Scan(&p.ChatID, &p.MessageID, &ts); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sqlitestore: load restart pointer: %w", err)
	}
	p.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	return &p, true, nil
}

func (s *Store) ClearRestartPointer() error {
	_, err := s.db.Exec(`DELETE FROM restart_pointer WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("sqlitestore: clear restart pointer: %w", err)
	}
	return nil
}
