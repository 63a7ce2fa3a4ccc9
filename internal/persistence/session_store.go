// Package persistence implements the Session Runner's durability layer:
// the session+usage JSON checkpoint, the restart-message handoff file, the
// append-only audit log, and the context-budget alarm thresholds. The
// default backend is a single JSON file under /tmp, matching spec.md's
// literal contract exactly; optional sqlite and postgres backends
// (internal/persistence/sqlitestore, internal/persistence/pgstore) satisfy
// the same Store interface for operators who want durability beyond one
// host's /tmp.
package persistence

import "time"

// SessionRecord is the on-disk shape of the session file:
// {session_id, saved_at, working_dir, totalInputTokens, totalOutputTokens,
// totalQueries, sessionStartTime}. Field names mirror the JSON contract
// verbatim (camelCase for the counters and sessionStartTime, snake_case for
// the rest) because
// that contract is external and fixed by spec.md §4.5.
type SessionRecord struct {
	SessionID        string    `json:"session_id"`
	SavedAt          time.Time `json:"saved_at"`
	WorkingDir       string    `json:"working_dir"`
	TotalInputTokens int64     `json:"totalInputTokens"`
	TotalOutputTokens int64    `json:"totalOutputTokens"`
	TotalQueries     int64     `json:"totalQueries"`
	SessionStartTime time.Time `json:"sessionStartTime"`
	Backend          string    `json:"backend,omitempty"`
}

// RestartPointer is the on-disk shape of the restart-message file:
// {chat_id, message_id, timestamp}.
type RestartPointer struct {
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the persistence port the Coordinator and Runner checkpoint
// through. Implementations: file (default), sqlite, postgres.
type Store interface {
	SaveSession(record SessionRecord) error
	LoadSession(workingDir string) (*SessionRecord, bool, error)
	ClearSession() error

	SaveRestartPointer(p RestartPointer) error
	LoadRestartPointer() (*RestartPointer, bool, error)
	ClearRestartPointer() error
}
