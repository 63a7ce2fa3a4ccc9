package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
)

// FileAudit is the append-only audit sink. Two serializations are
// selectable by config: a human-readable block, or one JSON object per
// line (JSONL). Append returns write failures to its caller; the
// Coordinator's call sites discard them, so they are never fatal.
type FileAudit struct {
	mu   sync.Mutex
	path string
	json bool
}

// NewFileAudit returns a sink for the audit log at path; each Append opens
// the file, creating it if needed.
func NewFileAudit(path string, jsonLines bool) *FileAudit {
	return &FileAudit{path: path, json: jsonLines}
}

func (a *FileAudit) Append(_ context.Context, event ports.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("persistence: open audit log: %w", err)
	}
	defer f.Close()

	var line string
	if a.json {
		data, err := json.Marshal(auditJSONLine{
			RequestID: event.RequestID,
			Timestamp: event.Timestamp,
			UserID:    event.UserID,
			Username:  event.Username,
			Type:      string(event.Type),
			Input:     event.Input,
			Output:    event.Output,
		})
		if err != nil {
			return fmt.Errorf("persistence: marshal audit event: %w", err)
		}
		line = string(data) + "\n"
	} else {
		line = fmt.Sprintf(
			"[%s] request=%s user=%s (%s) type=%s\n  in:  %s\n  out: %s\n\n",
			event.Timestamp.Format(time.RFC3339), event.RequestID,
			event.UserID, event.Username, event.Type, event.Input, event.Output,
		)
	}

	_, err = f.WriteString(line)
	return err
}

type auditJSONLine struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Type      string    `json:"type"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
}
