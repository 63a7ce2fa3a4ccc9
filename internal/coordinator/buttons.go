package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
)

// FileButtonChannel implements ports.ButtonChannel over the
// <dir>/ask-user-<request_id>.json handoff files the auxiliary tool server
// writes, per spec.md §6's "Button-question server" contract.
type FileButtonChannel struct {
	dir string
	mu  sync.Mutex
}

// NewFileButtonChannel roots the channel at dir (runBridge passes the
// configured button_dir).
func NewFileButtonChannel(dir string) *FileButtonChannel {
	return &FileButtonChannel{dir: dir}
}

type buttonFile struct {
	RequestID string              `json:"request_id"`
	ChatID    string              `json:"chat_id"`
	Question  string              `json:"question"`
	Options   []string            `json:"options"`
	Status    ports.ButtonStatus  `json:"status"`
	Answer    string              `json:"answer,omitempty"`
}

// Poll scans the directory for a pending request addressed to chatID. The
// runner calls this with its own short retry window; Poll itself makes a
// single pass.
func (f *FileButtonChannel) Poll(ctx context.Context, chatID string) (*ports.ButtonRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, false
	}
	for _, entry := range entries {
		if entry.IsDir() || !matchesAskUserFile(entry.Name()) {
			continue
		}
		path := filepath.Join(f.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var bf buttonFile
		if err := json.Unmarshal(data, &bf); err != nil {
			continue
		}
		if bf.ChatID != chatID || bf.Status != ports.ButtonPending {
			continue
		}
		return &ports.ButtonRequest{
			RequestID: bf.RequestID,
			ChatID:    bf.ChatID,
			Question:  bf.Question,
			Options:   bf.Options,
			Status:    bf.Status,
		}, true
	}
	return nil, false
}

// MarkSent flips a request's status to "sent" once the Renderer has
// rendered the inline keyboard.
func (f *FileButtonChannel) MarkSent(ctx context.Context, requestID string) error {
	return f.setStatus(requestID, ports.ButtonSent, "")
}

// MarkAnswered flips a request's status to "answered" and records the
// selected option. No chat transport calls it: the Telegram callback
// handler only answers the callback query, so a button selection is neither
// recorded here nor passed on to the agent.
func (f *FileButtonChannel) MarkAnswered(ctx context.Context, requestID, answer string) error {
	return f.setStatus(requestID, ports.ButtonAnswered, answer)
}

func (f *FileButtonChannel) setStatus(requestID string, status ports.ButtonStatus, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := filepath.Join(f.dir, fmt.Sprintf("ask-user-%s.json", requestID))
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var bf buttonFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return err
	}
	bf.Status = status
	if answer != "" {
		bf.Answer = answer
	}
	out, err := json.MarshalIndent(bf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func matchesAskUserFile(name string) bool {
	const prefix, suffix = "ask-user-", ".json"
	return len(name) > len(prefix)+len(suffix) && name[:len(prefix)] == prefix && name[len(name)-len(suffix):] == suffix
}
