package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/persistence"
	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/runner"
)

// loadedContextSentinel is the string the synthesized load prompt's
// response must contain for the handoff to be considered verified.
const loadedContextSentinel = "Loaded Context:"

// synthesizedLoadPrompt is sent to the agent when a valid .last-save-id is
// found at startup.
const synthesizedLoadPrompt = "Load the most recently saved context and reply beginning with the exact line \"Loaded Context:\" followed by a short summary."

// RunSaveLoadHandoff implements spec.md §4.4's save/load handoff: on
// startup, if <working_dir>/.last-save-id exists and is well-formed, issue
// a synthesized load prompt, verify the sentinel, delete the handoff file,
// and enable the restore cooldown.
func (c *Coordinator) RunSaveLoadHandoff(ctx context.Context, chatID string) error {
	path := filepath.Join(c.WorkingDir, ".last-save-id")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	saveID := strings.TrimSpace(string(data))
	if !persistence.ValidSaveID(saveID) {
		return os.Remove(path)
	}

	entry := c.entryFor(chatID)
	entry.mu.Lock()
	sess := entry.session
	if sess == nil {
		sess = runner.NewSession(c.WorkingDir)
		entry.session = sess
	}
	entry.mu.Unlock()

	reply, runErr := c.Runner.Run(ctx, runner.Request{
		Session: sess,
		Prompt:  synthesizedLoadPrompt,
		ChatID:  chatID,
		Emit:    func(runner.StatusEvent) {},
	})
	if runErr != nil {
		return fmt.Errorf("coordinator: load handoff query failed: %w", runErr)
	}
	if !strings.Contains(reply, loadedContextSentinel) {
		return fmt.Errorf("coordinator: load handoff reply missing sentinel %q", loadedContextSentinel)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	sess.RecentlyRestored = true
	sess.MessagesSinceRestore = 0
	sess.Warnings = runner.WarningFlags{}
	return nil
}

// synthesizedSavePrompt is sent to the agent once the save threshold
// (spec.md §4.5's 90%) is crossed, asking it to persist a resumable
// summary of its own progress before context runs out.
const synthesizedSavePrompt = "Context is approaching its limit. Save a concise summary of the current task and progress so the session can be resumed later, and reply beginning with the exact line \"Context Saved:\" followed by a short summary."

// savedContextSentinel is the string the synthesized save prompt's
// response must contain for the handoff file to be written.
const savedContextSentinel = "Context Saved:"

// runAutoSave implements the write half of spec.md §4.5's save/load
// handoff: once CheckBudget reports the save threshold crossed, issue the
// synthesized save prompt and, on a verified reply, stamp
// <working_dir>/.last-save-id so a future startup's RunSaveLoadHandoff
// picks it up.
func (c *Coordinator) runAutoSave(ctx context.Context, entry *chatEntry, sess *runner.Session, chatID string) {
	reply, runErr := c.Runner.Run(ctx, runner.Request{
		Session: sess,
		Prompt:  synthesizedSavePrompt,
		ChatID:  chatID,
		Emit:    func(runner.StatusEvent) {},
	})
	if runErr != nil {
		slog.Warn("coordinator: auto-save prompt failed", "chat_id", chatID, "error", runErr)
		return
	}
	if !strings.Contains(reply, savedContextSentinel) {
		slog.Warn("coordinator: auto-save reply missing sentinel", "chat_id", chatID)
		return
	}

	stamp := time.Now().Format("20060102_150405")
	path := filepath.Join(c.WorkingDir, ".last-save-id")
	if err := os.WriteFile(path, []byte(stamp), 0o644); err != nil {
		slog.Warn("coordinator: write .last-save-id failed", "error", err)
	}
}

// WriteRestartContext is called from the SIGTERM handler: it writes a
// short restart-context Markdown file under
// <working_dir>/docs/tasks/save/restart-context-<timestamp>.md before the
// process exits, per spec.md's "On SIGTERM, write a short restart-context
// Markdown file" rule.
func (c *Coordinator) WriteRestartContext(chatID string, now time.Time) error {
	dir := filepath.Join(c.WorkingDir, "docs", "tasks", "save")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	entry := c.entryFor(chatID)
	entry.mu.Lock()
	sess := entry.session
	entry.mu.Unlock()

	var sessionID string
	var usage runner.UsageCounters
	if sess != nil {
		sessionID = sess.SessionID
		usage = sess.Usage
	}

	stamp := now.Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("restart-context-%s.md", stamp))

	content := fmt.Sprintf(`# Restart context

- session_id: %s
- chat_id: %s
- saved_at: %s
- queries: %d
- input_tokens: %d
- output_tokens: %d
`, sessionID, chatID, now.Format(time.RFC3339), usage.Queries, usage.InputTokens, usage.OutputTokens)

	return os.WriteFile(path, []byte(content), 0o644)
}

// CheckRestartPointer is called on startup: if a restart pointer exists and
// is recent (< 30s old), edit that message to "Bot restarted" and clear the
// pointer.
func (c *Coordinator) CheckRestartPointer(ctx context.Context) {
	if c.Store == nil || c.Messaging == nil {
		return
	}
	ptr, ok, err := c.Store.LoadRestartPointer()
	if err != nil || !ok {
		return
	}
	if time.Since(ptr.Timestamp) >= 30*time.Second {
		_ = c.Store.ClearRestartPointer()
		return
	}
	_ = c.Messaging.EditText(ctx, ports.MessageHandle{ChatID: ptr.ChatID, MessageID: ptr.MessageID}, "Bot restarted", false)
	_ = c.Store.ClearRestartPointer()
}
