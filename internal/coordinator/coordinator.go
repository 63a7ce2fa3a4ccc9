// Package coordinator implements the Concurrency Coordinator: per-chat
// message serialization, interrupt and steering semantics, command
// handling, media-group buffering, cron queueing, and the save/load
// handoff. It is the glue between a chat-transport adapter, the Session
// Runner, and the Streaming Renderer, grounded on the teacher's
// internal/channels.Manager run-tracking pattern (one entry per in-flight
// unit of work, looked up by a string key, guarded by its own mutex).
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/clawbridge/internal/cron"
	"github.com/nextlevelbuilder/clawbridge/internal/extract"
	"github.com/nextlevelbuilder/clawbridge/internal/persistence"
	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/renderer"
	"github.com/nextlevelbuilder/clawbridge/internal/runner"
	"github.com/nextlevelbuilder/clawbridge/internal/safety"
)

// interruptWaitCeiling bounds how long the "!" handler waits for the
// processing flag to clear before proceeding anyway, per spec.md §4.4.
const interruptWaitCeiling = 2 * time.Second

// Inbound is one chat-platform message routed to the Coordinator.
type Inbound struct {
	ChatID        string
	UserID        safety.UserID
	Username      string
	Text          string
	UserMsgHandle ports.MessageHandle
	MediaGroupID  string

	// AttachmentPath/AttachmentKind identify a locally-downloaded voice
	// note, photo or document ("voice", "image", "pdf", "archive") a channel adapter
	// classified before dispatch; resolveAttachment turns it into text
	// folded into the prompt ahead of the agent invocation.
	AttachmentPath string
	AttachmentKind string
}

// chatEntry is the per-chat serialization unit: one Session, one mutex, and
// the one-shot "was interrupted" flag that suppresses the Cancelled
// error's user-visible notice when the cancellation was self-inflicted.
type chatEntry struct {
	mu              sync.Mutex
	session         *runner.Session
	wasInterrupted  bool
	retriedOnCrash  bool
}

// Coordinator owns one Runner, one Safety Kernel, and the chat-keyed
// session table; it is the single entry point chat-transport adapters call
// into for every inbound update.
type Coordinator struct {
	Runner    *runner.Runner
	Safety    *safety.Kernel
	Messaging ports.Messaging
	Store     persistence.Store
	Audit     ports.Audit
	Options   renderer.Options
	CronQueue    *cron.Queue
	CronManifest *cron.ManifestLoader

	Transcription ports.Transcription
	PDFExtractor  extract.Extractor
	ExtractDir    string

	WorkingDir     string
	Model          string
	SystemPreamble string
	AllowedDirs    []string
	MCPConfigPath  string
	DeepKeywords   []string
	Keywords       []string

	mu    sync.Mutex
	chats map[string]*chatEntry

	media *mediaGroupBuffer
}

// New builds a Coordinator. The media-group buffer is started eagerly
// since it owns its own background timers.
func New() *Coordinator {
	c := &Coordinator{chats: make(map[string]*chatEntry)}
	c.media = newMediaGroupBuffer(time.Second, c.dispatchMerged)
	return c
}

func (c *Coordinator) entryFor(chatID string) *chatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.chats[chatID]
	if !ok {
		e = &chatEntry{}
		c.chats[chatID] = e
	}
	return e
}

// Dispatch routes one inbound chat message: commands and "!"-interrupts
// bypass the per-chat FIFO and run immediately; plain messages either start
// a new Query or, if one is already running, are folded into the session's
// steering buffer — which is what gives "normal messages processed in
// arrival order" its actual shape, since a second in-flight Query per chat
// never exists.
func (c *Coordinator) Dispatch(ctx context.Context, in Inbound) {
	if in.MediaGroupID != "" {
		c.media.add(in)
		return
	}

	if in.AttachmentKind != "" {
		resolved, err := c.resolveAttachment(ctx, in)
		if err != nil {
			c.notifyUser(ctx, in.ChatID, "Couldn't read that attachment: "+err.Error())
			if c.Audit != nil {
				_ = c.Audit.Append(ctx, ports.AuditEvent{
					RequestID: uuid.NewString(),
					Timestamp: time.Now(), UserID: strconv.FormatInt(int64(in.UserID), 10), Username: in.Username,
					Type: ports.AuditError, Input: in.AttachmentKind, Output: err.Error(),
				})
			}
			return
		}
		in.Text = strings.TrimSpace(in.Text + "\n" + resolved)
	}

	trimmed := strings.TrimSpace(in.Text)
	switch {
	case strings.HasPrefix(trimmed, "/"):
		c.handleCommand(ctx, in, trimmed)
	case strings.HasPrefix(trimmed, "!"):
		c.handleInterrupt(ctx, in, strings.TrimSpace(strings.TrimPrefix(trimmed, "!")))
	default:
		c.handleNormal(ctx, in, trimmed)
	}
}

func (c *Coordinator) dispatchMerged(in Inbound) {
	c.Dispatch(context.Background(), in)
}

func (c *Coordinator) handleInterrupt(ctx context.Context, in Inbound, stripped string) {
	entry := c.entryFor(in.ChatID)

	entry.mu.Lock()
	sess := entry.session
	entry.mu.Unlock()

	if sess != nil && isBusy(sess.State()) {
		sess.Stop()
		deadline := time.Now().Add(interruptWaitCeiling)
		for time.Now().Before(deadline) && isBusy(sess.State()) {
			time.Sleep(50 * time.Millisecond)
		}
		entry.mu.Lock()
		entry.wasInterrupted = true
		entry.mu.Unlock()
	}

	c.handleNormal(ctx, in, stripped)
}

func (c *Coordinator) handleNormal(ctx context.Context, in Inbound, text string) {
	entry := c.entryFor(in.ChatID)

	entry.mu.Lock()
	sess := entry.session
	if sess != nil && isBusy(sess.State()) {
		sess.Steering.Enqueue(text)
		entry.mu.Unlock()
		c.ackSteering(ctx, in)
		return
	}
	if sess == nil {
		sess = runner.NewSession(c.WorkingDir)
		entry.session = sess
	}
	entry.mu.Unlock()

	go c.runQuery(ctx, entry, sess, in, text)
}

func isBusy(s runner.State) bool {
	return s == runner.StateProcessing || s == runner.StateRunning
}

func (c *Coordinator) ackSteering(ctx context.Context, in Inbound) {
	if !c.Options.ReactionsEnabled {
		return
	}
	if err := c.Messaging.SetReaction(ctx, in.UserMsgHandle, "👀"); err != nil {
		slog.Debug("coordinator: steering ack reaction failed", "error", err)
	}
}

func (c *Coordinator) runQuery(ctx context.Context, entry *chatEntry, sess *runner.Session, in Inbound, text string) {
	render := renderer.NewRequest(c.Messaging, in.ChatID, in.UserMsgHandle, c.Options)
	thinking := runner.ChooseThinkingBudget(text, c.DeepKeywords, c.Keywords)

	req := runner.Request{
		Session:        sess,
		Prompt:         text,
		Actor:          in.UserID,
		ChatID:         in.ChatID,
		Emit:           func(ev runner.StatusEvent) { render.Handle(ctx, ev) },
		Model:          c.Model,
		ThinkingBudget: thinking,
		SystemPreamble: c.SystemPreamble,
		AllowedDirs:    c.AllowedDirs,
		MCPConfigPath:  c.MCPConfigPath,
	}

	_, runErr := c.Runner.Run(ctx, req)

	entry.mu.Lock()
	interrupted := entry.wasInterrupted
	entry.wasInterrupted = false
	entry.mu.Unlock()

	if runErr != nil {
		c.handleRunError(ctx, entry, sess, in, text, runErr, interrupted)
		return
	}

	sess.LastMessage = text
	entry.mu.Lock()
	entry.retriedOnCrash = false
	entry.mu.Unlock()

	c.checkBudget(ctx, entry, sess, in.ChatID)
	c.drainPending(ctx, in.ChatID)
}

// checkBudget implements spec.md §4.5's context-budget alarms: it advances
// the restore cooldown, then runs CheckBudget against the session's
// cumulative usage. A crossed 70/85/95 threshold is surfaced as a plain
// warning; crossing the save threshold triggers the auto-save handoff.
func (c *Coordinator) checkBudget(ctx context.Context, entry *chatEntry, sess *runner.Session, chatID string) {
	if sess.RecentlyRestored {
		sess.MessagesSinceRestore++
		if sess.MessagesSinceRestore >= persistence.CooldownN {
			sess.RecentlyRestored = false
		}
	}

	for _, name := range persistence.CheckBudget(sess.Usage, &sess.Warnings, sess.RecentlyRestored) {
		switch name {
		case "70", "85", "95":
			c.notifyUser(ctx, chatID, fmt.Sprintf("Context usage has crossed %s%% of the limit.", name))
		case "save_required":
			c.runAutoSave(ctx, entry, sess, chatID)
		}
	}
}

// handleRunError implements the §7 Propagation table's per-kind handling
// that is the Coordinator's (rather than the Runner's) responsibility.
func (c *Coordinator) handleRunError(ctx context.Context, entry *chatEntry, sess *runner.Session, in Inbound, text string, runErr *runner.RunError, interrupted bool) {
	switch runErr.Kind {
	case runner.ErrCancelled:
		if interrupted {
			return
		}
		c.notifyUser(ctx, in.ChatID, "Query stopped")
	case runner.ErrAgentCrash:
		entry.mu.Lock()
		alreadyRetried := entry.retriedOnCrash
		entry.retriedOnCrash = true
		entry.mu.Unlock()
		if !alreadyRetried {
			sess.Reset()
			go c.runQuery(ctx, entry, sess, in, text)
			return
		}
		c.notifyUser(ctx, in.ChatID, "The agent crashed and the retry also failed.")
	case runner.ErrPolicyViolation:
		// Already reported inline as a tool status by the Runner; nothing
		// further to surface here besides the audit entry.
	default:
		c.notifyUser(ctx, in.ChatID, "Something went wrong: "+runErr.Error())
	}

	if c.Audit != nil {
		_ = c.Audit.Append(ctx, ports.AuditEvent{
			RequestID: uuid.NewString(),
			Timestamp: time.Now(),
			UserID:    strconv.FormatInt(int64(in.UserID), 10),
			Username:  in.Username,
			Type:      ports.AuditError,
			Input:     text,
			Output:    runErr.Error(),
		})
	}
}

func (c *Coordinator) notifyUser(ctx context.Context, chatID, text string) {
	if _, err := c.Messaging.SendText(ctx, chatID, text, false); err != nil {
		slog.Warn("coordinator: failed to notify user", "chat_id", chatID, "error", err)
	}
}
