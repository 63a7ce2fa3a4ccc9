package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/nextlevelbuilder/clawbridge/internal/cron"
	"github.com/nextlevelbuilder/clawbridge/internal/persistence"
	"github.com/nextlevelbuilder/clawbridge/internal/runner"
)

// handleCommand dispatches one of the in-band "/" commands. Commands always
// bypass the per-chat FIFO and run synchronously with respect to the
// caller, per spec.md §4.4.
func (c *Coordinator) handleCommand(ctx context.Context, in Inbound, trimmed string) {
	fields := strings.Fields(trimmed)
	name := fields[0]
	args := fields[1:]

	switch name {
	case "/start", "/help":
		c.notifyUser(ctx, in.ChatID, helpText)
	case "/stop":
		c.cmdStop(ctx, in)
	case "/new":
		c.cmdNew(ctx, in)
	case "/status":
		c.cmdStatus(ctx, in)
	case "/stats":
		c.cmdStats(ctx, in)
	case "/context":
		c.cmdContext(ctx, in)
	case "/resume":
		c.cmdResume(ctx, in)
	case "/restart":
		c.cmdRestart(ctx, in)
	case "/retry":
		c.cmdRetry(ctx, in)
	case "/cron":
		c.cmdCron(ctx, in, args)
	default:
		c.notifyUser(ctx, in.ChatID, "unrecognized command: "+name)
	}
}

const helpText = "Commands: /new /stop /status /stats /context /resume /restart /retry /cron [reload|at <timestamp> <prompt>]"

// cmdStop calls Session.stop() and returns silently, per spec.md's "/stop
// calls Session.stop() and silently returns".
func (c *Coordinator) cmdStop(ctx context.Context, in Inbound) {
	entry := c.entryFor(in.ChatID)
	entry.mu.Lock()
	sess := entry.session
	entry.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
}

// cmdNew stops (if running), waits briefly, then resets the session.
func (c *Coordinator) cmdNew(ctx context.Context, in Inbound) {
	entry := c.entryFor(in.ChatID)
	entry.mu.Lock()
	sess := entry.session
	entry.mu.Unlock()
	if sess == nil {
		return
	}
	if isBusy(sess.State()) {
		sess.Stop()
		deadline := time.Now().Add(interruptWaitCeiling)
		for time.Now().Before(deadline) && isBusy(sess.State()) {
			time.Sleep(50 * time.Millisecond)
		}
	}
	sess.Reset()
	c.notifyUser(ctx, in.ChatID, "Started a new session.")
}

// cmdStatus is a snapshot read of Session fields, per spec.md §5's "reads
// from other tasks are snapshot reads" shared-state rule.
func (c *Coordinator) cmdStatus(ctx context.Context, in Inbound) {
	entry := c.entryFor(in.ChatID)
	entry.mu.Lock()
	sess := entry.session
	entry.mu.Unlock()
	if sess == nil {
		c.notifyUser(ctx, in.ChatID, "No active session.")
		return
	}
	c.notifyUser(ctx, in.ChatID, fmt.Sprintf(
		"session_id=%s state=%d queries=%d", sess.SessionID, sess.State(), sess.Usage.Queries,
	))
}

func (c *Coordinator) cmdStats(ctx context.Context, in Inbound) {
	entry := c.entryFor(in.ChatID)
	entry.mu.Lock()
	sess := entry.session
	entry.mu.Unlock()
	if sess == nil {
		c.notifyUser(ctx, in.ChatID, "No active session.")
		return
	}
	c.notifyUser(ctx, in.ChatID, fmt.Sprintf(
		"input=%d output=%d cache_read=%d cache_create=%d queries=%d",
		sess.Usage.InputTokens, sess.Usage.OutputTokens, sess.Usage.CacheRead, sess.Usage.CacheCreate, sess.Usage.Queries,
	))
}

func (c *Coordinator) cmdContext(ctx context.Context, in Inbound) {
	entry := c.entryFor(in.ChatID)
	entry.mu.Lock()
	sess := entry.session
	entry.mu.Unlock()
	if sess == nil {
		c.notifyUser(ctx, in.ChatID, "No active session.")
		return
	}
	total := sess.Usage.Total()
	c.notifyUser(ctx, in.ChatID, fmt.Sprintf("context used: %d/%d tokens", total, 200_000))
}

// cmdResume restores a session from persisted storage if working_dir
// matches, per spec.md's "restored from disk on /resume only if
// working_dir matches current" invariant.
func (c *Coordinator) cmdResume(ctx context.Context, in Inbound) {
	if c.Store == nil {
		c.notifyUser(ctx, in.ChatID, "no persistence backend configured")
		return
	}
	record, ok, err := c.Store.LoadSession(c.WorkingDir)
	if err != nil || !ok {
		c.notifyUser(ctx, in.ChatID, "no matching session to resume")
		return
	}

	entry := c.entryFor(in.ChatID)
	entry.mu.Lock()
	sess := runner.NewSession(c.WorkingDir)
	sess.SessionID = record.SessionID
	sess.Usage = runner.UsageCounters{
		InputTokens:  record.TotalInputTokens,
		OutputTokens: record.TotalOutputTokens,
		Queries:      record.TotalQueries,
	}
	entry.session = sess
	entry.mu.Unlock()

	c.notifyUser(ctx, in.ChatID, "Resumed session "+record.SessionID)
}

// cmdRestart writes the restart-message pointer and replies "Restarting...".
// It does not stop the process: the Coordinator never calls os.Exit, and
// nothing in cmd/root.go reacts to /restart.
func (c *Coordinator) cmdRestart(ctx context.Context, in Inbound) {
	if c.Store != nil {
		_ = c.Store.SaveRestartPointer(persistence.RestartPointer{
			ChatID:    in.ChatID,
			MessageID: in.UserMsgHandle.MessageID,
			Timestamp: time.Now(),
		})
	}
	c.notifyUser(ctx, in.ChatID, "Restarting...")
}

// cmdRetry reruns the session's last_message.
func (c *Coordinator) cmdRetry(ctx context.Context, in Inbound) {
	entry := c.entryFor(in.ChatID)
	entry.mu.Lock()
	sess := entry.session
	entry.mu.Unlock()
	if sess == nil || sess.LastMessage == "" {
		c.notifyUser(ctx, in.ChatID, "nothing to retry")
		return
	}
	c.handleNormal(ctx, in, sess.LastMessage)
}

// cmdCron handles "/cron" (status), "/cron reload" (forces a manifest
// reload outside the fsnotify watch), and "/cron at <timestamp> <prompt>"
// (a one-off job fired once at a loosely-formatted timestamp, parsed with
// dateparse since operators type these by hand in whatever format they're
// used to rather than strict RFC3339).
func (c *Coordinator) cmdCron(ctx context.Context, in Inbound, args []string) {
	if len(args) > 0 && args[0] == "reload" && c.CronManifest != nil {
		if err := c.CronManifest.Reload(); err != nil {
			c.notifyUser(ctx, in.ChatID, "cron reload failed: "+err.Error())
			return
		}
		c.notifyUser(ctx, in.ChatID, "cron manifest reloaded")
		return
	}
	if len(args) > 1 && args[0] == "at" {
		c.cmdCronAt(ctx, in, args[1:])
		return
	}
	if c.CronManifest == nil {
		c.notifyUser(ctx, in.ChatID, "no cron manifest loaded")
		return
	}
	jobs := c.CronManifest.Jobs()
	c.notifyUser(ctx, in.ChatID, fmt.Sprintf("%d cron job(s) enabled", len(jobs)))
}

func (c *Coordinator) cmdCronAt(ctx context.Context, in Inbound, args []string) {
	when, err := dateparse.ParseAny(args[0])
	if err != nil {
		c.notifyUser(ctx, in.ChatID, "couldn't parse timestamp: "+err.Error())
		return
	}
	prompt := strings.Join(args[1:], " ")
	if prompt == "" {
		c.notifyUser(ctx, in.ChatID, "usage: /cron at <timestamp> <prompt>")
		return
	}
	delay := time.Until(when)
	if delay < 0 {
		c.notifyUser(ctx, in.ChatID, "that timestamp is in the past")
		return
	}

	job := cron.Job{Name: "one-off@" + when.Format(time.RFC3339), Prompt: prompt, Enabled: true, Notify: true}
	c.notifyUser(ctx, in.ChatID, fmt.Sprintf("scheduled for %s", when.Format(time.RFC3339)))
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			c.EnqueueCronFire(context.Background(), in.ChatID, job)
		}
	}()
}
