package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/clawbridge/internal/cron"
	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/runner"
)

// EnqueueCronFire is called by the cron tick loop when a job is due. If the
// chat's session is idle and the per-hour cap allows it, the job runs
// immediately; otherwise it joins pending[], per spec.md's cron-queueing
// rule.
func (c *Coordinator) EnqueueCronFire(ctx context.Context, chatID string, job cron.Job) {
	entry := c.entryFor(chatID)

	entry.mu.Lock()
	busy := entry.session != nil && isBusy(entry.session.State())
	entry.mu.Unlock()

	if !busy && c.CronQueue != nil && c.CronQueue.TryBeginExecution(time.Now()) {
		c.runCronJob(ctx, chatID, job)
		return
	}

	if c.CronQueue != nil {
		c.CronQueue.Enqueue(job, time.Now())
	}
}

// drainPending pops one pending cron entry (if any) once a chat's session
// finishes a Query, per spec.md's "on session completion, pop one pending
// entry and execute" rule.
func (c *Coordinator) drainPending(ctx context.Context, chatID string) {
	if c.CronQueue == nil {
		return
	}
	entry, ok := c.CronQueue.Pop()
	if !ok {
		return
	}
	if !c.CronQueue.TryBeginExecution(time.Now()) {
		// Per-hour cap still saturated: put it back; retried on the next
		// session completion.
		c.CronQueue.Enqueue(entry.Job, entry.At)
		return
	}
	c.runCronJob(ctx, chatID, entry.Job)
}

func (c *Coordinator) runCronJob(ctx context.Context, chatID string, job cron.Job) {
	defer c.CronQueue.EndExecution()

	entry := c.entryFor(chatID)
	entry.mu.Lock()
	sess := entry.session
	if sess == nil {
		sess = runner.NewSession(c.WorkingDir)
		entry.session = sess
	}
	entry.mu.Unlock()

	req := runner.Request{
		Session:        sess,
		Prompt:         job.Prompt,
		ChatID:         chatID,
		Emit:           func(runner.StatusEvent) {}, // cron runs have no renderer target
		Model:          c.Model,
		SystemPreamble: c.SystemPreamble,
		AllowedDirs:    c.AllowedDirs,
		MCPConfigPath:  c.MCPConfigPath,
	}

	_, runErr := c.Runner.Run(ctx, req)

	if c.Messaging != nil && job.Notify {
		switch {
		case runErr != nil:
			c.notifyUser(ctx, chatID, "cron job "+job.Name+" failed: "+runErr.Error())
		default:
			c.notifyUser(ctx, chatID, "cron job "+job.Name+" completed")
		}
	}

	if c.Audit != nil {
		_ = c.Audit.Append(ctx, ports.AuditEvent{
			RequestID: uuid.NewString(),
			Timestamp: time.Now(),
			Type:      ports.AuditMessage,
			Input:     "cron:" + job.Name,
		})
	}
}
