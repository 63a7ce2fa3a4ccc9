package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/safety"
)

// WaitingForSelectionSentinel is returned by Run when an interactive button
// request was surfaced and the query short-circuited.
const WaitingForSelectionSentinel = "[Waiting for user selection]"

// ButtonToolPrefix identifies ToolUse events that hand off to the
// auxiliary button-question server.
const ButtonToolPrefix = "mcp__ask_user__"

// softWallClockCeiling is the default Query timeout, enforced externally to
// the decode loop (§5 Timeouts).
const softWallClockCeiling = 3 * time.Minute

// Checkpoint persists session/usage state. Implemented by
// internal/persistence; kept as a narrow function type here to avoid a
// runner → persistence import cycle.
type Checkpoint func(ctx context.Context, s *Session)

// Runner is the Session Runner: it owns the Model port, the Safety Kernel,
// and the checkpoint/button-channel side-channels every Run() call touches.
type Runner struct {
	Model         ports.Model
	Safety        *safety.Kernel
	Checkpoint    Checkpoint
	ButtonChannel ports.ButtonChannel
	QueryTimeout  time.Duration
	tracer        trace.Tracer
}

// New constructs a Runner.
func New(model ports.Model, kernel *safety.Kernel, checkpoint Checkpoint, buttons ports.ButtonChannel) *Runner {
	timeout := softWallClockCeiling
	return &Runner{
		Model:         model,
		Safety:        kernel,
		Checkpoint:    checkpoint,
		ButtonChannel: buttons,
		QueryTimeout:  timeout,
		tracer:        otel.Tracer("clawbridge/runner"),
	}
}

// Request parameterizes one Run() call.
type Request struct {
	Session        *Session
	Prompt         string
	Actor          safety.UserID
	ChatID         string
	Emit           func(StatusEvent)
	Model          string
	ThinkingBudget ThinkingBudget
	SystemPreamble string
	AllowedDirs    []string
	MCPConfigPath  string
}

// Run implements the Session Runner contract: run(prompt, actor, chat,
// emit) → Result<String, RunError>. It spawns or resumes the agent,
// decodes its event stream, enforces the Safety Kernel per event,
// segments text into StatusEvents, drains steering at tool boundaries, and
// checkpoints usage on completion.
func (r *Runner) Run(ctx context.Context, req Request) (string, *RunError) {
	sess := req.Session

	sess.setState(StateProcessing)
	if sess.stopRequestedSnapshot() {
		sess.setState(StateCancelled)
		return "", newCancelled()
	}

	runCtx, cancel := context.WithTimeout(ctx, r.QueryTimeout)
	defer cancel()

	runCtx, span := r.tracer.Start(runCtx, "runner.run", trace.WithAttributes(
		attribute.String("chat_id", req.ChatID),
		attribute.Int64("actor", int64(req.Actor)),
	))
	defer span.End()

	handle, err := r.spawnOrResume(runCtx, sess, req)
	if err != nil {
		sess.setState(StateFailed)
		return "", &RunError{Kind: ErrAgentSpawn, Reason: err.Error()}
	}

	var stopped atomic.Bool
	sess.mu.Lock()
	sess.cancelFn = func() { stopped.Store(true); r.Model.Cancel(handle) }
	sess.mu.Unlock()
	sess.setState(StateRunning)

	if err := r.Model.Send(runCtx, handle, req.Prompt); err != nil {
		sess.setState(StateFailed)
		return "", &RunError{Kind: ErrAgentSpawn, Reason: err.Error()}
	}

	segmenter := NewSegmenter()
	var finalText strings.Builder
	var runErr *RunError

eventLoop:
	for ev := range r.Model.Stream(handle) {
		if ev.Err != nil {
			if stopped.Load() {
				slog.WarnContext(runCtx, "runner: agent error after cancellation, ignoring", "error", ev.Err)
				runErr = newCancelled()
				break
			}
			runErr = r.classifyProcessError(ev.Err)
			break
		}

		switch ev.Kind {
		case ports.EventSessionInit:
			if sess.SessionID == "" {
				sess.SessionID = ev.SessionID
				if r.Checkpoint != nil {
					r.Checkpoint(runCtx, sess)
				}
			}

		case ports.EventAssistantThinking:
			req.Emit(segmenter.OnThinking(ev.TextDelta))

		case ports.EventAssistantText:
			finalText.WriteString(ev.TextDelta)
			if out := segmenter.OnText(ev.TextDelta); out != nil {
				out.Content = SanitizeSegmentText(out.Content)
				req.Emit(*out)
			}

		case ports.EventToolUse:
			if v := r.handleToolUse(runCtx, sess, req, handle, ev, segmenter); v != nil {
				if v.sentinel {
					finalText.Reset()
					finalText.WriteString(WaitingForSelectionSentinel)
					break eventLoop
				}
				runErr = v.err
				break eventLoop
			}

		case ports.EventToolProgress:
			// progress lines are informational only; no StatusEvent defined for them.

		case ports.EventResult:
			sess.Usage.Add(UsageCounters{
				InputTokens:  ev.Usage.InputTokens,
				OutputTokens: ev.Usage.OutputTokens,
				CacheRead:    ev.Usage.CacheRead,
				CacheCreate:  ev.Usage.CacheCreate,
				Queries:      1,
			})
			if r.Checkpoint != nil {
				r.Checkpoint(runCtx, sess)
			}

		case ports.EventUnknown:
			slog.DebugContext(runCtx, "runner: unrecognized agent event, ignoring", "raw", ev.Raw)
		}
	}

	for _, se := range segmenter.Finish() {
		req.Emit(se)
	}

	sess.mu.Lock()
	sess.cancelFn = nil
	sess.mu.Unlock()

	if runErr != nil {
		sess.setState(StateFailed)
		span.RecordError(runErr)
		return finalText.String(), runErr
	}

	sess.setState(StateDone)
	return finalText.String(), nil
}

func (s *Session) stopRequestedSnapshot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

func (r *Runner) spawnOrResume(ctx context.Context, sess *Session, req Request) (ports.Handle, error) {
	opts := ports.SessionOpts{
		WorkingDir:     sess.WorkingDir,
		Model:          req.Model,
		ThinkingBudget: int(req.ThinkingBudget),
		SystemPreamble: req.SystemPreamble,
		AllowedDirs:    req.AllowedDirs,
		MCPConfigPath:  req.MCPConfigPath,
	}
	if sess.SessionID != "" {
		return r.Model.Resume(ctx, sess.SessionID, opts)
	}
	return r.Model.Start(ctx, opts)
}

type toolOutcome struct {
	sentinel bool
	err      *RunError
}

// handleToolUse performs the per-event policy enforcement (§4.1): Bash
// commands go through check_command, file tools go through
// is_path_allowed, and the button-tool prefix triggers the auxiliary
// button-question handoff. It also drains the steering buffer immediately
// before emitting the tool status, per spec.
func (r *Runner) handleToolUse(ctx context.Context, sess *Session, req Request, handle ports.Handle, ev ports.Event, segmenter *Segmenter) *toolOutcome {
	if joined := sess.Steering.Drain(); joined != "" {
		if err := injectSteering(handle, joined); err != nil {
			slog.Warn("runner: failed to inject steering frame", "error", err)
		}
	}

	switch {
	case ev.ToolName == "Bash":
		command, _ := ev.ToolInput["command"].(string)
		if ok, reason := r.Safety.CheckCommand(command, sess.WorkingDir); !ok {
			for _, se := range segmenter.OnToolUse(fmt.Sprintf("BLOCKED: %s", reason)) {
				req.Emit(se)
			}
			return &toolOutcome{err: newPolicyViolation(reason)}
		}

	case ev.ToolName == "Read" || ev.ToolName == "Write" || ev.ToolName == "Edit":
		path, _ := ev.ToolInput["file_path"].(string)
		if ev.ToolName == "Read" && isExemptReadPath(path) {
			break
		}
		if !r.Safety.IsPathAllowed(path) {
			for _, se := range segmenter.OnToolUse(fmt.Sprintf("BLOCKED: path %q not allowed", path)) {
				req.Emit(se)
			}
			return &toolOutcome{err: newPolicyViolation(fmt.Sprintf("path %q not allowed", path))}
		}

	case strings.HasPrefix(ev.ToolName, ButtonToolPrefix):
		for _, se := range segmenter.OnToolUse(ev.ToolName) {
			req.Emit(se)
		}
		if r.pollButtonRequest(ctx, req) {
			return &toolOutcome{sentinel: true}
		}
		return nil
	}

	for _, se := range segmenter.OnToolUse(ev.ToolName) {
		req.Emit(se)
	}
	return nil
}

// isExemptReadPath allows Read from any .../.claude/... path regardless of
// allowed_paths. Read from a temp_paths prefix needs no exemption here:
// IsPathAllowed already accepts those prefixes.
func isExemptReadPath(path string) bool {
	return strings.Contains(path, "/.claude/")
}

// pollButtonRequest retries the well-known ≈200+100+100ms window for the
// auxiliary server to have written the button-request file.
func (r *Runner) pollButtonRequest(ctx context.Context, req Request) bool {
	if r.ButtonChannel == nil {
		return false
	}
	delays := []time.Duration{200 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}
	for _, d := range delays {
		time.Sleep(d)
		breq, ok := r.ButtonChannel.Poll(ctx, req.ChatID)
		if !ok {
			continue
		}
		buttons := make([]string, len(breq.Options))
		copy(buttons, breq.Options)
		req.Emit(StatusEvent{Kind: StatusTool, Content: breq.Question})
		if err := r.ButtonChannel.MarkSent(ctx, breq.RequestID); err != nil {
			slog.Warn("runner: failed to mark button request sent", "error", err)
		}
		req.Emit(StatusEvent{Kind: StatusDone})
		return true
	}
	return false
}

func injectSteering(handle ports.Handle, joined string) error {
	type steerer interface {
		InjectSteering(string) error
	}
	if s, ok := handle.(steerer); ok {
		return s.InjectSteering(joined)
	}
	return fmt.Errorf("runner: handle does not support steering injection")
}

// classifyProcessError maps a process-level error surfaced as an
// ports.Event.Err into the spec's error taxonomy. Agent process crash is
// retryable once by the caller (text-message handler); all else surfaces
// as-is.
func (r *Runner) classifyProcessError(err error) *RunError {
	return newAgentCrash(0, err.Error())
}
