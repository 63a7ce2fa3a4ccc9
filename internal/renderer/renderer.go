package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/runner"
)

// platformMsgLimit and safeChunkLimit are the default overflow-split
// thresholds (spec.md §4.2: "e.g., 4096 chars" / "e.g., 4000").
const (
	platformMsgLimit = 4096
	safeChunkLimit   = 4000
)

// Options configures renderer behavior for one chat.
type Options struct {
	ReactionsEnabled        bool
	CompletionFooterEnabled bool
	DeleteThinkingOnDone    bool
	DeleteToolStatusOnDone  bool
	ShowProgressIndicator   bool
}

// Request is per-run renderer state: ordered message handles keyed by
// segment id, tool-status/thinking handle lists, throttle bookkeeping, and
// a rate-limit-escalation flag.
type Request struct {
	mu sync.Mutex

	messaging ports.Messaging
	chatID    string
	userMsg   ports.MessageHandle
	opts      Options

	segmentHandles   map[int]ports.MessageHandle
	lastEditAt       map[int]time.Time
	lastSentContent  map[int]string
	toolHandles      []ports.MessageHandle
	thinkingHandles  []ports.MessageHandle
	progressHandle   *ports.MessageHandle
	startTime        time.Time
	rateLimited      bool
}

// NewRequest begins rendering for one Session Runner Run() call.
func NewRequest(messaging ports.Messaging, chatID string, userMsg ports.MessageHandle, opts Options) *Request {
	return &Request{
		messaging:       messaging,
		chatID:          chatID,
		userMsg:         userMsg,
		opts:            opts,
		segmentHandles:  make(map[int]ports.MessageHandle),
		lastEditAt:      make(map[int]time.Time),
		lastSentContent: make(map[int]string),
		startTime:       time.Now(),
	}
}

// Handle consumes one StatusEvent and mutates chat messages accordingly.
func (r *Request) Handle(ctx context.Context, ev runner.StatusEvent) {
	switch ev.Kind {
	case runner.StatusThinking:
		r.handleThinking(ctx, ev)
	case runner.StatusTool:
		r.handleTool(ctx, ev)
	case runner.StatusText:
		r.handleText(ctx, ev)
	case runner.StatusSegmentEnd:
		r.handleSegmentEnd(ctx, ev)
	case runner.StatusDone:
		r.handleDone(ctx)
	}
}

func (r *Request) handleThinking(ctx context.Context, ev runner.StatusEvent) {
	body, err := ToChatHTML(ev.Content)
	if err != nil {
		body = ev.Content
	}
	handle, err := r.messaging.SendText(ctx, r.chatID, body, true)
	if err != nil {
		r.notifyRateLimitIfApplicable(ctx, err)
		return
	}
	r.mu.Lock()
	r.thinkingHandles = append(r.thinkingHandles, handle)
	r.mu.Unlock()
	r.recreateProgressIndicator(ctx)
}

func (r *Request) handleTool(ctx context.Context, ev runner.StatusEvent) {
	body, err := ToChatHTML(ev.Content)
	if err != nil {
		body = ev.Content
	}
	handle, err := r.messaging.SendText(ctx, r.chatID, body, true)
	if err != nil {
		r.notifyRateLimitIfApplicable(ctx, err)
		return
	}
	r.mu.Lock()
	r.toolHandles = append(r.toolHandles, handle)
	r.mu.Unlock()
	if r.opts.ReactionsEnabled {
		r.setReactionBestEffort(ctx, r.userMsg, "working")
	}
	r.recreateProgressIndicator(ctx)
}

// handleText sends or edits the segment's interim message, skipping when the
// formatted content is unchanged. The per-segment time throttle is applied
// upstream: the Segmenter emits at most one text update per throttle window.
func (r *Request) handleText(ctx context.Context, ev runner.StatusEvent) {
	body, err := ToChatHTML(ev.Content)
	if err != nil {
		body = ev.Content
	}

	r.mu.Lock()
	if r.lastSentContent[ev.SegmentID] == body {
		r.mu.Unlock()
		return
	}
	handle, exists := r.segmentHandles[ev.SegmentID]
	r.mu.Unlock()

	if !exists {
		newHandle, err := r.messaging.SendText(ctx, r.chatID, body, true)
		if err != nil {
			r.notifyRateLimitIfApplicable(ctx, err)
			return
		}
		r.mu.Lock()
		r.segmentHandles[ev.SegmentID] = newHandle
		r.lastEditAt[ev.SegmentID] = time.Now()
		r.lastSentContent[ev.SegmentID] = body
		r.mu.Unlock()
		r.recreateProgressIndicator(ctx)
		return
	}

	if err := r.messaging.EditText(ctx, handle, body, true); err != nil {
		r.notifyRateLimitIfApplicable(ctx, err)
		return
	}
	r.mu.Lock()
	r.lastEditAt[ev.SegmentID] = time.Now()
	r.lastSentContent[ev.SegmentID] = body
	r.mu.Unlock()
}

// handleSegmentEnd applies the overflow-split policy: if the finalized
// segment exceeds the platform message limit, the tracked message is
// deleted and the content re-sent as ≤ safeChunkLimit chunks, with the last
// chunk's handle replacing the tracked handle for this segment.
func (r *Request) handleSegmentEnd(ctx context.Context, ev runner.StatusEvent) {
	body, err := ToChatHTML(ev.Content)
	if err != nil {
		body = ev.Content
	}

	if runewidth.StringWidth(body) <= platformMsgLimit {
		r.finalizeSegment(ctx, ev.SegmentID, body)
		return
	}

	r.mu.Lock()
	oldHandle, exists := r.segmentHandles[ev.SegmentID]
	r.mu.Unlock()
	if exists {
		if err := r.messaging.Delete(ctx, oldHandle); err != nil {
			slog.Debug("renderer: failed to delete message before overflow split", "error", err)
		}
	}

	chunks := splitOverflow(body, safeChunkLimit)
	var lastHandle ports.MessageHandle
	var lastChunk string
	for _, chunk := range chunks {
		h, err := r.messaging.SendText(ctx, r.chatID, chunk, true)
		if err != nil {
			r.notifyRateLimitIfApplicable(ctx, err)
			continue
		}
		lastHandle = h
		lastChunk = chunk
	}
	r.mu.Lock()
	r.segmentHandles[ev.SegmentID] = lastHandle
	r.lastSentContent[ev.SegmentID] = lastChunk
	r.mu.Unlock()
	r.recreateProgressIndicator(ctx)
}

func (r *Request) finalizeSegment(ctx context.Context, segmentID int, body string) {
	r.mu.Lock()
	handle, exists := r.segmentHandles[segmentID]
	r.mu.Unlock()
	if !exists {
		h, err := r.messaging.SendText(ctx, r.chatID, body, true)
		if err != nil {
			r.notifyRateLimitIfApplicable(ctx, err)
			return
		}
		r.mu.Lock()
		r.segmentHandles[segmentID] = h
		r.lastSentContent[segmentID] = body
		r.mu.Unlock()
		return
	}
	if err := r.messaging.EditText(ctx, handle, body, true); err != nil {
		r.notifyRateLimitIfApplicable(ctx, err)
		return
	}
	r.mu.Lock()
	r.lastSentContent[segmentID] = body
	r.mu.Unlock()
}

// handleDone applies the ephemeral-cleanup and completion-footer policies.
func (r *Request) handleDone(ctx context.Context) {
	if r.opts.DeleteThinkingOnDone {
		r.mu.Lock()
		handles := append([]ports.MessageHandle(nil), r.thinkingHandles...)
		r.mu.Unlock()
		for _, h := range handles {
			_ = r.messaging.Delete(ctx, h)
		}
	}
	if r.opts.DeleteToolStatusOnDone {
		r.mu.Lock()
		handles := append([]ports.MessageHandle(nil), r.toolHandles...)
		r.mu.Unlock()
		for _, h := range handles {
			_ = r.messaging.Delete(ctx, h)
		}
	}

	if r.opts.CompletionFooterEnabled {
		r.appendCompletionFooter(ctx)
	}

	if r.opts.ReactionsEnabled {
		r.setReactionBestEffort(ctx, r.userMsg, "completed")
	}

	if r.progressHandle != nil {
		_ = r.messaging.Delete(ctx, *r.progressHandle)
		r.progressHandle = nil
	}
}

func (r *Request) appendCompletionFooter(ctx context.Context) {
	r.mu.Lock()
	var lastSegment int = -1
	for id := range r.segmentHandles {
		if id > lastSegment {
			lastSegment = id
		}
	}
	if lastSegment < 0 {
		r.mu.Unlock()
		return
	}
	handle := r.segmentHandles[lastSegment]
	content := r.lastSentContent[lastSegment]
	elapsed := time.Since(r.startTime)
	r.mu.Unlock()

	footer := fmt.Sprintf("\n\n<i>%s → %s (%s)</i>", r.startTime.Format("15:04:05"), time.Now().Format("15:04:05"), formatElapsed(elapsed))
	if err := r.messaging.EditText(ctx, handle, content+footer, true); err != nil {
		slog.Debug("renderer: failed to append completion footer", "error", err)
	}
}

func formatElapsed(d time.Duration) string {
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

// recreateProgressIndicator recreates the bottom-progress indicator so it
// remains visually last, after any event that creates a new message.
func (r *Request) recreateProgressIndicator(ctx context.Context) {
	if !r.opts.ShowProgressIndicator {
		return
	}
	r.mu.Lock()
	old := r.progressHandle
	r.mu.Unlock()
	if old != nil {
		_ = r.messaging.Delete(ctx, *old)
	}
	h, err := r.messaging.SendText(ctx, r.chatID, "…", false)
	if err != nil {
		return
	}
	r.mu.Lock()
	r.progressHandle = &h
	r.mu.Unlock()
}

// setReactionBestEffort applies a reaction; failures are logged at debug,
// never retried (reactions are best-effort per spec).
func (r *Request) setReactionBestEffort(ctx context.Context, handle ports.MessageHandle, status string) {
	emoji := reactionEmoji(status)
	if err := r.messaging.SetReaction(ctx, handle, emoji); err != nil {
		slog.Debug("renderer: reaction failed", "status", status, "error", err)
	}
}

func reactionEmoji(status string) string {
	switch status {
	case "received":
		return "👀"
	case "working":
		return "🤔"
	case "completed":
		return "✅"
	case "waiting":
		return "⏳"
	default:
		return "👍"
	}
}

// notifyRateLimitIfApplicable implements the rate-limit escalation policy:
// on first 429 within a request, set a "waiting" reaction on the
// originating user message; further failures in the same request are
// squelched.
func (r *Request) notifyRateLimitIfApplicable(ctx context.Context, err error) {
	rl, ok := err.(*ports.RateLimitError)
	if !ok {
		slog.Debug("renderer: messaging operation failed", "error", err)
		return
	}

	r.mu.Lock()
	already := r.rateLimited
	r.rateLimited = true
	r.mu.Unlock()

	if already {
		return
	}

	slog.Warn("renderer: chat transport rate limited", "retry_after", rl.RetryAfter)
	if r.opts.ReactionsEnabled {
		r.setReactionBestEffort(ctx, r.userMsg, "waiting")
	}
}

// splitOverflow breaks body into chunks whose display width, as measured by
// go-runewidth, is at most limit; a double-width rune counts two columns
// and always lands whole in one chunk.
func splitOverflow(body string, limit int) []string {
	runes := []rune(body)
	var chunks []string
	width := 0
	start := 0
	for i, r := range runes {
		rw := runewidth.RuneWidth(r)
		if width+rw > limit {
			chunks = append(chunks, string(runes[start:i]))
			start = i
			width = 0
		}
		width += rw
	}
	if start < len(runes) {
		chunks = append(chunks, string(runes[start:]))
	}
	return chunks
}
