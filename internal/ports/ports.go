// Package ports declares the trait surfaces the Agent Session Core consumes
// from its external collaborators: the chat transport, the agent process,
// the transcription service, the audit sink, and the button-question
// auxiliary server. Concrete adapters live in internal/channels,
// internal/agentproc, internal/transcribe, internal/persistence, and
// internal/coordinator respectively.
package ports

import (
	"context"
	"time"
)

// MessageHandle identifies a single chat message a Messaging adapter has
// sent, so later edits/deletes/reactions can target it.
type MessageHandle struct {
	ChatID    string
	MessageID string
}

// Capabilities describes what a Messaging adapter can do, so the Streaming
// Renderer can degrade gracefully when a capability is absent.
type Capabilities struct {
	SupportsEdit            bool
	SupportsReactions       bool
	SupportsChatActions     bool
	SupportsInlineKeyboards bool
	MaxMsgLen               int
	MaxEditRateHz           float64
}

// Button is one option on an inline keyboard.
type Button struct {
	Text string
	Data string
}

// RateLimitError is returned by a Messaging operation when the platform
// replies with a 429 (or equivalent); RetryAfter is the hint it carried, if
// any.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return "chat transport rate limited" }

// Messaging is the chat-platform transport port.
type Messaging interface {
	Capabilities() Capabilities
	SendText(ctx context.Context, chatID, body string, htmlParseMode bool) (MessageHandle, error)
	EditText(ctx context.Context, handle MessageHandle, body string, htmlParseMode bool) error
	Delete(ctx context.Context, handle MessageHandle) error
	SetReaction(ctx context.Context, handle MessageHandle, emoji string) error
	SendKeyboard(ctx context.Context, chatID, prompt string, buttons []Button) (MessageHandle, error)
	DownloadFile(ctx context.Context, fileRef string) (localPath string, err error)
	GetMe(ctx context.Context) (username string, err error)
	AnswerCallback(ctx context.Context, callbackID string) error
}

// ModelCapabilities describes what the Model port's backing agent supports.
type ModelCapabilities struct {
	Streaming bool
	Tools     bool
	Vision    bool
	Thinking  bool
	MCP       bool
}

// SessionOpts parameterizes a fresh agent spawn.
type SessionOpts struct {
	WorkingDir     string
	Model          string
	ThinkingBudget int
	SystemPreamble string
	AllowedDirs    []string
	MCPConfigPath  string
	ResumeID       string // non-empty to resume rather than spawn fresh
}

// Handle identifies a running (or resumable) agent process.
type Handle interface {
	// SessionID returns the agent-minted session id once known, or "".
	SessionID() string
}

// Model is the external-agent process port.
type Model interface {
	Capabilities() ModelCapabilities
	Start(ctx context.Context, opts SessionOpts) (Handle, error)
	Resume(ctx context.Context, sessionID string, opts SessionOpts) (Handle, error)
	Send(ctx context.Context, handle Handle, prompt string) error
	Stream(handle Handle) <-chan Event
	Cancel(handle Handle) error
}

// EventKind enumerates the Stream Event sum type's variants.
type EventKind int

const (
	EventSessionInit EventKind = iota
	EventAssistantText
	EventAssistantThinking
	EventToolUse
	EventToolProgress
	EventResult
	EventUnknown
)

// Usage is the token accounting reported on one Result event; the Session
// Runner adds it into the Session's cumulative counters.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	CacheRead    int64
	CacheCreate  int64
}

// Event is one decoded line of the agent's NDJSON stream.
type Event struct {
	Kind       EventKind
	SessionID  string // EventSessionInit
	TextDelta  string // EventAssistantText, EventAssistantThinking
	ToolName   string // EventToolUse, EventToolProgress
	ToolInput  map[string]any
	Usage      Usage // EventResult
	DurationMS int64 // EventResult
	Raw        map[string]any
	Err        error // decode/process-level error surfaced as an event
}

// Transcription is the voice-note transcription port.
type Transcription interface {
	Transcribe(ctx context.Context, oggBytes []byte) (text string, err error)
}

// AuditEventType enumerates audit entry kinds.
type AuditEventType string

const (
	AuditMessage   AuditEventType = "message"
	AuditAuth      AuditEventType = "auth"
	AuditToolUse   AuditEventType = "tool_use"
	AuditError     AuditEventType = "error"
	AuditRateLimit AuditEventType = "rate_limit"
)

// AuditEvent is one append-only audit log entry.
type AuditEvent struct {
	RequestID string // fresh random id per entry; not recorded on any trace span
	Timestamp time.Time
	UserID    string
	Username  string
	Type      AuditEventType
	Input     string
	Output    string
}

// Audit is the append-only audit sink port.
type Audit interface {
	Append(ctx context.Context, event AuditEvent) error
}

// ButtonStatus enumerates a button request's lifecycle.
type ButtonStatus string

const (
	ButtonPending  ButtonStatus = "pending"
	ButtonSent     ButtonStatus = "sent"
	ButtonAnswered ButtonStatus = "answered"
)

// ButtonRequest is the cross-process handoff record the auxiliary tool
// server writes and the runner polls for.
type ButtonRequest struct {
	RequestID string
	ChatID    string
	Question  string
	Options   []string
	Status    ButtonStatus
	Answer    string
}

// ButtonChannel polls for a pending button request for a chat. A file-based
// implementation lives in internal/coordinator; the runner skips button
// polling when it is given none.
type ButtonChannel interface {
	Poll(ctx context.Context, chatID string) (*ButtonRequest, bool)
	MarkSent(ctx context.Context, requestID string) error
}
