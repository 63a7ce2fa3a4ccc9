package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/safety"
)

type fakeHandle struct{ id string }

func (h *fakeHandle) SessionID() string { return h.id }

type fakeModel struct {
	events []ports.Event
}

func (m *fakeModel) Capabilities() ports.ModelCapabilities { return ports.ModelCapabilities{} }
func (m *fakeModel) Start(ctx context.Context, opts ports.SessionOpts) (ports.Handle, error) {
	return &fakeHandle{id: "sess-1"}, nil
}
func (m *fakeModel) Resume(ctx context.Context, sessionID string, opts ports.SessionOpts) (ports.Handle, error) {
	return &fakeHandle{id: sessionID}, nil
}
func (m *fakeModel) Send(ctx context.Context, handle ports.Handle, prompt string) error { return nil }
func (m *fakeModel) Stream(handle ports.Handle) <-chan ports.Event {
	ch := make(chan ports.Event, len(m.events))
	for _, e := range m.events {
		ch <- e
	}
	close(ch)
	return ch
}
func (m *fakeModel) Cancel(handle ports.Handle) error { return nil }

func TestRunHappyPath(t *testing.T) {
	model := &fakeModel{events: []ports.Event{
		{Kind: ports.EventSessionInit, SessionID: "sess-1"},
		{Kind: ports.EventAssistantText, TextDelta: "hello world"},
		{Kind: ports.EventResult, Usage: ports.Usage{InputTokens: 10, OutputTokens: 5}},
	}}
	policy := safety.NewPolicy([]safety.UserID{1}, nil, nil, nil, 10, time.Minute)
	r := New(model, safety.New(policy), nil, nil)

	sess := NewSession("/work")
	var events []StatusEvent
	text, runErr := r.Run(context.Background(), Request{
		Session: sess,
		Prompt:  "hi",
		Actor:   1,
		ChatID:  "chat-1",
		Emit:    func(e StatusEvent) { events = append(events, e) },
	})
	if runErr != nil {
		t.Fatalf("unexpected error: %v", runErr)
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
	if sess.SessionID != "sess-1" {
		t.Errorf("session id not captured: %q", sess.SessionID)
	}
	if sess.Usage.InputTokens != 10 || sess.Usage.OutputTokens != 5 || sess.Usage.Queries != 1 {
		t.Errorf("usage not accumulated: %+v", sess.Usage)
	}
	if len(events) == 0 || events[len(events)-1].Kind != StatusDone {
		t.Errorf("expected trailing done event, got %+v", events)
	}
}

func TestRunBlockedBashCommand(t *testing.T) {
	model := &fakeModel{events: []ports.Event{
		{Kind: ports.EventSessionInit, SessionID: "sess-2"},
		{Kind: ports.EventToolUse, ToolName: "Bash", ToolInput: map[string]any{"command": "rm -rf /tmp/../.."}},
	}}
	policy := safety.NewPolicy([]safety.UserID{1}, nil, nil, []string{"rm -rf /"}, 10, time.Minute)
	r := New(model, safety.New(policy), nil, nil)

	sess := NewSession("/work")
	var events []StatusEvent
	_, runErr := r.Run(context.Background(), Request{
		Session: sess,
		Prompt:  "hi",
		Actor:   1,
		ChatID:  "chat-1",
		Emit:    func(e StatusEvent) { events = append(events, e) },
	})
	if runErr == nil || runErr.Kind != ErrPolicyViolation {
		t.Fatalf("expected policy violation, got %v", runErr)
	}
	found := false
	for _, e := range events {
		if e.Kind == StatusTool && strings.Contains(e.Content, "BLOCKED") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a BLOCKED tool status, got %+v", events)
	}
}
