package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/renderer"
	"github.com/nextlevelbuilder/clawbridge/internal/runner"
	"github.com/nextlevelbuilder/clawbridge/internal/safety"
)

// --- fakes shared by the tests below ---

type fakeHandle struct{ id string }

func (h *fakeHandle) SessionID() string { return h.id }

type fakeModel struct {
	mu      sync.Mutex
	events  []ports.Event
	started int
	slow    bool
}

func (m *fakeModel) Capabilities() ports.ModelCapabilities { return ports.ModelCapabilities{Streaming: true} }

func (m *fakeModel) Start(ctx context.Context, opts ports.SessionOpts) (ports.Handle, error) {
	m.mu.Lock()
	m.started++
	m.mu.Unlock()
	return &fakeHandle{id: "sess-1"}, nil
}

func (m *fakeModel) Resume(ctx context.Context, sessionID string, opts ports.SessionOpts) (ports.Handle, error) {
	return &fakeHandle{id: sessionID}, nil
}

func (m *fakeModel) Send(ctx context.Context, handle ports.Handle, prompt string) error { return nil }

func (m *fakeModel) Stream(handle ports.Handle) <-chan ports.Event {
	ch := make(chan ports.Event, len(m.events)+1)
	go func() {
		defer close(ch)
		for _, ev := range m.events {
			if m.slow {
				time.Sleep(30 * time.Millisecond)
			}
			ch <- ev
		}
	}()
	return ch
}

func (m *fakeModel) Cancel(handle ports.Handle) error { return nil }

type fakeMessagingCoord struct {
	mu        sync.Mutex
	sent      []string
	reactions []string
}

func (f *fakeMessagingCoord) Capabilities() ports.Capabilities { return ports.Capabilities{SupportsReactions: true} }
func (f *fakeMessagingCoord) SendText(ctx context.Context, chatID, body string, html bool) (ports.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, body)
	return ports.MessageHandle{ChatID: chatID, MessageID: "m"}, nil
}
func (f *fakeMessagingCoord) EditText(ctx context.Context, h ports.MessageHandle, body string, html bool) error {
	return nil
}
func (f *fakeMessagingCoord) Delete(ctx context.Context, h ports.MessageHandle) error { return nil }
func (f *fakeMessagingCoord) SetReaction(ctx context.Context, h ports.MessageHandle, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, emoji)
	return nil
}
func (f *fakeMessagingCoord) SendKeyboard(ctx context.Context, chatID, prompt string, buttons []ports.Button) (ports.MessageHandle, error) {
	return ports.MessageHandle{}, nil
}
func (f *fakeMessagingCoord) DownloadFile(ctx context.Context, ref string) (string, error) { return "", nil }
func (f *fakeMessagingCoord) GetMe(ctx context.Context) (string, error)                    { return "bot", nil }
func (f *fakeMessagingCoord) AnswerCallback(ctx context.Context, id string) error          { return nil }

func newTestCoordinator(model *fakeModel, messaging *fakeMessagingCoord) *Coordinator {
	policy := safety.NewPolicy(nil, nil, nil, nil, 100, time.Minute)
	kernel := safety.New(policy)
	r := runner.New(model, kernel, func(context.Context, *runner.Session) {}, nil)

	c := New()
	c.Runner = r
	c.Messaging = messaging
	c.Options = renderer.Options{ReactionsEnabled: true}
	c.WorkingDir = "/tmp"
	return c
}

func TestHandleNormalStartsQueryWhenIdle(t *testing.T) {
	model := &fakeModel{events: []ports.Event{
		{Kind: ports.EventSessionInit, SessionID: "sess-1"},
		{Kind: ports.EventResult, Usage: ports.Usage{InputTokens: 10, OutputTokens: 5}},
	}}
	messaging := &fakeMessagingCoord{}
	c := newTestCoordinator(model, messaging)

	c.Dispatch(context.Background(), Inbound{ChatID: "chat1", Text: "hello"})

	// Wait for the async runQuery goroutine to complete.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		entry := c.entryFor("chat1")
		entry.mu.Lock()
		sess := entry.session
		entry.mu.Unlock()
		if sess != nil && sess.State() == runner.StateDone {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if model.started != 1 {
		t.Errorf("expected model.Start called once, got %d", model.started)
	}
}

func TestHandleNormalSteersWhenBusy(t *testing.T) {
	model := &fakeModel{slow: true, events: []ports.Event{
		{Kind: ports.EventSessionInit, SessionID: "sess-1"},
		{Kind: ports.EventAssistantText, TextDelta: "working"},
		{Kind: ports.EventResult},
	}}
	messaging := &fakeMessagingCoord{}
	c := newTestCoordinator(model, messaging)

	c.Dispatch(context.Background(), Inbound{ChatID: "chat1", Text: "first"})
	time.Sleep(15 * time.Millisecond) // let the first query start running

	c.Dispatch(context.Background(), Inbound{ChatID: "chat1", Text: "second"})

	entry := c.entryFor("chat1")
	entry.mu.Lock()
	sess := entry.session
	entry.mu.Unlock()

	if sess == nil {
		t.Fatal("expected a session to exist")
	}
	if sess.Steering.Empty() {
		t.Error("expected the second message to be folded into the steering buffer, not started as a new query")
	}
	if model.started != 1 {
		t.Errorf("expected only 1 query started, got %d", model.started)
	}
}

func TestCommandsBypassSteering(t *testing.T) {
	model := &fakeModel{slow: true, events: []ports.Event{
		{Kind: ports.EventAssistantText, TextDelta: "working"},
		{Kind: ports.EventResult},
	}}
	messaging := &fakeMessagingCoord{}
	c := newTestCoordinator(model, messaging)

	c.Dispatch(context.Background(), Inbound{ChatID: "chat1", Text: "go"})
	time.Sleep(15 * time.Millisecond)

	c.Dispatch(context.Background(), Inbound{ChatID: "chat1", Text: "/status"})

	messaging.mu.Lock()
	defer messaging.mu.Unlock()
	if len(messaging.sent) == 0 {
		t.Error("expected /status to reply immediately even while a query is running")
	}
}
