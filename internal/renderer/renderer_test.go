package renderer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/runner"
)

type fakeMessaging struct {
	mu      sync.Mutex
	nextID  int
	sent    []string
	edited  map[string]string
	deleted map[string]bool
}

func newFakeMessaging() *fakeMessaging {
	return &fakeMessaging{edited: map[string]string{}, deleted: map[string]bool{}}
}

func (f *fakeMessaging) Capabilities() ports.Capabilities { return ports.Capabilities{SupportsEdit: true} }

func (f *fakeMessaging) SendText(ctx context.Context, chatID, body string, html bool) (ports.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("m%d", f.nextID)
	f.sent = append(f.sent, body)
	return ports.MessageHandle{ChatID: chatID, MessageID: id}, nil
}

func (f *fakeMessaging) EditText(ctx context.Context, h ports.MessageHandle, body string, html bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited[h.MessageID] = body
	return nil
}

func (f *fakeMessaging) Delete(ctx context.Context, h ports.MessageHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[h.MessageID] = true
	return nil
}

func (f *fakeMessaging) SetReaction(ctx context.Context, h ports.MessageHandle, emoji string) error {
	return nil
}
func (f *fakeMessaging) SendKeyboard(ctx context.Context, chatID, prompt string, buttons []ports.Button) (ports.MessageHandle, error) {
	return ports.MessageHandle{}, nil
}
func (f *fakeMessaging) DownloadFile(ctx context.Context, ref string) (string, error) { return "", nil }
func (f *fakeMessaging) GetMe(ctx context.Context) (string, error)                    { return "bot", nil }
func (f *fakeMessaging) AnswerCallback(ctx context.Context, id string) error          { return nil }

func TestOverflowSplit(t *testing.T) {
	messaging := newFakeMessaging()
	req := NewRequest(messaging, "chat1", ports.MessageHandle{ChatID: "chat1", MessageID: "u1"}, Options{})

	big := strings.Repeat("a", 8300)
	req.Handle(context.Background(), runner.StatusEvent{Kind: runner.StatusSegmentEnd, SegmentID: 0, Content: big})

	if len(messaging.sent) < 3 {
		t.Fatalf("expected overflow split into at least 3 messages, got %d", len(messaging.sent))
	}
	for _, s := range messaging.sent {
		if len([]rune(s)) > safeChunkLimit {
			t.Errorf("chunk exceeds safeChunkLimit: %d runes", len([]rune(s)))
		}
	}
}

func TestTextThrottleSkipsUnchangedContent(t *testing.T) {
	messaging := newFakeMessaging()
	req := NewRequest(messaging, "chat1", ports.MessageHandle{ChatID: "chat1", MessageID: "u1"}, Options{})

	req.Handle(context.Background(), runner.StatusEvent{Kind: runner.StatusText, SegmentID: 0, Content: "hello"})
	sentAfterFirst := len(messaging.sent)
	req.Handle(context.Background(), runner.StatusEvent{Kind: runner.StatusText, SegmentID: 0, Content: "hello"})
	if len(messaging.sent) != sentAfterFirst {
		t.Errorf("expected identical content to be skipped, sent grew from %d to %d", sentAfterFirst, len(messaging.sent))
	}
}

func TestToChatHTMLRestrictsTags(t *testing.T) {
	out, err := ToChatHTML("**bold** and <script>alert(1)</script> and `code`")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("expected script tag to be stripped, got %q", out)
	}
	if !strings.Contains(out, "<b>bold</b>") {
		t.Errorf("expected bold to survive, got %q", out)
	}
	if !strings.Contains(out, "<code>code</code>") {
		t.Errorf("expected inline code to survive, got %q", out)
	}
}
