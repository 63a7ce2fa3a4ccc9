package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
)

func TestRunSaveLoadHandoffNoFileIsNoop(t *testing.T) {
	model := &fakeModel{}
	messaging := &fakeMessagingCoord{}
	c := newTestCoordinator(model, messaging)
	c.WorkingDir = t.TempDir()

	if err := c.RunSaveLoadHandoff(context.Background(), "chat1"); err != nil {
		t.Fatalf("expected no error when .last-save-id is absent, got %v", err)
	}
}

func TestRunSaveLoadHandoffInvalidIDIsDeleted(t *testing.T) {
	model := &fakeModel{}
	messaging := &fakeMessagingCoord{}
	c := newTestCoordinator(model, messaging)
	c.WorkingDir = t.TempDir()

	path := filepath.Join(c.WorkingDir, ".last-save-id")
	if err := os.WriteFile(path, []byte("not-a-valid-id"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := c.RunSaveLoadHandoff(context.Background(), "chat1"); err != nil {
		t.Fatalf("expected invalid id to be handled without error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected .last-save-id to be deleted after an invalid id")
	}
}

func TestRunSaveLoadHandoffValidIDVerifiesSentinel(t *testing.T) {
	model := &fakeModel{events: []ports.Event{
		{Kind: ports.EventSessionInit, SessionID: "sess-1"},
		{Kind: ports.EventAssistantText, TextDelta: "Loaded Context: restored 3 tasks"},
		{Kind: ports.EventResult},
	}}
	messaging := &fakeMessagingCoord{}
	c := newTestCoordinator(model, messaging)
	c.WorkingDir = t.TempDir()

	path := filepath.Join(c.WorkingDir, ".last-save-id")
	if err := os.WriteFile(path, []byte("20260731_142233"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := c.RunSaveLoadHandoff(context.Background(), "chat1"); err != nil {
		t.Fatalf("RunSaveLoadHandoff: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected .last-save-id to be removed after successful verification")
	}

	entry := c.entryFor("chat1")
	entry.mu.Lock()
	sess := entry.session
	entry.mu.Unlock()
	if sess == nil || !sess.RecentlyRestored {
		t.Error("expected session.RecentlyRestored to be set after a successful handoff")
	}
}

func TestRunSaveLoadHandoffMissingSentinelFails(t *testing.T) {
	model := &fakeModel{events: []ports.Event{
		{Kind: ports.EventSessionInit, SessionID: "sess-1"},
		{Kind: ports.EventAssistantText, TextDelta: "no sentinel here"},
		{Kind: ports.EventResult},
	}}
	messaging := &fakeMessagingCoord{}
	c := newTestCoordinator(model, messaging)
	c.WorkingDir = t.TempDir()

	path := filepath.Join(c.WorkingDir, ".last-save-id")
	if err := os.WriteFile(path, []byte("20260731_142233"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := c.RunSaveLoadHandoff(context.Background(), "chat1"); err == nil {
		t.Error("expected an error when the reply is missing the sentinel")
	}
}
