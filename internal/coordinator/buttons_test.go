package coordinator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
)

func writeButtonFile(t *testing.T, dir string, bf buttonFile) {
	t.Helper()
	data, err := json.Marshal(bf)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "ask-user-"+bf.RequestID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestFileButtonChannelPollFindsPendingForChat(t *testing.T) {
	dir := t.TempDir()
	writeButtonFile(t, dir, buttonFile{RequestID: "req1", ChatID: "chat1", Question: "proceed?", Options: []string{"yes", "no"}, Status: ports.ButtonPending})
	writeButtonFile(t, dir, buttonFile{RequestID: "req2", ChatID: "chat2", Question: "other chat", Status: ports.ButtonPending})

	ch := NewFileButtonChannel(dir)
	req, ok := ch.Poll(context.Background(), "chat1")
	if !ok {
		t.Fatal("expected a pending request for chat1")
	}
	if req.RequestID != "req1" {
		t.Errorf("got request %q, want req1", req.RequestID)
	}
}

func TestFileButtonChannelPollSkipsNonPending(t *testing.T) {
	dir := t.TempDir()
	writeButtonFile(t, dir, buttonFile{RequestID: "req1", ChatID: "chat1", Status: ports.ButtonSent})

	ch := NewFileButtonChannel(dir)
	if _, ok := ch.Poll(context.Background(), "chat1"); ok {
		t.Error("expected no pending request once status is sent")
	}
}

func TestFileButtonChannelMarkSentAndAnswered(t *testing.T) {
	dir := t.TempDir()
	writeButtonFile(t, dir, buttonFile{RequestID: "req1", ChatID: "chat1", Status: ports.ButtonPending})

	ch := NewFileButtonChannel(dir)
	if err := ch.MarkSent(context.Background(), "req1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if _, ok := ch.Poll(context.Background(), "chat1"); ok {
		t.Error("expected request to no longer be pending after MarkSent")
	}

	if err := ch.MarkAnswered(context.Background(), "req1", "yes"); err != nil {
		t.Fatalf("MarkAnswered: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "ask-user-req1.json"))
	if err != nil {
		t.Fatal(err)
	}
	var bf buttonFile
	if err := json.Unmarshal(data, &bf); err != nil {
		t.Fatal(err)
	}
	if bf.Status != ports.ButtonAnswered || bf.Answer != "yes" {
		t.Errorf("unexpected final state: %+v", bf)
	}
}
