package sqlitestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/persistence"
)

func TestSessionRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bridge.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	rec := persistence.SessionRecord{
		SessionID: "sess-1", WorkingDir: "/work", TotalInputTokens: 10,
		TotalOutputTokens: 5, TotalQueries: 2, SavedAt: time.Now(), SessionStartTime: time.Now(),
	}
	if err := s.SaveSession(rec); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, ok, err := s.LoadSession("/work")
	if err != nil || !ok {
		t.Fatalf("LoadSession: ok=%v err=%v", ok, err)
	}
	if got.SessionID != "sess-1" || got.TotalQueries != 2 {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Backend != "sqlite" {
		t.Errorf("Backend = %q, want sqlite", got.Backend)
	}

	if _, ok, _ := s.LoadSession("/other"); ok {
		t.Error("expected working_dir mismatch to return ok=false")
	}

	if err := s.ClearSession(); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if _, ok, _ := s.LoadSession("/work"); ok {
		t.Error("expected no session after clear")
	}
}

func TestRestartPointerRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bridge.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	p := persistence.RestartPointer{ChatID: "chat1", MessageID: "42", Timestamp: time.Now()}
	if err := s.SaveRestartPointer(p); err != nil {
		t.Fatalf("SaveRestartPointer: %v", err)
	}
	got, ok, err := s.LoadRestartPointer()
	if err != nil || !ok || got.ChatID != "chat1" {
		t.Fatalf("LoadRestartPointer: got=%+v ok=%v err=%v", got, ok, err)
	}
	if err := s.ClearRestartPointer(); err != nil {
		t.Fatalf("ClearRestartPointer: %v", err)
	}
	if _, ok, _ := s.LoadRestartPointer(); ok {
		t.Error("expected no restart pointer after clear")
	}
}
