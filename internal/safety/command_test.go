package safety

import (
	"testing"
	"time"
)

func TestCheckCommandBlockedPattern(t *testing.T) {
	policy := NewPolicy(nil, nil, nil, []string{"rm -rf /"}, 1, time.Second)
	k := New(policy)

	ok, reason := k.CheckCommand(`bash -c 'rm -rf /tmp/../..'`, "/tmp")
	if ok {
		t.Fatal("expected command to be denied")
	}
	if reason == "" {
		t.Fatal("expected a denial reason")
	}
}

func TestCheckCommandRmOutsideAllowed(t *testing.T) {
	policy := NewPolicy(nil, []string{"/work"}, nil, nil, 1, time.Second)
	k := New(policy)

	ok, _ := k.CheckCommand("rm -rf /etc/passwd", "/work")
	if ok {
		t.Fatal("expected rm targeting a disallowed path to be denied")
	}

	ok, _ = k.CheckCommand("rm -f notes.txt", "/work")
	if !ok {
		t.Fatal("expected rm targeting an allowed relative path to succeed")
	}
}

func TestCheckCommandAllowsOrdinary(t *testing.T) {
	policy := NewPolicy(nil, []string{"/work"}, nil, nil, 1, time.Second)
	k := New(policy)
	ok, _ := k.CheckCommand("ls -la", "/work")
	if !ok {
		t.Fatal("expected ordinary command to be allowed")
	}
}

func TestCheckCommandSkipsEnvAssignments(t *testing.T) {
	policy := NewPolicy(nil, []string{"/work"}, nil, nil, 1, time.Second)
	k := New(policy)
	ok, _ := k.CheckCommand("FOO=bar rm -f /work/x.txt", "/work")
	if !ok {
		t.Fatal("expected env-prefixed rm on allowed path to succeed")
	}
}
