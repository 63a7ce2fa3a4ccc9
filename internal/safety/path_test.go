package safety

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsPathAllowed(t *testing.T) {
	dir := t.TempDir()
	allowed := filepath.Join(dir, "foo")
	if err := os.MkdirAll(allowed, 0o755); err != nil {
		t.Fatal(err)
	}
	// sibling directory whose name merely shares a string prefix
	sibling := filepath.Join(dir, "foo-bar")
	if err := os.MkdirAll(sibling, 0o755); err != nil {
		t.Fatal(err)
	}

	policy := NewPolicy(nil, []string{allowed}, nil, nil, 1, time.Second)
	k := New(policy)

	cases := []struct {
		name string
		path string
		want bool
	}{
		{"exact allowed dir", allowed, true},
		{"file beneath allowed dir", filepath.Join(allowed, "x.txt"), true},
		{"string-prefix sibling must not match", filepath.Join(sibling, "x"), false},
		{"unrelated path", filepath.Join(dir, "other"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := k.IsPathAllowed(tc.path); got != tc.want {
				t.Errorf("IsPathAllowed(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestIsPathAllowedTempPrefix(t *testing.T) {
	policy := NewPolicy(nil, nil, []string{"/tmp/clawbridge"}, nil, 1, time.Second)
	k := New(policy)
	if !k.IsPathAllowed("/tmp/clawbridge/media/abc.jpg") {
		t.Error("expected temp-path prefix to be allowed")
	}
	if k.IsPathAllowed("/tmp/other/file") {
		t.Error("expected unrelated temp path to be denied")
	}
}

func TestIsPathAllowedSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	allowed := filepath.Join(dir, "workspace")
	outside := filepath.Join(dir, "secret")
	if err := os.MkdirAll(allowed, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(outside, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(allowed, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	policy := NewPolicy(nil, []string{allowed}, nil, nil, 1, time.Second)
	k := New(policy)
	if k.IsPathAllowed(link) {
		t.Error("expected symlink escaping the allowed dir to be denied")
	}
}
