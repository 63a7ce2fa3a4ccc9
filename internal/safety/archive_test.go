package safety

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSafeExtractArchiveRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bad.zip")
	writeZip(t, archive, map[string]string{"../outside.txt": "evil"})

	dest := filepath.Join(dir, "dest")
	err := SafeExtractArchive(archive, dest, ArchiveLimits{MaxFiles: 10, MaxBytesPerFile: 1024, MaxTotalBytes: 4096})
	if err == nil {
		t.Fatal("expected traversal entry to be rejected")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("expected dest to be removed after failed extraction")
	}
}

func TestSafeExtractArchiveEnforcesLimits(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "many.zip")
	entries := map[string]string{}
	for i := 0; i < 5; i++ {
		entries[filepath.Join("f", string(rune('a'+i))+".txt")] = "x"
	}
	writeZip(t, archive, entries)

	dest := filepath.Join(dir, "dest")
	err := SafeExtractArchive(archive, dest, ArchiveLimits{MaxFiles: 2, MaxBytesPerFile: 1024, MaxTotalBytes: 4096})
	if err == nil {
		t.Fatal("expected max_files to be enforced")
	}
}

func TestSafeExtractArchiveAllowsValid(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "good.zip")
	writeZip(t, archive, map[string]string{"a.txt": "hello", "sub/b.txt": "world"})

	dest := filepath.Join(dir, "dest")
	if err := SafeExtractArchive(archive, dest, ArchiveLimits{MaxFiles: 10, MaxBytesPerFile: 1024, MaxTotalBytes: 4096}); err != nil {
		t.Fatalf("expected valid archive to extract, got %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("expected extracted content, got %q, err=%v", data, err)
	}
}
