package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func writeTestZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return path
}

func TestExtractArchiveReadsBackContent(t *testing.T) {
	zipPath := writeTestZip(t, map[string]string{"a.txt": "hello", "b.txt": "world"})
	dest := filepath.Join(t.TempDir(), "out")

	text, err := ExtractArchive(zipPath, dest)
	if err != nil {
		t.Fatalf("ExtractArchive: %v", err)
	}
	if text == "" {
		t.Error("expected non-empty extracted content")
	}
}

func TestExtractArchiveRejectsPathTraversal(t *testing.T) {
	zipPath := writeTestZip(t, map[string]string{"../escape.txt": "nope"})
	dest := filepath.Join(t.TempDir(), "out")

	if _, err := ExtractArchive(zipPath, dest); err == nil {
		t.Error("expected path traversal entry to be rejected")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("expected dest to be removed after a rejected extraction")
	}
}
