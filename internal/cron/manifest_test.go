package cron

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "cron.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestManifestLoaderLoadsEnabledJobsOnly(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
jobs:
  - name: morning-report
    cron_expr: "0 9 * * *"
    prompt: "summarize overnight activity"
    enabled: true
    notify: true
  - name: disabled-job
    cron_expr: "0 10 * * *"
    prompt: "should not load"
    enabled: false
`)

	loader, err := NewManifestLoader(dir)
	if err != nil {
		t.Fatalf("NewManifestLoader: %v", err)
	}
	defer loader.Close()

	jobs := loader.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 enabled job, got %d", len(jobs))
	}
	if jobs[0].Name != "morning-report" {
		t.Errorf("unexpected job loaded: %+v", jobs[0])
	}
}

func TestManifestLoaderMissingFileIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	loader, err := NewManifestLoader(dir)
	if err != nil {
		t.Fatalf("expected no error for missing manifest, got %v", err)
	}
	defer loader.Close()

	if len(loader.Jobs()) != 0 {
		t.Error("expected zero jobs with no manifest present")
	}
}

func TestManifestLoaderReloadOnDemand(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
jobs:
  - name: first
    cron_expr: "* * * * *"
    prompt: "p"
    enabled: true
`)

	loader, err := NewManifestLoader(dir)
	if err != nil {
		t.Fatalf("NewManifestLoader: %v", err)
	}
	defer loader.Close()

	writeManifest(t, dir, `
jobs:
  - name: first
    cron_expr: "* * * * *"
    prompt: "p"
    enabled: true
  - name: second
    cron_expr: "* * * * *"
    prompt: "p2"
    enabled: true
`)

	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(loader.Jobs()) != 2 {
		t.Fatalf("expected 2 jobs after reload, got %d", len(loader.Jobs()))
	}
}
