package cron

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ManifestLoader watches working_dir/cron.yaml and reloads it whenever its
// mtime changes, per spec.md's "reloaded on a file-mtime change or on
// demand" lifecycle.
type ManifestLoader struct {
	path string

	mu      sync.RWMutex
	jobs    []Job
	modTime time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewManifestLoader loads working_dir/cron.yaml once and starts watching it
// for changes. A missing manifest is not an error: it just means no jobs are
// scheduled until one is created.
func NewManifestLoader(workingDir string) (*ManifestLoader, error) {
	l := &ManifestLoader{
		path: filepath.Join(workingDir, "cron.yaml"),
		done: make(chan struct{}),
	}
	if err := l.reload(false); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cron: create watcher: %w", err)
	}
	// Watch the containing directory rather than the file itself: editors
	// frequently replace a file via rename-into-place, which an
	// fsnotify watch on the file path alone would miss.
	if err := watcher.Add(workingDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("cron: watch %s: %w", workingDir, err)
	}
	l.watcher = watcher

	go l.watchLoop()
	return l, nil
}

// Jobs returns a snapshot of the currently loaded enabled jobs.
func (l *ManifestLoader) Jobs() []Job {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Job, len(l.jobs))
	copy(out, l.jobs)
	return out
}

// Reload re-reads the manifest on demand (used by the `/cron reload`
// command), independent of the fsnotify watch and of whether mtime moved.
func (l *ManifestLoader) Reload() error {
	return l.reload(true)
}

// Close stops the background watch goroutine.
func (l *ManifestLoader) Close() error {
	close(l.done)
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func (l *ManifestLoader) reload(force bool) error {
	info, err := os.Stat(l.path)
	if err != nil {
		return err
	}

	if !force {
		l.mu.RLock()
		unchanged := info.ModTime().Equal(l.modTime)
		l.mu.RUnlock()
		if unchanged {
			return nil
		}
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("cron: read manifest: %w", err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("cron: parse manifest: %w", err)
	}

	enabled := make([]Job, 0, len(manifest.Jobs))
	for _, j := range manifest.Jobs {
		if j.Enabled {
			enabled = append(enabled, j)
		}
	}

	l.mu.Lock()
	l.jobs = enabled
	l.modTime = info.ModTime()
	l.mu.Unlock()

	slog.Info("cron: manifest reloaded", "path", l.path, "jobs", len(enabled))
	return nil
}

func (l *ManifestLoader) watchLoop() {
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != l.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := l.reload(false); err != nil && !os.IsNotExist(err) {
				slog.Warn("cron: reload after fsnotify event failed", "error", err)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("cron: watcher error", "error", err)
		}
	}
}
