package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore is the default Store backend: two JSON files under /tmp,
// matching spec.md's literal on-disk contract. Grounded on the teacher's
// file-backed store adapter pattern (wrapping a single source of truth on
// disk rather than a database), simplified to the exact two files this
// spec names.
type FileStore struct {
	sessionPath string
	restartPath string
}

// NewFileStore builds a FileStore rooted at /tmp/<service>-*.json.
func NewFileStore(service string) *FileStore {
	return &FileStore{
		sessionPath: filepath.Join(os.TempDir(), service+"-session.json"),
		restartPath: filepath.Join(os.TempDir(), service+"-restart.json"),
	}
}

func (f *FileStore) SaveSession(record SessionRecord) error {
	record.Backend = "file"
	return writeJSONAtomic(f.sessionPath, record)
}

// LoadSession loads the session file only if its working_dir matches, per
// spec.md's "loaded only when working_dir matches" invariant.
func (f *FileStore) LoadSession(workingDir string) (*SessionRecord, bool, error) {
	var record SessionRecord
	ok, err := readJSON(f.sessionPath, &record)
	if err != nil || !ok {
		return nil, false, err
	}
	if record.WorkingDir != workingDir {
		return nil, false, nil
	}
	return &record, true, nil
}

func (f *FileStore) ClearSession() error {
	return removeIfExists(f.sessionPath)
}

func (f *FileStore) SaveRestartPointer(p RestartPointer) error {
	return writeJSONAtomic(f.restartPath, p)
}

func (f *FileStore) LoadRestartPointer() (*RestartPointer, bool, error) {
	var p RestartPointer
	ok, err := readJSON(f.restartPath, &p)
	if err != nil || !ok {
		return nil, false, err
	}
	return &p, true, nil
}

func (f *FileStore) ClearRestartPointer() error {
	return removeIfExists(f.restartPath)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("persistence: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persistence: rename into place: %w", err)
	}
	return nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("persistence: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("persistence: decode %s: %w", path, err)
	}
	return true, nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
