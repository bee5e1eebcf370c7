package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const snapshotVersion = 1

// snapshot is the on-disk form of a FileStore.
type snapshot struct {
	Version int               `json:"version"`
	Entries map[string][]byte `json:"entries"`
}

// loadSnapshot reads the entries stored at path. A missing file yields an
// empty map.
func loadSnapshot(path string) (map[string][]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string][]byte), nil
	}
	if err != nil {
		return nil, err
	}
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", filepath.Base(path), err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("store: %s has unsupported version %d", filepath.Base(path), s.Version)
	}
	if s.Entries == nil {
		s.Entries = make(map[string][]byte)
	}
	return s.Entries, nil
}

// saveSnapshot replaces the file at path with entries. The new contents are
// synced to a temp file in the same directory before the rename.
func saveSnapshot(path string, entries map[string][]byte) error {
	b, err := json.Marshal(snapshot{Version: snapshotVersion, Entries: entries})
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
