package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// topicFile persists one logical record collection as a single JSON document
// guarded by a sidecar advisory lock.
type topicFile struct {
	path string
}

func newTopicFile(dir, name string) *topicFile {
	return &topicFile{path: filepath.Join(dir, name)}
}

// lock acquires the exclusive sidecar lock. Hosts without a usable advisory
// lock primitive degrade to unlocked access, a weaker but accepted guarantee.
func (f *topicFile) lock() *flock.Flock {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		slog.Warn("cannot create topic directory", "path", f.path, "error", err)
		return nil
	}
	lk := flock.New(f.path + ".lock")
	if err := lk.Lock(); err != nil {
		slog.Warn("advisory lock unavailable, proceeding unlocked", "path", f.path, "error", err)
		return nil
	}
	return lk
}

func unlock(lk *flock.Flock) {
	if lk == nil {
		return
	}
	if err := lk.Unlock(); err != nil {
		slog.Warn("unlock failed", "path", lk.Path(), "error", err)
	}
}

// loadTopic reads the topic into a value of type T. A missing file persists
// and returns the caller-supplied default; an undecodable file returns the
// default without persisting. Real I/O errors propagate to the caller.
func loadTopic[T any](f *topicFile, def T) (T, error) {
	lk := f.lock()
	defer unlock(lk)

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := f.writeLocked(def); err != nil {
			return def, err
		}
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("read %s: %w", f.path, err)
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		slog.Warn("undecodable topic file, using default", "path", f.path, "error", err)
		return def, nil
	}
	return value, nil
}

// saveTopic atomically replaces the topic content under the sidecar lock.
func saveTopic[T any](f *topicFile, records T) error {
	lk := f.lock()
	defer unlock(lk)
	return f.writeLocked(records)
}

// writeLocked writes the full document to a temp file in the same directory,
// forces it to stable storage, and renames it over the target. Callers must
// hold the sidecar lock.
func (f *topicFile) writeLocked(value any) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", f.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
