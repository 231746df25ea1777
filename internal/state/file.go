package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps the checkpoint in an append-only tracking file. Each save
// appends one RFC 3339 line; the last non-empty line wins on load, so the
// file doubles as a sync history.
type FileStore struct {
	path string
}

// NewFileStore creates a store at the conventional location,
// ~/.panopto-connector.<implementation>.
func NewFileStore(implementation string) (*FileStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return NewFileStoreAt(filepath.Join(home, ".panopto-connector."+implementation)), nil
}

// NewFileStoreAt creates a store backed by an explicit file path.
func NewFileStoreAt(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the tracking file location.
func (s *FileStore) Path() string { return s.path }

// Load returns the checkpoint from the last non-empty line of the tracking
// file. A missing or empty file yields DefaultCheckpoint.
func (s *FileStore) Load(_ context.Context) (time.Time, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return DefaultCheckpoint, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read checkpoint file %s: %w", s.path, err)
	}

	lines := strings.Split(string(data), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		checkpoint, err := time.Parse(time.RFC3339, line)
		if err != nil {
			return time.Time{}, fmt.Errorf("corrupt checkpoint %q in %s: %w", line, s.path, err)
		}
		return checkpoint, nil
	}

	return DefaultCheckpoint, nil
}

// Save appends the checkpoint to the tracking file.
func (s *FileStore) Save(_ context.Context, checkpoint time.Time) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open checkpoint file %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(checkpoint.UTC().Format(time.RFC3339) + "\n"); err != nil {
		return fmt.Errorf("write checkpoint file %s: %w", s.path, err)
	}
	return nil
}
