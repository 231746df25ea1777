package state

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStore_LoadMissingFile(t *testing.T) {
	store := NewFileStoreAt(filepath.Join(t.TempDir(), "checkpoint"))

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !got.Equal(DefaultCheckpoint) {
		t.Errorf("Load() = %v, want default checkpoint %v", got, DefaultCheckpoint)
	}
}

func TestFileStore_SaveAppendsAndLastLineWins(t *testing.T) {
	store := NewFileStoreAt(filepath.Join(t.TempDir(), "checkpoint"))
	ctx := context.Background()

	first := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	second := time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !got.Equal(second) {
		t.Errorf("Load() = %v, want %v", got, second)
	}

	// Both checkpoints stay in the file as history.
	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Fields(string(data))
	if len(lines) != 2 {
		t.Errorf("expected 2 history lines, got %d: %q", len(lines), string(data))
	}
}

func TestFileStore_LoadSkipsTrailingBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint")
	content := "2024-03-10T08:00:00Z\n\n\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStoreAt(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Load() = %v, want %v", got, want)
	}
}

func TestFileStore_LoadCorruptCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint")
	if err := os.WriteFile(path, []byte("not a timestamp\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStoreAt(path).Load(context.Background()); err == nil {
		t.Fatal("expected error for corrupt checkpoint, got nil")
	}
}

func TestFileStore_EmptyFileYieldsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStoreAt(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !got.Equal(DefaultCheckpoint) {
		t.Errorf("Load() = %v, want default", got)
	}
}

func TestNewFileStore_ConventionalPath(t *testing.T) {
	store, err := NewFileStore("coveo_implementation")
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	if filepath.Base(store.Path()) != ".panopto-connector.coveo_implementation" {
		t.Errorf("Path() = %q", store.Path())
	}
}
