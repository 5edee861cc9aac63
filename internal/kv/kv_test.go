package kv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := SetJSON(ctx, s, "ids", []string{"1", "2"}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var ids []string
	if err := GetJSON(ctx, s, "ids", &ids); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Fatalf("unexpected ids %v", ids)
	}

	if err := SetJSON(ctx, s, "enabled", false); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	enabled := true
	if err := GetJSON(ctx, s, "enabled", &enabled); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if enabled {
		t.Fatal("expected enabled=false after overwrite")
	}

	if err := s.Remove(ctx, "ids"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := GetJSON(ctx, s, "ids", &ids); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
	if err := s.Remove(ctx, "ids"); err != nil {
		t.Fatalf("second Remove should be a no-op, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "state.json")))
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	if err := SetJSON(ctx, NewFileStore(path), "last", int64(1700000000000)); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var last int64
	if err := GetJSON(ctx, NewFileStore(path), "last", &last); err != nil {
		t.Fatalf("GetJSON after reopen: %v", err)
	}
	if last != 1700000000000 {
		t.Fatalf("unexpected value %d", last)
	}
}

func TestFileStore_RejectsInvalidJSON(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err := s.Set(context.Background(), "k", []byte("{nope")); err == nil {
		t.Fatal("expected error for invalid JSON value")
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewFileStore(path).Get(context.Background(), "k")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
