package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/le0/internal/testutil/testlog"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	if err := s.Put("seen/alice", "hello"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("seen/bob", "hi"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("quote/0001", "to be or not"); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get("seen/alice")
	if err != nil || got != "hello" {
		t.Fatalf("get got=%q err=%v", got, err)
	}
	if _, err := s.Get("seen/carol"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put("  ", "x"); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	keys, err := s.List("seen/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0] != "seen/alice" || keys[1] != "seen/bob" {
		t.Fatalf("list got=%v", keys)
	}
	if err := s.Delete("seen/bob"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("seen/bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted key still present: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testlog.Start(t)
	exerciseStore(t, NewMemory())
}

func TestFileStorePersistsAcrossOpen(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "state", "le0.toml")
	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseStore(t, s)

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get("quote/0001")
	if err != nil || got != "to be or not" {
		t.Fatalf("reopened get got=%q err=%v", got, err)
	}
	keys, _ := reopened.List("")
	if len(keys) != 2 {
		t.Fatalf("reopened keys got=%v", keys)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("entries = [not toml"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := OpenFile(path); err == nil {
		t.Fatalf("expected decode error")
	}
}
