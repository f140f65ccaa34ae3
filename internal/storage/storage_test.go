package storage_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"supportwidget/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSetSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.json")

	s, err := storage.New(path, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Set("sw_guest_id", "guest_abc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	reopened, err := storage.New(path, testLogger())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.Get("sw_guest_id"); got != "guest_abc" {
		t.Fatalf("Get after reopen = %q, want guest_abc", got)
	}
	if got := reopened.Get("missing"); got != "" {
		t.Fatalf("Get(missing) = %q, want empty", got)
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seeding corrupt file: %v", err)
	}

	s, err := storage.New(path, testLogger())
	if err != nil {
		t.Fatalf("New on corrupt file failed: %v", err)
	}
	if got := s.Get("sw_guest_id"); got != "" {
		t.Fatalf("corrupt store returned value %q", got)
	}
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set after corruption failed: %v", err)
	}
}
