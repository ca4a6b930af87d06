package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dashboard/api/internal/util"
	"github.com/rs/zerolog"
)

func TestResolveCreatesAndReusesIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session-id")

	first := NewResolver(path, zerolog.Nop())
	id := first.Resolve()
	if !util.ValidKey(id) {
		t.Fatalf("generated id %q is not a valid key", id)
	}
	if !first.Durable() {
		t.Error("expected durable identity")
	}
	if again := first.Resolve(); again != id {
		t.Errorf("expected stable id %q, got %q", id, again)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read session file: %v", err)
	}
	if strings.TrimSpace(string(raw)) != id {
		t.Errorf("expected file to hold %q, got %q", id, raw)
	}

	// A later process sees the same identity.
	second := NewResolver(path, zerolog.Nop())
	if got := second.Resolve(); got != id {
		t.Errorf("expected persisted id %q, got %q", id, got)
	}
}

func TestResolveWritesOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session-id")
	r := NewResolver(path, zerolog.Nop())
	id := r.Resolve()

	// Changing the file after the first resolution does not change the answer.
	if err := os.WriteFile(path, []byte("someone-else\n"), 0o600); err != nil {
		t.Fatalf("overwrite session file: %v", err)
	}
	if got := r.Resolve(); got != id {
		t.Errorf("expected cached id %q, got %q", id, got)
	}
}

func TestResolveKeepsExistingIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session-id")
	if err := os.WriteFile(path, []byte("  existing_id-42 \n"), 0o600); err != nil {
		t.Fatalf("seed session file: %v", err)
	}

	r := NewResolver(path, zerolog.Nop())
	if got := r.Resolve(); got != "existing_id-42" {
		t.Errorf("expected existing id, got %q", got)
	}
}

func TestResolveReplacesCorruptIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session-id")
	if err := os.WriteFile(path, []byte("not a valid/id"), 0o600); err != nil {
		t.Fatalf("seed session file: %v", err)
	}

	r := NewResolver(path, zerolog.Nop())
	id := r.Resolve()
	if id == "not a valid/id" || !util.ValidKey(id) {
		t.Fatalf("expected a fresh id, got %q", id)
	}
	if !r.Durable() {
		t.Error("expected replaced identity to be durable")
	}
}

func TestResolveFallsBackToEphemeral(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("create blocker: %v", err)
	}
	// The parent of the session file is a regular file, so MkdirAll fails.
	r := NewResolver(filepath.Join(blocker, "session-id"), zerolog.Nop())

	id := r.Resolve()
	if !util.ValidKey(id) {
		t.Fatalf("expected usable ephemeral id, got %q", id)
	}
	if r.Durable() {
		t.Error("expected ephemeral identity")
	}
	if again := r.Resolve(); again != id {
		t.Errorf("ephemeral id changed within a process: %q vs %q", id, again)
	}
}

func TestResolveWithoutPath(t *testing.T) {
	r := NewResolver("", zerolog.Nop())
	if id := r.Resolve(); id == "" {
		t.Fatal("expected an id")
	}
	if r.Durable() {
		t.Error("expected ephemeral identity without a path")
	}
}
