package camera

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// installFake creates an executable stub named name inside dir.
func installFake(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write fake %s: %v", name, err)
	}
	return path
}

func TestResolveCommand_ModernNameWins(t *testing.T) {
	dir := t.TempDir()
	modern := installFake(t, dir, "rpicam-still", "exit 0")
	installFake(t, dir, "libcamera-still", "exit 0")
	t.Setenv("PATH", dir)

	got, err := ResolveCommand("still")
	if err != nil {
		t.Fatalf("ResolveCommand: %v", err)
	}
	if got != modern {
		t.Errorf("resolved %q, want modern name %q", got, modern)
	}
}

func TestResolveCommand_LegacyFallback(t *testing.T) {
	dir := t.TempDir()
	legacy := installFake(t, dir, "libcamera-still", "exit 0")
	t.Setenv("PATH", dir)

	got, err := ResolveCommand("still")
	if err != nil {
		t.Fatalf("ResolveCommand: %v", err)
	}
	if got != legacy {
		t.Errorf("resolved %q, want legacy fallback %q", got, legacy)
	}
}

func TestResolveCommand_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := ResolveCommand("still")
	if err == nil {
		t.Fatal("expected error for missing binaries, got nil")
	}

	var notFound *CommandNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error type = %T, want *CommandNotFoundError", err)
	}
	if notFound.Action != "still" {
		t.Errorf("Action = %q, want \"still\"", notFound.Action)
	}
	if len(notFound.Tried) != 2 {
		t.Errorf("Tried = %v, want two candidates", notFound.Tried)
	}
	if !strings.Contains(notFound.Error(), "rpicam-still") {
		t.Errorf("error message should name the tried binaries: %q", notFound.Error())
	}
}

func TestResolveCommand_Repeatable(t *testing.T) {
	dir := t.TempDir()
	installFake(t, dir, "rpicam-hello", "exit 0")
	t.Setenv("PATH", dir)

	first, err := ResolveCommand("hello")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := ResolveCommand("hello")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if first != second {
		t.Errorf("resolve not stable: %q then %q", first, second)
	}
}
