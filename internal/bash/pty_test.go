package bash

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExecuteCommand_SimpleCommand(t *testing.T) {
	result, err := ExecuteCommand(context.Background(), t.TempDir(), "echo hello", nil)
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}

	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}

	if result.Output != "hello\n" {
		t.Errorf("Expected output %q, got %q", "hello\n", result.Output)
	}
}

func TestExecuteCommand_NonZeroExitCode(t *testing.T) {
	result, err := ExecuteCommand(context.Background(), t.TempDir(), "exit 42", nil)
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}

	if result.ExitCode != 42 {
		t.Errorf("Expected exit code 42, got %d", result.ExitCode)
	}
}

func TestExecuteCommand_RunsInDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := ExecuteCommand(context.Background(), dir, "ls", nil)
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}

	if !strings.Contains(result.Output, "marker.txt") {
		t.Errorf("Expected output to list marker.txt, got: %q", result.Output)
	}
}

func TestExecuteCommand_CombinesStderr(t *testing.T) {
	result, err := ExecuteCommand(context.Background(), t.TempDir(), "echo stdout_msg; echo stderr_msg >&2", nil)
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}

	if !strings.Contains(result.Output, "stdout_msg") || !strings.Contains(result.Output, "stderr_msg") {
		t.Errorf("Expected both streams in output, got: %q", result.Output)
	}
}

func TestExecuteCommand_StripsANSI(t *testing.T) {
	result, err := ExecuteCommand(context.Background(), t.TempDir(), `printf '\033[31mred\033[0m\n'`, nil)
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}

	if result.Output != "red\n" {
		t.Errorf("Expected plain output, got: %q", result.Output)
	}
}

func TestExecuteCommand_WithLiveOutput(t *testing.T) {
	var live bytes.Buffer

	result, err := ExecuteCommand(context.Background(), t.TempDir(), "echo live_test", &live)
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}

	if !strings.Contains(result.Output, "live_test") {
		t.Errorf("Expected captured output to contain 'live_test', got: %q", result.Output)
	}
	if !strings.Contains(live.String(), "live_test") {
		t.Errorf("Expected live output to contain 'live_test', got: %q", live.String())
	}
}

func TestExecuteCommand_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := ExecuteCommand(ctx, t.TempDir(), "sleep 10", nil)
	if err == nil {
		t.Fatal("Expected an error due to context cancellation")
	}
}

func TestCleanOutput(t *testing.T) {
	got := CleanOutput("\x1b[1mbold\x1b[0m\r\nnext\r\n")
	if got != "bold\nnext\n" {
		t.Errorf("unexpected clean output: %q", got)
	}
}
