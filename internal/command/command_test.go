package command

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestOSExecutorCapturesOutputAndExitCode(t *testing.T) {
	script := writeScript(t, `echo "out $1"; echo "err" >&2; exit 3`)

	result, err := OSExecutor{}.Run(context.Background(), Spec{Binary: script, Args: []string{"a b"}})
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if result.ExitCode != 3 || result.Success() {
		t.Fatalf("unexpected exit code %d", result.ExitCode)
	}
	if strings.TrimSpace(string(result.Stdout)) != "out a b" {
		t.Fatalf("argument vector not preserved: %q", result.Stdout)
	}
	if !strings.Contains(string(result.Combined), "err") || !strings.Contains(string(result.Combined), "out") {
		t.Fatalf("combined output missing streams: %q", result.Combined)
	}
}

func TestOSExecutorRunsInDirWithEnv(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, `pwd; echo "$BIDSMIRROR_TEST"`)

	result, err := OSExecutor{}.Run(context.Background(), Spec{Dir: dir, Binary: script, Env: []string{"BIDSMIRROR_TEST=yes"}})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	out := string(result.Stdout)
	if !strings.Contains(out, resolved) && !strings.Contains(out, dir) {
		t.Fatalf("expected working dir in output, got %q", out)
	}
	if !strings.Contains(out, "yes") {
		t.Fatalf("expected env in output, got %q", out)
	}
}

func TestOSExecutorMissingBinary(t *testing.T) {
	_, err := OSExecutor{}.Run(context.Background(), Spec{Binary: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatal("expected start error")
	}
}

func TestOSExecutorContextTimeout(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := (OSExecutor{}).Run(ctx, Spec{Binary: script}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestTail(t *testing.T) {
	if got := Tail([]byte("abcdef\n"), 4); got != "def" {
		t.Fatalf("unexpected tail %q", got)
	}
	if got := Tail([]byte("abc"), 0); got != "abc" {
		t.Fatalf("unexpected tail %q", got)
	}
}
