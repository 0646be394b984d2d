package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// waitDelay bounds how long Run waits for grandchildren holding the output
// pipes after the process itself has exited or been killed.
const waitDelay = 10 * time.Second

// Spec describes one external process invocation. Args are passed to the
// binary as-is; nothing is interpreted by a shell.
type Spec struct {
	Dir    string
	Binary string
	Args   []string
	// Env entries are appended to the current environment.
	Env []string
}

// String renders the invocation for logs and errors.
func (s Spec) String() string {
	parts := append([]string{s.Binary}, s.Args...)
	return strings.Join(parts, " ")
}

// Result captures how a process exited and what it printed.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	// Combined interleaves stdout and stderr in arrival order.
	Combined []byte
}

// Success reports a zero exit status.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Executor runs external processes. Run returns an error only when the
// process could not be started or the context ended; a non-zero exit status
// is reported through Result.ExitCode so each caller applies its own
// exit-code contract.
type Executor interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// OSExecutor runs processes with os/exec.
type OSExecutor struct{}

func (OSExecutor) Run(ctx context.Context, spec Spec) (Result, error) {
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	cmd.WaitDelay = waitDelay
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	var stdout, stderr bytes.Buffer
	combined := &lockedBuffer{}
	cmd.Stdout = io.MultiWriter(&stdout, combined)
	cmd.Stderr = io.MultiWriter(&stderr, combined)

	err := cmd.Run()
	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Combined: combined.Bytes(),
	}
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s: %w", spec.Binary, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	result.ExitCode = -1
	return result, fmt.Errorf("start %s: %w", spec.Binary, err)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// Tail returns at most the last n bytes of output as trimmed text.
func Tail(output []byte, n int) string {
	if n > 0 && len(output) > n {
		output = output[len(output)-n:]
	}
	return strings.TrimSpace(string(output))
}
