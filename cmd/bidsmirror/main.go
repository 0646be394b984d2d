package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bidsmirror/internal/syncrun"
)

// Exit codes: 1 for any failure, 2 when another sync pass holds the lock.
const (
	exitFailure = 1
	exitLocked  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitFailure
	case errors.Is(err, syncrun.ErrLocked):
		fmt.Fprintln(os.Stderr, err)
		return exitLocked
	default:
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
}
