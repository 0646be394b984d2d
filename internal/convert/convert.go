package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"bidsmirror/internal/logging"
	"bidsmirror/internal/reconcile"
)

// Request is one unit's conversion job.
type Request struct {
	UnitID string
	// SessionLimit caps converted sessions; nil means unbounded.
	SessionLimit *int
	// OutputRoot is the directory the artifact tree is written into.
	OutputRoot string
}

// Output is what an engine reports besides the artifact tree on disk.
type Output struct {
	Notifications []Notification
	// TotalSessions is the number of sessions the source unit holds, when the
	// engine knows it.
	TotalSessions *int
}

// Engine is the external conversion engine.
type Engine interface {
	Convert(ctx context.Context, req Request) (Output, error)
	Version(ctx context.Context) (string, error)
}

// Result is a completed conversion, normalized for publishing.
type Result struct {
	Notifications     []Notification
	SessionsConverted int
	TotalSessions     reconcile.TotalSessions
}

// Invoker runs the engine and derives the session counts.
type Invoker struct {
	engine           Engine
	primaryExtension string
	logger           *slog.Logger
}

// NewInvoker constructs an Invoker counting sessions that contain at least one
// file ending in primaryExtension.
func NewInvoker(engine Engine, primaryExtension string, logger *slog.Logger) *Invoker {
	return &Invoker{
		engine:           engine,
		primaryExtension: primaryExtension,
		logger:           logging.NewComponentLogger(logger, "convert"),
	}
}

// Version reports the engine's tool version.
func (i *Invoker) Version(ctx context.Context) (string, error) {
	return i.engine.Version(ctx)
}

// Run converts the unit into req.OutputRoot.
func (i *Invoker) Run(ctx context.Context, req Request) (Result, error) {
	logger := logging.WithContext(ctx, i.logger)
	out, err := i.engine.Convert(ctx, req)
	if err != nil {
		return Result{}, err
	}

	converted, err := CountSessions(req.OutputRoot, i.primaryExtension)
	if err != nil {
		return Result{}, err
	}
	total := totalSessions(out.TotalSessions, req.SessionLimit, converted)

	logger.Info("conversion finished",
		logging.Int("sessions_converted", converted),
		logging.String("total_sessions", total.String()),
		logging.Int("notifications", len(out.Notifications)),
	)
	return Result{
		Notifications:     out.Notifications,
		SessionsConverted: converted,
		TotalSessions:     total,
	}, nil
}

// totalSessions prefers the engine's figure. Otherwise the total is known
// only when the limit cannot have truncated the conversion.
func totalSessions(reported, limit *int, converted int) reconcile.TotalSessions {
	if reported != nil {
		return reconcile.KnownTotal(*reported)
	}
	if limit == nil || converted < *limit {
		return reconcile.KnownTotal(converted)
	}
	return reconcile.UnknownTotal()
}

// CountSessions counts directories named ses-* under root that contain at
// least one file with the given extension anywhere beneath them. A missing
// root or a tree without sessions counts as zero.
func CountSessions(root, extension string) (int, error) {
	extension = strings.ToLower(extension)
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return fs.SkipDir
		}
		if !strings.HasPrefix(d.Name(), "ses-") {
			return nil
		}
		found, err := containsExtension(path, extension)
		if err != nil {
			return err
		}
		if found {
			count++
		}
		return fs.SkipDir
	})
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

var errFound = errors.New("found")

func containsExtension(dir, extension string) (bool, error) {
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), extension) {
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return true, nil
	}
	return false, err
}
