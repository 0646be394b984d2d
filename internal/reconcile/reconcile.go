package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"bidsmirror/internal/logging"
	"bidsmirror/internal/services"
	"bidsmirror/internal/version"
)

// Decision is the Reconciler's verdict for one unit.
type Decision int

const (
	// Run means the unit needs (re)processing.
	Run Decision = iota
	// Skip means a sufficient manifest is already published.
	Skip
	// Abstain means the manifest could not be read because access was denied;
	// the unit is neither processed nor recorded as failed.
	Abstain
)

func (d Decision) String() string {
	switch d {
	case Run:
		return "run"
	case Skip:
		return "skip"
	case Abstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// Current describes what this pass would publish. A nil SessionLimit means
// unbounded.
type Current struct {
	ToolVersion  string
	SessionLimit *int
}

// ShouldRun applies the reconciliation rule. A nil previous manifest means the
// unit never completed. The result can only move toward true as the current
// version rises or the current limit grows.
func ShouldRun(cur Current, prev *Manifest) bool {
	if prev == nil {
		return true
	}
	if version.Compare(prev.ToolVersion, cur.ToolVersion) < 0 {
		return true
	}
	return !limitSatisfied(prev.SessionLimit, cur.SessionLimit)
}

func limitSatisfied(prev, cur *int) bool {
	if prev == nil {
		return true
	}
	if cur == nil {
		return false
	}
	return *prev >= *cur
}

// FileFetcher reads a file from a unit's mirror at a branch. It must return
// an error matching services.ErrNotFound when the file is absent and
// services.ErrAccessDenied when the host refuses access.
type FileFetcher interface {
	RawFile(ctx context.Context, repo, ref, path string) ([]byte, error)
}

// Reconciler fetches published manifests and decides whether units need work.
type Reconciler struct {
	fetcher      FileFetcher
	manifestPath string
	logger       *slog.Logger
}

// New constructs a Reconciler reading manifests at manifestPath.
func New(fetcher FileFetcher, manifestPath string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		fetcher:      fetcher,
		manifestPath: manifestPath,
		logger:       logging.NewComponentLogger(logger, "reconcile"),
	}
}

// Decide fetches the unit's manifest on branch and applies ShouldRun. The
// returned manifest is the previously published one, or nil.
func (r *Reconciler) Decide(ctx context.Context, unitID, branch string, cur Current) (Decision, *Manifest, error) {
	logger := logging.WithContext(ctx, r.logger)
	data, err := r.fetcher.RawFile(ctx, unitID, branch, r.manifestPath)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotFound):
		logger.Debug("no published manifest", logging.String(logging.FieldBranch, branch))
		return Run, nil, nil
	case errors.Is(err, services.ErrAccessDenied):
		logging.WarnWithContext(logger, "manifest access denied; abstaining", "manifest_access_denied",
			logging.String(logging.FieldBranch, branch),
			logging.String(logging.FieldErrorHint, "check the hosting token scopes"),
			logging.Error(err),
		)
		return Abstain, nil, nil
	default:
		return Run, nil, services.Wrap(services.ErrTransient, "reconcile", "fetch manifest", "", err)
	}

	prev, err := ParseManifest(data)
	if err != nil {
		logging.WarnWithContext(logger, "published manifest unreadable; treating unit as never run", "manifest_malformed",
			logging.Error(err),
		)
		return Run, nil, nil
	}

	if ShouldRun(cur, prev) {
		logger.Info("reprocessing required",
			logging.String("previous_version", prev.ToolVersion),
			logging.String("current_version", cur.ToolVersion),
		)
		return Run, prev, nil
	}
	logger.Info("up to date", logging.String("previous_version", prev.ToolVersion))
	return Skip, prev, nil
}
