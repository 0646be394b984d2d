package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"bidsmirror/internal/config"
	"bidsmirror/internal/logging"
	"bidsmirror/internal/services"
)

// preserved lists the top-level entries that survive Clean. Everything else
// in a working copy is regenerated by each run.
var preserved = map[string]struct{}{
	".git":           {},
	".gitattributes": {},
	".gitignore":     {},
	".datalad":       {},
	"README.md":      {},
	"LICENSE":        {},
}

// preservedFiles are nested paths, slash separated, that survive Clean. The
// validator config is maintained per dataset and is not regenerated.
var preservedFiles = []string{
	"derivatives/validations/dandiset_bids_validation_config.json",
}

// WorkingCopy is a unit's local clone, checked out on the target branch.
type WorkingCopy struct {
	UnitID string
	Dir    string
	Branch string
}

// VCS is the set of git capabilities the manager needs.
type VCS interface {
	Clone(ctx context.Context, url, dir string) error
	Fetch(ctx context.Context, dir string) error
	ConfigureIdentity(ctx context.Context, dir, name, email string) error
	ResetHard(ctx context.Context, dir, ref string) error
	Checkout(ctx context.Context, dir, branch string) error
	CheckoutNew(ctx context.Context, dir, branch string) error
	HasUpstream(ctx context.Context, dir, branch string) (bool, error)
	CurrentBranch(ctx context.Context, dir string) (string, error)
}

// Remote resolves the clone URL of a unit's mirror.
type Remote interface {
	CloneURL(name string) string
}

// Options configures working copy preparation.
type Options struct {
	WorkDir     string
	AuthorName  string
	AuthorEmail string
}

// OptionsFrom extracts workspace settings from the application config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		WorkDir:     cfg.Paths.WorkDir,
		AuthorName:  cfg.Run.AuthorName,
		AuthorEmail: cfg.Run.AuthorEmail,
	}
}

// Manager prepares per-unit working copies under the work directory.
type Manager struct {
	git    VCS
	remote Remote
	opts   Options
	logger *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(git VCS, remote Remote, opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		git:    git,
		remote: remote,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "workspace"),
	}
}

// Path returns the working copy directory for a unit.
func (m *Manager) Path(unitID string) string {
	return filepath.Join(m.opts.WorkDir, unitID)
}

// Prepare clones or refreshes the unit's working copy, checks out branch
// (creating it from the current position when it does not exist), verifies
// the checkout, and clears every generated artifact.
func (m *Manager) Prepare(ctx context.Context, unitID, branch string) (WorkingCopy, error) {
	logger := logging.WithContext(ctx, m.logger)
	dir := m.Path(unitID)
	wc := WorkingCopy{UnitID: unitID, Dir: dir, Branch: branch}

	if err := m.sync(ctx, logger, unitID, dir); err != nil {
		return wc, err
	}
	if err := m.git.ConfigureIdentity(ctx, dir, m.opts.AuthorName, m.opts.AuthorEmail); err != nil {
		return wc, err
	}

	if err := m.git.Checkout(ctx, dir, branch); err != nil {
		logger.Info("branch not found; creating", logging.String(logging.FieldBranch, branch))
		if err := m.git.CheckoutNew(ctx, dir, branch); err != nil {
			return wc, err
		}
	}

	tracked, err := m.git.HasUpstream(ctx, dir, branch)
	if err != nil {
		return wc, err
	}
	if tracked {
		if err := m.git.ResetHard(ctx, dir, "origin/"+branch); err != nil {
			logging.WarnWithContext(logger, "could not align branch with remote", "workspace_reset_failed",
				logging.String(logging.FieldBranch, branch),
				logging.String(logging.FieldErrorHint, "remote branch may have been deleted; it will be recreated on push"),
				logging.Error(err),
			)
		}
	}

	current, err := m.git.CurrentBranch(ctx, dir)
	if err != nil {
		return wc, err
	}
	if current != branch {
		return wc, services.Wrap(services.ErrBranchInvariant, "workspace", "verify branch",
			fmt.Sprintf("checked out %q, expected %q", current, branch), nil)
	}

	removed, err := Clean(dir)
	if err != nil {
		return wc, err
	}
	logger.Debug("working copy prepared",
		logging.String(logging.FieldBranch, branch),
		logging.Int("removed_entries", removed),
	)
	return wc, nil
}

func (m *Manager) sync(ctx context.Context, logger *slog.Logger, unitID, dir string) error {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	switch {
	case err == nil:
		if err := m.git.Fetch(ctx, dir); err != nil {
			return err
		}
		// Discard tracked leftovers of an interrupted run so checkout cannot conflict.
		return m.git.ResetHard(ctx, dir, "HEAD")
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("inspect working copy: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove partial working copy: %w", err)
	}
	if err := os.MkdirAll(m.opts.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	logger.Info("cloning mirror")
	return m.git.Clone(ctx, m.remote.CloneURL(unitID), dir)
}

// Remove deletes a unit's working copy entirely.
func (m *Manager) Remove(unitID string) error {
	if err := os.RemoveAll(m.Path(unitID)); err != nil {
		return fmt.Errorf("remove working copy: %w", err)
	}
	return nil
}

// Clean removes everything in dir except the preserved repository metadata
// and the dataset's own validator config, and returns how many entries were
// removed.
func Clean(dir string) (int, error) {
	return cleanDir(dir, "")
}

func cleanDir(root, rel string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return 0, fmt.Errorf("read working copy: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		name := path.Join(rel, entry.Name())
		if _, keep := preserved[name]; keep && rel == "" {
			continue
		}
		full := filepath.Join(root, filepath.FromSlash(name))
		if keep, nested := keptBelow(name); keep {
			continue
		} else if nested && entry.IsDir() {
			n, err := cleanDir(root, name)
			removed += n
			if err != nil {
				return removed, err
			}
			if left, err := os.ReadDir(full); err == nil && len(left) > 0 {
				continue
			}
		}
		if err := os.RemoveAll(full); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

// keptBelow reports whether name is a preserved file, or a directory that
// contains one.
func keptBelow(name string) (keep, nested bool) {
	for _, f := range preservedFiles {
		if f == name {
			return true, false
		}
		if strings.HasPrefix(f, name+"/") {
			nested = true
		}
	}
	return false, nested
}
