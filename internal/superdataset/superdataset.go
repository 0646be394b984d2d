package superdataset

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bidsmirror/internal/config"
	"bidsmirror/internal/hosting"
	"bidsmirror/internal/logging"
	"bidsmirror/internal/services"
)

const remoteName = "origin"

// VCS is the set of git capabilities an update needs.
type VCS interface {
	Clone(ctx context.Context, url, dir string) error
	Fetch(ctx context.Context, dir string) error
	ConfigureIdentity(ctx context.Context, dir, name, email string) error
	Checkout(ctx context.Context, dir, branch string) error
	CheckoutNew(ctx context.Context, dir, branch string) error
	HasUpstream(ctx context.Context, dir, branch string) (bool, error)
	ResetHard(ctx context.Context, dir, ref string) error
	SubmoduleAdd(ctx context.Context, dir, url, path string) error
	AddAll(ctx context.Context, dir string) error
	HasStagedChanges(ctx context.Context, dir string) (bool, error)
	Commit(ctx context.Context, dir, message string) error
	Push(ctx context.Context, dir string) error
	PushSetUpstream(ctx context.Context, dir, remote, branch string) error
}

// Host probes mirrors and resolves their URLs.
type Host interface {
	Repository(ctx context.Context, name string) (hosting.Repository, error)
	CloneURL(name string) string
	PublicURL(name string) string
}

// Options configures the updater.
type Options struct {
	WorkDir       string
	Repository    string
	Branch        string
	CommitMessage string
	AuthorName    string
	AuthorEmail   string
}

// OptionsFrom extracts super-dataset settings from the application config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		WorkDir:       cfg.Paths.WorkDir,
		Repository:    cfg.SuperDataset.Repository,
		Branch:        cfg.SuperDataset.Branch,
		CommitMessage: cfg.Run.CommitMessage,
		AuthorName:    cfg.Run.AuthorName,
		AuthorEmail:   cfg.Run.AuthorEmail,
	}
}

// Report summarises one update.
type Report struct {
	Added       []string
	Present     []string
	Unavailable []string
	Committed   bool
}

// Updater registers mirrors in the super-dataset.
type Updater struct {
	git    VCS
	host   Host
	opts   Options
	logger *slog.Logger
}

// NewUpdater constructs an Updater.
func NewUpdater(git VCS, host Host, opts Options, logger *slog.Logger) *Updater {
	return &Updater{git: git, host: host, opts: opts, logger: logging.NewComponentLogger(logger, "superdataset")}
}

// Dir is where the super-dataset working copy lives.
func (u *Updater) Dir() string {
	return filepath.Join(u.opts.WorkDir, u.opts.Repository)
}

// Update adds a submodule for every accessible unit not yet registered,
// then commits and pushes when anything changed. A unit whose mirror cannot
// be probed for any reason other than access or absence fails the update.
func (u *Updater) Update(ctx context.Context, units []string) (Report, error) {
	logger := logging.WithContext(ctx, u.logger)
	var report Report
	dir := u.Dir()
	if err := u.sync(ctx, dir); err != nil {
		return report, err
	}
	registered, err := Submodules(dir)
	if err != nil {
		return report, err
	}

	for _, id := range units {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, ok := registered[id]; ok {
			report.Present = append(report.Present, id)
			continue
		}
		if _, err := u.host.Repository(ctx, id); err != nil {
			if errors.Is(err, services.ErrAccessDenied) || errors.Is(err, services.ErrNotFound) {
				logger.Info("mirror unavailable; not linked",
					logging.String(logging.FieldUnitID, id),
					logging.String("reason", err.Error()),
				)
				report.Unavailable = append(report.Unavailable, id)
				continue
			}
			return report, fmt.Errorf("unit %s: probe mirror: %w", id, err)
		}
		if err := u.git.SubmoduleAdd(ctx, dir, u.host.PublicURL(id), id); err != nil {
			return report, fmt.Errorf("unit %s: %w", id, err)
		}
		logger.Info("mirror linked", logging.String(logging.FieldUnitID, id))
		report.Added = append(report.Added, id)
	}

	if err := u.git.AddAll(ctx, dir); err != nil {
		return report, err
	}
	changed, err := u.git.HasStagedChanges(ctx, dir)
	if err != nil || !changed {
		return report, err
	}
	if err := u.git.Commit(ctx, dir, u.opts.CommitMessage); err != nil {
		return report, err
	}
	if err := u.push(ctx, dir); err != nil {
		return report, err
	}
	report.Committed = true
	logger.Info("super-dataset updated",
		logging.Int("added", len(report.Added)),
		logging.Int("present", len(report.Present)),
		logging.Int("unavailable", len(report.Unavailable)),
	)
	return report, nil
}

// sync clones or refreshes the working copy and leaves it on the branch,
// aligned with the remote when the branch exists there.
func (u *Updater) sync(ctx context.Context, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return fmt.Errorf("create work dir: %w", err)
		}
		if err := u.git.Clone(ctx, u.host.CloneURL(u.opts.Repository), dir); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("inspect super-dataset: %w", err)
	} else if err := u.git.Fetch(ctx, dir); err != nil {
		return err
	}
	if err := u.git.ConfigureIdentity(ctx, dir, u.opts.AuthorName, u.opts.AuthorEmail); err != nil {
		return err
	}
	if err := u.git.Checkout(ctx, dir, u.opts.Branch); err != nil {
		if err := u.git.CheckoutNew(ctx, dir, u.opts.Branch); err != nil {
			return err
		}
	}
	upstream, err := u.git.HasUpstream(ctx, dir, u.opts.Branch)
	if err != nil {
		return err
	}
	if upstream {
		return u.git.ResetHard(ctx, dir, remoteName+"/"+u.opts.Branch)
	}
	return nil
}

func (u *Updater) push(ctx context.Context, dir string) error {
	upstream, err := u.git.HasUpstream(ctx, dir, u.opts.Branch)
	if err != nil {
		return err
	}
	if upstream {
		return u.git.Push(ctx, dir)
	}
	return u.git.PushSetUpstream(ctx, dir, remoteName, u.opts.Branch)
}

// Submodules returns the paths registered in dir's .gitmodules.
func Submodules(dir string) (map[string]struct{}, error) {
	paths := make(map[string]struct{})
	data, err := os.ReadFile(filepath.Join(dir, ".gitmodules"))
	if errors.Is(err, fs.ErrNotExist) {
		return paths, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read .gitmodules: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok || strings.TrimSpace(key) != "path" {
			continue
		}
		paths[strings.TrimSpace(value)] = struct{}{}
	}
	return paths, scanner.Err()
}
