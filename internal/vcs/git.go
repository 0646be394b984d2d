package vcs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"bidsmirror/internal/command"
	"bidsmirror/internal/services"
)

const outputTail = 2048

// Git drives the git command line. Every capability runs git with an
// argument vector and decides success from the exit status alone.
type Git struct {
	binary  string
	exec    command.Executor
	secrets []string
}

// Option configures Git.
type Option func(*Git)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec command.Executor) Option {
	return func(g *Git) {
		if exec != nil {
			g.exec = exec
		}
	}
}

// WithBinary overrides the git executable.
func WithBinary(binary string) Option {
	return func(g *Git) {
		if strings.TrimSpace(binary) != "" {
			g.binary = strings.TrimSpace(binary)
		}
	}
}

// WithSecrets registers values (such as tokens embedded in remote URLs) that
// must never appear in returned errors.
func WithSecrets(secrets ...string) Option {
	return func(g *Git) {
		for _, s := range secrets {
			if strings.TrimSpace(s) != "" {
				g.secrets = append(g.secrets, s)
			}
		}
	}
}

// New constructs a Git driver.
func New(opts ...Option) *Git {
	g := &Git{binary: "git", exec: command.OSExecutor{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Clone clones url into dir. The parent of dir must exist.
func (g *Git) Clone(ctx context.Context, url, dir string) error {
	_, err := g.mustRun(ctx, filepath.Dir(dir), "clone", url, filepath.Base(dir))
	return err
}

// Fetch updates remote-tracking refs from origin.
func (g *Git) Fetch(ctx context.Context, dir string) error {
	_, err := g.mustRun(ctx, dir, "fetch", "--prune", "origin")
	return err
}

// Checkout switches to an existing local branch, or creates a tracking
// branch when origin has one of that name.
func (g *Git) Checkout(ctx context.Context, dir, branch string) error {
	_, err := g.mustRun(ctx, dir, "checkout", branch)
	return err
}

// CheckoutNew creates branch at the current position and switches to it.
func (g *Git) CheckoutNew(ctx context.Context, dir, branch string) error {
	_, err := g.mustRun(ctx, dir, "checkout", "-b", branch)
	return err
}

// CurrentBranch returns the checked-out branch name ("HEAD" when detached).
func (g *Git) CurrentBranch(ctx context.Context, dir string) (string, error) {
	res, err := g.mustRun(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// ConfigureIdentity sets the repository-local commit author.
func (g *Git) ConfigureIdentity(ctx context.Context, dir, name, email string) error {
	if _, err := g.mustRun(ctx, dir, "config", "--local", "user.name", name); err != nil {
		return err
	}
	_, err := g.mustRun(ctx, dir, "config", "--local", "user.email", email)
	return err
}

// ResetHard moves the current branch and working tree to ref.
func (g *Git) ResetHard(ctx context.Context, dir, ref string) error {
	_, err := g.mustRun(ctx, dir, "reset", "--hard", ref)
	return err
}

// AddAll stages every change in the working tree, deletions included.
func (g *Git) AddAll(ctx context.Context, dir string) error {
	_, err := g.mustRun(ctx, dir, "add", "--all")
	return err
}

// HasStagedChanges reports whether the index differs from HEAD.
// git diff --quiet exits 1 when there are differences and 0 when there are none.
func (g *Git) HasStagedChanges(ctx context.Context, dir string) (bool, error) {
	res, err := g.run(ctx, dir, "diff", "--cached", "--quiet")
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, g.exitError("diff --cached", res)
	}
}

// Commit records the index with message.
func (g *Git) Commit(ctx context.Context, dir, message string) error {
	_, err := g.mustRun(ctx, dir, "commit", "--message", message)
	return err
}

// HasUpstream reports whether branch has a configured upstream remote.
// git config --get exits 1 when the key is absent.
func (g *Git) HasUpstream(ctx context.Context, dir, branch string) (bool, error) {
	res, err := g.run(ctx, dir, "config", "--get", "branch."+branch+".remote")
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return strings.TrimSpace(string(res.Stdout)) != "", nil
	case 1:
		return false, nil
	default:
		return false, g.exitError("config --get", res)
	}
}

// Push pushes the current branch to its upstream.
func (g *Git) Push(ctx context.Context, dir string) error {
	_, err := g.mustRun(ctx, dir, "push")
	return err
}

// PushSetUpstream pushes branch to remote and records it as the upstream.
func (g *Git) PushSetUpstream(ctx context.Context, dir, remote, branch string) error {
	_, err := g.mustRun(ctx, dir, "push", "--set-upstream", remote, branch)
	return err
}

// RemoteBranches lists the branch names present on origin.
func (g *Git) RemoteBranches(ctx context.Context, dir string) ([]string, error) {
	res, err := g.mustRun(ctx, dir, "ls-remote", "--heads", "origin")
	if err != nil {
		return nil, err
	}
	var branches []string
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		if name, ok := strings.CutPrefix(fields[1], "refs/heads/"); ok {
			branches = append(branches, name)
		}
	}
	return branches, scanner.Err()
}

// DeleteRemoteBranch deletes branch from origin.
func (g *Git) DeleteRemoteBranch(ctx context.Context, dir, branch string) error {
	_, err := g.mustRun(ctx, dir, "push", "origin", "--delete", branch)
	return err
}

// SubmoduleAdd registers url as a submodule checked out at path, relative to
// dir.
func (g *Git) SubmoduleAdd(ctx context.Context, dir, url, path string) error {
	_, err := g.mustRun(ctx, dir, "submodule", "add", "--", url, path)
	return err
}

// DescribeTags returns the nearest tag description of HEAD, falling back to
// an abbreviated commit hash when the repository has no tags.
func (g *Git) DescribeTags(ctx context.Context, dir string) (string, error) {
	res, err := g.mustRun(ctx, dir, "describe", "--tags", "--always", "--dirty")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (command.Result, error) {
	spec := command.Spec{
		Dir:    dir,
		Binary: g.binary,
		Args:   args,
		Env:    []string{"GIT_TERMINAL_PROMPT=0", "LC_ALL=C"},
	}
	res, err := g.exec.Run(ctx, spec)
	if err != nil {
		return res, services.Wrap(services.ErrVersionControl, "vcs", "git "+subcommand(args), "", g.redactErr(err))
	}
	return res, nil
}

func (g *Git) mustRun(ctx context.Context, dir string, args ...string) (command.Result, error) {
	res, err := g.run(ctx, dir, args...)
	if err != nil {
		return res, err
	}
	if !res.Success() {
		return res, g.exitError(subcommand(args), res)
	}
	return res, nil
}

func (g *Git) exitError(op string, res command.Result) error {
	detail := fmt.Sprintf("exit status %d", res.ExitCode)
	if out := command.Tail(res.Combined, outputTail); out != "" {
		detail += ": " + g.redact(out)
	}
	return services.Wrap(services.ErrVersionControl, "vcs", "git "+op, detail, nil)
}

func (g *Git) redact(s string) string {
	for _, secret := range g.secrets {
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}

func (g *Git) redactErr(err error) error {
	msg := err.Error()
	if redacted := g.redact(msg); redacted != msg {
		return redactedError{msg: redacted, err: err}
	}
	return err
}

type redactedError struct {
	msg string
	err error
}

func (e redactedError) Error() string { return e.msg }

func (e redactedError) Unwrap() error { return e.err }

func subcommand(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
