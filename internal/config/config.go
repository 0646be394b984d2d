package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	WorkDir     string `toml:"work_dir"`
	FailuresDir string `toml:"failures_dir"`
	LogDir      string `toml:"log_dir"`
	StateDir    string `toml:"state_dir"`
}

// Catalog selects and configures the catalog listing source.
type Catalog struct {
	Source         string `toml:"source"`
	BaseURL        string `toml:"base_url"`
	File           string `toml:"file"`
	PageSize       int    `toml:"page_size"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Hosting contains configuration for the remote repository host.
type Hosting struct {
	APIURL         string `toml:"api_url"`
	RawURL         string `toml:"raw_url"`
	GitURL         string `toml:"git_url"`
	Token          string `toml:"token"`
	Organization   string `toml:"organization"`
	UpstreamOwner  string `toml:"upstream_owner"`
	RequestTimeout int    `toml:"request_timeout"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Mirror controls how missing mirror repositories are created and awaited.
type Mirror struct {
	// CreateMode is "fork" (fork the upstream into the organization) or
	// "create" (create an empty, auto-initialised repository).
	CreateMode      string `toml:"create_mode"`
	ReadyTimeout    int    `toml:"ready_timeout"`
	PollInterval    int    `toml:"poll_interval"`
	PollMaxInterval int    `toml:"poll_max_interval"`
}

// Run contains the per-pass batch parameters.
type Run struct {
	Branch  string `toml:"branch"`
	Workers int    `toml:"workers"`
	Limit   int    `toml:"limit"`
	// SessionLimit caps how many sessions the converter processes per unit.
	// Zero or negative means unbounded.
	SessionLimit     int    `toml:"session_limit"`
	PrimaryExtension string `toml:"primary_extension"`
	ManifestPath     string `toml:"manifest_path"`
	CommitMessage    string `toml:"commit_message"`
	AuthorName       string `toml:"author_name"`
	AuthorEmail      string `toml:"author_email"`
}

// Converter configures the external conversion engine.
type Converter struct {
	Binary  string `toml:"binary"`
	Version string `toml:"version"`
	// SourceDir, when set, is a git checkout of the converter whose
	// `git describe` output becomes the reported tool version.
	SourceDir string `toml:"source_dir"`
	Timeout   int    `toml:"timeout"`
}

// Validator configures the external schema validator.
type Validator struct {
	Enabled    bool   `toml:"enabled"`
	Binary     string `toml:"binary"`
	Schema     string `toml:"schema"`
	BaseConfig string `toml:"base_config"`
	Timeout    int    `toml:"timeout"`
}

// SuperDataset names the aggregate repository that links every mirror as a
// submodule.
type SuperDataset struct {
	Repository string `toml:"repository"`
	Branch     string `toml:"branch"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for bidsmirror.
//
// Configuration sections by subsystem:
//   - Paths: working copies, failure records, logs, and the run ledger
//   - Catalog: where the list of units comes from
//   - Hosting: mirror repository host API and credentials
//   - Mirror: lazy mirror creation and readiness polling
//   - Run: branch, concurrency, limits, and commit identity for a pass
//   - Converter / Validator: external tools
//   - SuperDataset: the aggregate repository of every mirror
//   - Logging: log format and level
//
// A Config is built once per process and treated as immutable afterwards;
// WithRunOverrides returns a modified copy instead of mutating.
type Config struct {
	Paths        Paths        `toml:"paths"`
	Catalog      Catalog      `toml:"catalog"`
	Hosting      Hosting      `toml:"hosting"`
	Mirror       Mirror       `toml:"mirror"`
	Run          Run          `toml:"run"`
	Converter    Converter    `toml:"converter"`
	Validator    Validator    `toml:"validator"`
	SuperDataset SuperDataset `toml:"super_dataset"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bidsmirror.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// WithRunOverrides returns a copy of the config with the driver's three run
// parameters applied. Negative workers or limit values leave the configured
// value untouched, as does an empty branch.
func (c Config) WithRunOverrides(workers, limit int, branch string) Config {
	out := c
	if workers >= 0 {
		out.Run.Workers = workers
	}
	if limit >= 0 {
		out.Run.Limit = limit
	}
	if branch = strings.TrimSpace(branch); branch != "" {
		out.Run.Branch = branch
	}
	return out
}

// EnsureDirectories creates the local directories a batch pass writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.FailuresDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath is the SQLite database recording batch passes and unit outcomes.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockPath is the file locked for the duration of a batch pass.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkDir, ".bidsmirror.lock")
}

// SessionLimit returns the configured limit and whether it is bounded.
func (c *Config) SessionLimit() (int, bool) {
	if c.Run.SessionLimit <= 0 {
		return 0, false
	}
	return c.Run.SessionLimit, true
}

// MirrorReadyTimeout is how long to poll for an asynchronously created mirror.
func (c *Config) MirrorReadyTimeout() time.Duration {
	return time.Duration(c.Mirror.ReadyTimeout) * time.Second
}

// MirrorPollInterval is the initial delay between mirror readiness probes.
func (c *Config) MirrorPollInterval() time.Duration {
	return time.Duration(c.Mirror.PollInterval) * time.Second
}

// MirrorPollMaxInterval caps the backoff between mirror readiness probes.
func (c *Config) MirrorPollMaxInterval() time.Duration {
	return time.Duration(c.Mirror.PollMaxInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
