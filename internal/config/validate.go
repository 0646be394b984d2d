package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateHosting(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"converter.timeout": c.Converter.Timeout,
		"validator.timeout": c.Validator.Timeout,
	}); err != nil {
		return err
	}
	return nil
}

// RequireHostingToken reports a descriptive error when no hosting token is
// configured. Only commands that talk to the hosting API call it.
func (c *Config) RequireHostingToken() error {
	if strings.TrimSpace(c.Hosting.Token) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("hosting.token is required. Set GITHUB_TOKEN env var or edit %s (create with 'bidsmirror config init')", defaultPath)
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.FailuresDir == "" {
		return errors.New("paths.failures_dir must be set")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	switch c.Catalog.Source {
	case CatalogSourceDandi:
	case CatalogSourceFile:
		if strings.TrimSpace(c.Catalog.File) == "" {
			return errors.New("catalog.file must be set when catalog.source is \"file\"")
		}
	default:
		return fmt.Errorf("catalog.source must be %q or %q, got %q", CatalogSourceDandi, CatalogSourceFile, c.Catalog.Source)
	}
	return nil
}

func (c *Config) validateHosting() error {
	if c.Hosting.Organization == "" {
		return errors.New("hosting.organization must be set")
	}
	if c.Mirror.CreateMode == MirrorCreateFork && c.Hosting.UpstreamOwner == "" {
		return errors.New("hosting.upstream_owner must be set when mirror.create_mode is \"fork\"")
	}
	return ensurePositiveMap(map[string]int{
		"hosting.request_timeout": c.Hosting.RequestTimeout,
	})
}

func (c *Config) validateMirror() error {
	switch c.Mirror.CreateMode {
	case MirrorCreateFork, MirrorCreateCreate:
	default:
		return fmt.Errorf("mirror.create_mode must be %q or %q, got %q", MirrorCreateFork, MirrorCreateCreate, c.Mirror.CreateMode)
	}
	if c.Mirror.ReadyTimeout < 0 {
		return errors.New("mirror.ready_timeout must be >= 0")
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.Workers < 0 {
		return errors.New("run.workers must be >= 0 (0 selects one worker per CPU)")
	}
	if strings.ContainsAny(c.Run.Branch, " \t~^:?*[\\") || strings.HasPrefix(c.Run.Branch, "-") {
		return fmt.Errorf("run.branch %q is not a valid branch name", c.Run.Branch)
	}
	if strings.Contains(c.Run.ManifestPath, "..") {
		return errors.New("run.manifest_path must stay inside the repository")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
