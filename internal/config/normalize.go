package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeHosting()
	c.normalizeMirror()
	c.normalizeRun()
	if err := c.normalizeTools(); err != nil {
		return err
	}
	c.normalizeSuperDataset()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.FailuresDir, err = expandPath(c.Paths.FailuresDir); err != nil {
		return fmt.Errorf("paths.failures_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() error {
	c.Catalog.Source = strings.ToLower(strings.TrimSpace(c.Catalog.Source))
	if c.Catalog.Source == "" {
		c.Catalog.Source = defaultCatalogSource
	}
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaultCatalogBaseURL
	}
	if c.Catalog.PageSize <= 0 {
		c.Catalog.PageSize = defaultCatalogPageSize
	}
	if c.Catalog.RequestTimeout <= 0 {
		c.Catalog.RequestTimeout = defaultCatalogTimeout
	}
	if strings.TrimSpace(c.Catalog.File) != "" {
		var err error
		if c.Catalog.File, err = expandPath(strings.TrimSpace(c.Catalog.File)); err != nil {
			return fmt.Errorf("catalog.file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeHosting() {
	c.Hosting.Token = strings.TrimSpace(c.Hosting.Token)
	if c.Hosting.Token == "" {
		if value, ok := os.LookupEnv("BIDSMIRROR_GITHUB_TOKEN"); ok {
			c.Hosting.Token = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("GITHUB_TOKEN"); ok {
			c.Hosting.Token = strings.TrimSpace(value)
		}
	}
	c.Hosting.APIURL = strings.TrimRight(strings.TrimSpace(c.Hosting.APIURL), "/")
	if c.Hosting.APIURL == "" {
		c.Hosting.APIURL = defaultHostingAPIURL
	}
	c.Hosting.RawURL = strings.TrimRight(strings.TrimSpace(c.Hosting.RawURL), "/")
	if c.Hosting.RawURL == "" {
		c.Hosting.RawURL = defaultHostingRawURL
	}
	c.Hosting.GitURL = strings.TrimRight(strings.TrimSpace(c.Hosting.GitURL), "/")
	if c.Hosting.GitURL == "" {
		c.Hosting.GitURL = defaultHostingGitURL
	}
	c.Hosting.Organization = strings.TrimSpace(c.Hosting.Organization)
	c.Hosting.UpstreamOwner = strings.TrimSpace(c.Hosting.UpstreamOwner)
	if c.Hosting.RequestTimeout <= 0 {
		c.Hosting.RequestTimeout = defaultHostingTimeout
	}
	if c.Hosting.RetryAttempts < 0 {
		c.Hosting.RetryAttempts = 0
	}
}

func (c *Config) normalizeMirror() {
	c.Mirror.CreateMode = strings.ToLower(strings.TrimSpace(c.Mirror.CreateMode))
	if c.Mirror.CreateMode == "" {
		c.Mirror.CreateMode = defaultMirrorCreateMode
	}
	if c.Mirror.PollInterval <= 0 {
		c.Mirror.PollInterval = defaultMirrorPollInterval
	}
	if c.Mirror.PollMaxInterval < c.Mirror.PollInterval {
		c.Mirror.PollMaxInterval = c.Mirror.PollInterval
	}
}

func (c *Config) normalizeRun() {
	c.Run.Branch = strings.TrimSpace(c.Run.Branch)
	if c.Run.Branch == "" {
		c.Run.Branch = defaultBranch
	}
	if c.Run.Limit < 0 {
		c.Run.Limit = 0
	}
	if c.Run.SessionLimit < 0 {
		c.Run.SessionLimit = 0
	}
	c.Run.PrimaryExtension = strings.ToLower(strings.TrimSpace(c.Run.PrimaryExtension))
	if c.Run.PrimaryExtension == "" {
		c.Run.PrimaryExtension = defaultPrimaryExtension
	}
	if !strings.HasPrefix(c.Run.PrimaryExtension, ".") {
		c.Run.PrimaryExtension = "." + c.Run.PrimaryExtension
	}
	c.Run.ManifestPath = strings.Trim(strings.TrimSpace(c.Run.ManifestPath), "/")
	if c.Run.ManifestPath == "" {
		c.Run.ManifestPath = defaultManifestPath
	}
	if strings.TrimSpace(c.Run.CommitMessage) == "" {
		c.Run.CommitMessage = defaultCommitMessage
	}
	c.Run.AuthorName = strings.TrimSpace(c.Run.AuthorName)
	if c.Run.AuthorName == "" {
		c.Run.AuthorName = defaultAuthorName
	}
	c.Run.AuthorEmail = strings.TrimSpace(c.Run.AuthorEmail)
	if c.Run.AuthorEmail == "" {
		c.Run.AuthorEmail = defaultAuthorEmail
	}
}

func (c *Config) normalizeTools() error {
	c.Converter.Binary = strings.TrimSpace(c.Converter.Binary)
	if c.Converter.Binary == "" {
		c.Converter.Binary = defaultConverterBinary
	}
	c.Converter.Version = strings.TrimSpace(c.Converter.Version)
	if c.Converter.Timeout <= 0 {
		c.Converter.Timeout = defaultConverterTimeout
	}
	if strings.TrimSpace(c.Converter.SourceDir) != "" {
		var err error
		if c.Converter.SourceDir, err = expandPath(strings.TrimSpace(c.Converter.SourceDir)); err != nil {
			return fmt.Errorf("converter.source_dir: %w", err)
		}
	}

	c.Validator.Binary = strings.TrimSpace(c.Validator.Binary)
	if c.Validator.Binary == "" {
		c.Validator.Binary = defaultValidatorBinary
	}
	c.Validator.Schema = strings.TrimSpace(c.Validator.Schema)
	if c.Validator.Timeout <= 0 {
		c.Validator.Timeout = defaultValidatorTimeout
	}
	if strings.TrimSpace(c.Validator.BaseConfig) != "" {
		var err error
		if c.Validator.BaseConfig, err = expandPath(strings.TrimSpace(c.Validator.BaseConfig)); err != nil {
			return fmt.Errorf("validator.base_config: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeSuperDataset() {
	c.SuperDataset.Repository = strings.Trim(strings.TrimSpace(c.SuperDataset.Repository), "/")
	if c.SuperDataset.Repository == "" {
		c.SuperDataset.Repository = defaultSuperDatasetRepo
	}
	c.SuperDataset.Branch = strings.TrimSpace(c.SuperDataset.Branch)
	if c.SuperDataset.Branch == "" {
		c.SuperDataset.Branch = defaultBranch
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
