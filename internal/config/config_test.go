package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"bidsmirror/internal/config"
)

func TestLoadDefaultConfigUsesEnvTokenAndExpandsPaths(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-token")
	t.Setenv("BIDSMIRROR_GITHUB_TOKEN", "")
	os.Unsetenv("BIDSMIRROR_GITHUB_TOKEN")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "bidsmirror", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Hosting.Token != "env-token" {
		t.Fatalf("expected token from env, got %q", cfg.Hosting.Token)
	}
	if cfg.Run.Branch != "draft" {
		t.Fatalf("unexpected default branch: %q", cfg.Run.Branch)
	}
	if cfg.Mirror.CreateMode != config.MirrorCreateFork {
		t.Fatalf("unexpected create mode: %q", cfg.Mirror.CreateMode)
	}
	if limit, bounded := cfg.SessionLimit(); !bounded || limit != 2 {
		t.Fatalf("unexpected session limit: %d bounded=%v", limit, bounded)
	}
	if cfg.LockPath() != filepath.Join(wantWork, ".bidsmirror.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.FailuresDir, cfg.Paths.LogDir, cfg.Paths.StateDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "bidsmirror.toml")

	type payload struct {
		Hosting struct {
			Token        string `toml:"token"`
			Organization string `toml:"organization"`
			APIURL       string `toml:"api_url"`
		} `toml:"hosting"`
		Run struct {
			Branch           string `toml:"branch"`
			Workers          int    `toml:"workers"`
			SessionLimit     int    `toml:"session_limit"`
			PrimaryExtension string `toml:"primary_extension"`
		} `toml:"run"`
	}
	custom := payload{}
	custom.Hosting.Token = "file-token"
	custom.Hosting.Organization = "mirrors"
	custom.Hosting.APIURL = "https://example.com/api/"
	custom.Run.Branch = "nwb2bids-0.6"
	custom.Run.Workers = 3
	custom.Run.SessionLimit = 0
	custom.Run.PrimaryExtension = "NWB"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}
	t.Setenv("GITHUB_TOKEN", "env-token")

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Hosting.Token != "file-token" {
		t.Fatalf("expected token from file to win over env, got %q", cfg.Hosting.Token)
	}
	if cfg.Hosting.APIURL != "https://example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Hosting.APIURL)
	}
	if cfg.Hosting.Organization != "mirrors" {
		t.Fatalf("unexpected organization: %q", cfg.Hosting.Organization)
	}
	if cfg.Run.Branch != "nwb2bids-0.6" || cfg.Run.Workers != 3 {
		t.Fatalf("unexpected run section: %+v", cfg.Run)
	}
	if _, bounded := cfg.SessionLimit(); bounded {
		t.Fatal("expected session_limit = 0 to be unbounded")
	}
	if cfg.Run.PrimaryExtension != ".nwb" {
		t.Fatalf("expected normalized extension, got %q", cfg.Run.PrimaryExtension)
	}
}

func TestWithRunOverridesReturnsCopy(t *testing.T) {
	base := config.Default()
	base.Run.Workers = 4
	base.Run.Limit = 0

	got := base.WithRunOverrides(1, 10, "  release ")
	if got.Run.Workers != 1 || got.Run.Limit != 10 || got.Run.Branch != "release" {
		t.Fatalf("overrides not applied: %+v", got.Run)
	}
	if base.Run.Workers != 4 || base.Run.Limit != 0 || base.Run.Branch != "draft" {
		t.Fatalf("base config mutated: %+v", base.Run)
	}

	kept := base.WithRunOverrides(-1, -1, "")
	if kept.Run != base.Run {
		t.Fatalf("negative overrides should be ignored: %+v", kept.Run)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "GITHUB_TOKEN") {
		t.Fatalf("sample config missing token hint: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.WorkDir, "bidsmirror") {
		t.Fatalf("expected work dir to contain bidsmirror, got %q", cfg.Paths.WorkDir)
	}
	if cfg.Run.ManifestPath != config.Default().Run.ManifestPath {
		t.Fatalf("sample manifest path drifted from default: %q", cfg.Run.ManifestPath)
	}
	if cfg.SuperDataset != config.Default().SuperDataset {
		t.Fatalf("sample super_dataset drifted from default: %+v", cfg.SuperDataset)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown catalog source", func(c *config.Config) { c.Catalog.Source = "ftp" }},
		{"file source without file", func(c *config.Config) { c.Catalog.Source = config.CatalogSourceFile }},
		{"missing organization", func(c *config.Config) { c.Hosting.Organization = "" }},
		{"fork without upstream", func(c *config.Config) { c.Hosting.UpstreamOwner = "" }},
		{"unknown create mode", func(c *config.Config) { c.Mirror.CreateMode = "clone" }},
		{"negative workers", func(c *config.Config) { c.Run.Workers = -2 }},
		{"branch with space", func(c *config.Config) { c.Run.Branch = "bad branch" }},
		{"manifest escapes repo", func(c *config.Config) { c.Run.ManifestPath = "../manifest.json" }},
		{"zero converter timeout", func(c *config.Config) { c.Converter.Timeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	cfg.Hosting.UpstreamOwner = ""
	cfg.Mirror.CreateMode = config.MirrorCreateCreate
	if err := cfg.Validate(); err != nil {
		t.Fatalf("create mode should not need upstream owner: %v", err)
	}
}

func TestRequireHostingToken(t *testing.T) {
	cfg := config.Default()
	if err := cfg.RequireHostingToken(); err == nil {
		t.Fatal("expected error without token")
	}
	cfg.Hosting.Token = "abc"
	if err := cfg.RequireHostingToken(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
