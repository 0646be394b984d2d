package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"bidsmirror/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The directories are created so preflight checks pass.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.FailuresDir = filepath.Join(base, "failures")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Hosting.Token = "test-token"
	cfgVal.Hosting.Organization = "mirrors"
	cfgVal.Mirror.ReadyTimeout = 0
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("create config directories: %v", err)
	}
	return builder.cfg
}

// WithHostingURL points the API, raw-content, and git endpoints at one base
// URL, typically an httptest server.
func WithHostingURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Hosting.APIURL = url
		b.cfg.Hosting.RawURL = url + "/raw"
		b.cfg.Hosting.GitURL = url + "/git"
		b.cfg.Hosting.RetryAttempts = 0
	}
}

// WithToken overrides the hosting token. An empty token exercises the
// missing-credential paths.
func WithToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Hosting.Token = token
	}
}

// WithCatalogUnits writes a file-backed catalog snapshot listing the given
// unit ids and selects it as the catalog source.
func WithCatalogUnits(ids ...string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "units.yaml")
		content := "units:\n"
		for _, id := range ids {
			content += "  - id: \"" + id + "\"\n"
		}
		WriteFile(b.t, path, content)
		b.cfg.Catalog.Source = config.CatalogSourceFile
		b.cfg.Catalog.File = path
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the configured converter and
// validator binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Converter.Binary, b.cfg.Validator.Binary}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
