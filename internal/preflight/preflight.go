package preflight

import (
	"context"

	"bidsmirror/internal/config"
	"bidsmirror/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Pinger is the hosting API probe used to verify credentials.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes every preflight check for the given config. A nil pinger
// skips the hosting connectivity probe.
func RunAll(ctx context.Context, cfg *config.Config, pinger Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Failures directory", cfg.Paths.FailuresDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	if cfg.Catalog.Source == config.CatalogSourceFile {
		results = append(results, CheckCatalogFile(cfg.Catalog.File))
	}

	token := CheckHostingToken(cfg)
	results = append(results, token)
	if token.Passed && pinger != nil {
		results = append(results, CheckHosting(ctx, pinger))
	}

	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, fromStatus(status))
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func fromStatus(status deps.Status) Result {
	switch {
	case status.Available():
		return Result{Name: status.Name, Passed: true, Detail: status.Path}
	case status.Optional:
		return Result{Name: status.Name, Passed: true, Detail: status.Err.Error() + " (optional)"}
	default:
		return Result{Name: status.Name, Detail: status.Err.Error()}
	}
}
