package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"bidsmirror/internal/config"
	"bidsmirror/internal/deps"
	"bidsmirror/internal/services"
)

const hostingCheckTimeout = 10 * time.Second

// CheckHostingToken reports whether an API token is configured.
func CheckHostingToken(cfg *config.Config) Result {
	const name = "Hosting token"
	if strings.TrimSpace(cfg.Hosting.Token) == "" {
		return Result{Name: name, Detail: "missing (set GITHUB_TOKEN or hosting.token)"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckHosting verifies the hosting API accepts the configured token. It
// makes a single bounded attempt.
func CheckHosting(ctx context.Context, pinger Pinger) Result {
	const name = "Hosting API"

	checkCtx, cancel := context.WithTimeout(ctx, hostingCheckTimeout)
	defer cancel()

	if err := pinger.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeHostingError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckCatalogFile verifies a file-backed catalog snapshot is readable.
func CheckCatalogFile(path string) Result {
	const name = "Catalog file"
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps resolves git, the converter and, when enabled, the validator.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	reqs := []deps.Requirement{
		{Name: "git", Binary: "git"},
		{Name: "Converter", Binary: cfg.Converter.Binary},
	}
	if cfg.Validator.Enabled {
		reqs = append(reqs, deps.Requirement{Name: "Validator", Binary: cfg.Validator.Binary})
	}
	return deps.Resolve(reqs...)
}

func summarizeHostingError(err error) string {
	switch {
	case errors.Is(err, services.ErrAccessDenied):
		return "token rejected (access denied)"
	case errors.Is(err, context.DeadlineExceeded):
		return "health check timed out (hosting API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (hosting API unreachable)"
	}
	return err.Error()
}
