package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotConfigured marks a requirement whose binary setting is blank.
var ErrNotConfigured = errors.New("binary not configured")

// Requirement names an external program a batch pass shells out to.
type Requirement struct {
	Name     string
	Binary   string
	Optional bool
}

// Status is the outcome of resolving one Requirement on PATH.
type Status struct {
	Requirement
	Path string
	Err  error
}

func (s Status) Available() bool { return s.Err == nil && s.Path != "" }

// Resolve looks up every requirement, preserving order.
func Resolve(reqs ...Requirement) []Status {
	out := make([]Status, len(reqs))
	for i, req := range reqs {
		out[i] = resolve(req)
	}
	return out
}

func resolve(req Requirement) Status {
	req.Binary = strings.TrimSpace(req.Binary)
	if req.Binary == "" {
		return Status{Requirement: req, Err: ErrNotConfigured}
	}
	path, err := exec.LookPath(req.Binary)
	if err != nil {
		return Status{Requirement: req, Err: fmt.Errorf("%q not found: %w", req.Binary, exec.ErrNotFound)}
	}
	return Status{Requirement: req, Path: path}
}

// Satisfied reports whether every non-optional requirement is available.
func Satisfied(statuses []Status) bool {
	for _, s := range statuses {
		if !s.Optional && !s.Available() {
			return false
		}
	}
	return true
}
