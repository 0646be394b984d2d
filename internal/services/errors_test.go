package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"bidsmirror/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrVersionControl, "workspace", "clone", "exit status 128", base)
	if !errors.Is(err, services.ErrVersionControl) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"workspace", "clone", "exit status 128"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message %q", err)
	}
}

func TestFaultKindMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, services.FaultUnknown},
		{errors.New("plain"), services.FaultUnknown},
		{services.Wrap(services.ErrVersionControl, "workspace", "fetch", "", nil), services.FaultVersionControl},
		{services.Wrap(services.ErrBranchInvariant, "workspace", "checkout", "on main", nil), services.FaultBranchInvariant},
		{services.Wrap(services.ErrConversion, "convert", "run", "", errors.New("exit 1")), services.FaultConversion},
		{services.Wrap(services.ErrValidation, "publish", "validator", "report missing", nil), services.FaultValidation},
		{fmt.Errorf("probe: %w", services.ErrAccessDenied), services.FaultAccessDenied},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), services.FaultTimeout},
		{fmt.Errorf("recovered: %w", services.ErrPanic), services.FaultPanic},
	}
	for _, tc := range cases {
		if got := services.FaultKind(tc.err); got != tc.want {
			t.Errorf("FaultKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestFaultKindPrefersBranchInvariantOverVersionControl(t *testing.T) {
	inner := services.Wrap(services.ErrVersionControl, "workspace", "rev-parse", "", nil)
	err := services.Wrap(services.ErrBranchInvariant, "workspace", "checkout", "", inner)
	if got := services.FaultKind(err); got != services.FaultBranchInvariant {
		t.Fatalf("expected branch invariant, got %q", got)
	}
}
