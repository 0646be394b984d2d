package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAccessDenied    = errors.New("remote access denied")
	ErrNotFound        = errors.New("not found")
	ErrVersionControl  = errors.New("version control failure")
	ErrBranchInvariant = errors.New("branch invariant violation")
	ErrConversion      = errors.New("conversion failure")
	ErrValidation      = errors.New("validation error")
	ErrExternalTool    = errors.New("external tool error")
	ErrConfiguration   = errors.New("configuration error")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
	ErrPanic           = errors.New("panic")
)

// Fault kinds recorded in failure records.
const (
	FaultPanic           = "panic"
	FaultBranchInvariant = "branch_invariant_violation"
	FaultVersionControl  = "version_control_failure"
	FaultConversion      = "conversion_failure"
	FaultValidation      = "validation_failure"
	FaultAccessDenied    = "remote_access_denied"
	FaultResourceMissing = "remote_resource_missing"
	FaultExternalTool    = "external_tool_failure"
	FaultConfiguration   = "configuration_error"
	FaultTimeout         = "timeout"
	FaultTransient       = "transient_failure"
	FaultCanceled        = "canceled"
	FaultUnknown         = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FaultKind maps a unit error to the fault kind persisted in its failure
// record. More specific markers win when an error carries several.
func FaultKind(err error) string {
	switch {
	case err == nil:
		return FaultUnknown
	case errors.Is(err, ErrPanic):
		return FaultPanic
	case errors.Is(err, ErrBranchInvariant):
		return FaultBranchInvariant
	case errors.Is(err, ErrVersionControl):
		return FaultVersionControl
	case errors.Is(err, ErrConversion):
		return FaultConversion
	case errors.Is(err, ErrValidation):
		return FaultValidation
	case errors.Is(err, ErrAccessDenied):
		return FaultAccessDenied
	case errors.Is(err, ErrNotFound):
		return FaultResourceMissing
	case errors.Is(err, ErrExternalTool):
		return FaultExternalTool
	case errors.Is(err, ErrConfiguration):
		return FaultConfiguration
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FaultTimeout
	case errors.Is(err, context.Canceled):
		return FaultCanceled
	case errors.Is(err, ErrTransient):
		return FaultTransient
	default:
		return FaultUnknown
	}
}

// IsAccessDenied reports whether err means the unit should be abstained from
// rather than recorded as failed.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
