// Package workspace owns the per-unit working copies under the configured
// work directory.
//
// Prepare brings a unit's clone onto the target branch and guarantees that
// the checked-out branch matches before anything is written: a mismatch is
// reported as services.ErrBranchInvariant and the caller must not convert or
// publish. Each unit's directory is touched only by that unit's pipeline.
package workspace
