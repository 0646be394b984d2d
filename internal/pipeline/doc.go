// Package pipeline runs one unit through mirror, reconcile, workspace,
// convert, and publish, and reports a tagged Result.
//
// The runner is the isolation boundary: errors and panics from any stage are
// captured into Result.Failure and never reach the caller as errors.
package pipeline
