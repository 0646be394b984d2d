// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp unit IDs, stage names, and batch run
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, and FaultKind, which
//     turns a unit's error into the fault kind stored in its failure record.
//
// Use these helpers when wiring new stage logic so error classification and
// observability stay uniform across the pipeline.
package services
