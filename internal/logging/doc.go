// Package logging builds the slog loggers used across bidsmirror.
//
// Console output is one human-readable line per record, with the unit and
// stage folded into a subject prefix; JSON output is one object per line.
// Both handlers mask the hosting token wherever it appears. TeeLogger lets
// the batch driver copy a pass's output into its own run log.
package logging
