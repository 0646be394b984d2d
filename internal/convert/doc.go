// Package convert invokes the external conversion engine for a unit and
// normalizes what it reports.
//
// The only domain-aware step is the session count: after the engine writes
// its artifact tree, CountSessions finds session directories holding primary
// data files. Everything else the engine produces is passed through as-is.
package convert
