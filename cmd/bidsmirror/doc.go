// Package main hosts the bidsmirror CLI entrypoint and command graph.
//
// "sync" runs one batch pass over the catalog. The remaining commands are
// operator tools around it: "status" and "failures" read what passes left
// behind, "check" runs preflight, "config" scaffolds and validates the
// configuration file, and "reset" and "prune-branches" perform destructive
// maintenance on mirrors and require --yes.
//
// Keep this package lean: behaviour lives in internal packages and the
// commands here only resolve configuration, call them, and render output.
package main
