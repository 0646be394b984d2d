// Package ledger records batch passes and per-unit outcomes in a local
// SQLite database for operator inspection.
//
// The ledger is never consulted when deciding whether a unit needs work; the
// manifest published in each mirror remains the only completion signal.
// Schema changes bump schemaVersion in store.go and the database is deleted
// to adopt them.
package ledger
