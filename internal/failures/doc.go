// Package failures persists one JSON record per failed unit so operators can
// inspect what went wrong without reading logs. A later success for the same
// unit and label clears the record.
package failures
