// Package vcs exposes git operations as typed capabilities for the workspace
// manager, the publish writer, and the maintenance commands.
//
// Each capability states its exit-code contract: most treat any non-zero exit
// as services.ErrVersionControl, while probes such as HasStagedChanges and
// HasUpstream map specific exit statuses to boolean answers. Output text is
// only ever carried into error messages, with registered secrets redacted.
package vcs
