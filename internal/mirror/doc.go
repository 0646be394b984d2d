// Package mirror ensures each unit has a mirror repository before its working
// copy is prepared.
//
// Mirrors are created lazily, either by forking the upstream repository into
// the managed organization or by creating an empty auto-initialised
// repository. Creation is asynchronous on the host side, so the manager polls
// with exponential backoff up to a readiness timeout and then proceeds
// optimistically. The pipeline never deletes a mirror.
package mirror
