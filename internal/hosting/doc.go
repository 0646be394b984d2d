// Package hosting talks to the repository host's REST API and raw-content
// endpoint on behalf of the mirror manager, the reconciler, and the
// maintenance commands.
//
// Non-success responses surface as *StatusError values that unwrap to
// services.ErrAccessDenied (403) or services.ErrNotFound (404), so callers
// branch with errors.Is instead of inspecting status codes. Timeouts, 408,
// 429, rate-limited 403s, and 5xx responses are retried with exponential
// backoff that honours Retry-After and the rate-limit reset time.
package hosting
