// Package config loads, normalizes, and validates bidsmirror configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GITHUB_TOKEN. The Config type centralizes every knob the batch driver and
// CLI need, so work directories, hosting credentials, and external tool
// locations are discovered in one pass.
//
// A loaded Config is immutable: the CLI applies its run flags through
// WithRunOverrides, which returns a copy that is then threaded into the
// scheduler and every per-unit pipeline.
package config
