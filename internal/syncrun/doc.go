// Package syncrun assembles one batch pass from configuration.
//
// Execute is the composition root behind "bidsmirror sync". It verifies
// preflight checks, takes a host-local flock on the work directory so two
// passes never share working copies, assigns a UUIDv7 run id that tags the
// per-run log file and ledger rows, builds the hosting client, git driver,
// converter, validator, and publisher, and hands the catalog to the batch
// scheduler. The ledger records the pass before and after the scheduler runs.
package syncrun
