// Package preflight provides readiness checks for the directories, external
// programs, and hosting credentials a batch pass depends on.
//
// The "bidsmirror check" command runs RunAll and prints each Result. The
// sync command runs the same checks before taking the lock so a doomed pass
// fails fast instead of recording one failure per unit.
package preflight
