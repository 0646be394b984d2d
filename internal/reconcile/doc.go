// Package reconcile decides, per unit, whether a batch pass must reprocess it.
//
// The published run manifest is the only completion signal. A unit is
// skipped when its manifest carries a tool version at least as new as the
// current one and a session limit that covers the current limit. A missing or
// unreadable manifest means the unit never completed; an access-denied
// response makes the pass abstain from the unit.
package reconcile
