// Package batch schedules one pass over the catalog.
//
// Units are sorted by numeric id and dispatched to a bounded pool of
// goroutines. Each worker writes only its own slot of the result slice and
// each unit owns its working copy directory, so units share nothing mutable.
// Results are routed to the failure store and the ledger as they arrive.
package batch
