// Package publish writes a unit's artifacts into its working copy and pushes
// them to the mirror.
//
// Artifacts are written one at a time with WriteFileAtomic, and the run
// manifest is always the final write. Because the manifest is the only
// completion signal, a publish interrupted at any point leaves the unit
// looking unprocessed and it is simply redone on the next pass. All JSON is
// rendered by CanonicalJSON so republishing identical results is a no-op
// commit.
package publish
