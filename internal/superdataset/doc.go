// Package superdataset maintains the aggregate repository that links every
// mirror as a git submodule, so the whole collection can be cloned and
// browsed as one dataset.
//
// Updates are additive: mirrors already registered in .gitmodules are left
// alone and inaccessible mirrors are skipped, never treated as failures.
package superdataset
