// Package reconcile writes workspace document changes back to disk.
//
// # Overview
//
// Given the document as it was after the previous save and the document
// as it is now, a Reconciler computes a plan and applies it to the
// workspace directory. Entries are matched by file ID, so a changed path
// is a rename rather than a delete plus a create.
//
// # Stages
//
// Plans run in two stages:
//
//  1. Creates, content updates and renames, ordered by destination path so
//     that parent directories exist before their children. A renamed
//     directory is created at its new path immediately; its old path is
//     queued for removal.
//  2. Deletions. Files go first, then directories deepest first, including
//     the old paths of renamed directories.
//
// A deletion never touches a path the current document still uses, either
// directly or as the parent of a current entry. Deleting "dirA" therefore
// leaves "dirAB" alone, and a directory whose children moved elsewhere is
// removed only after they are gone.
//
// # Errors
//
// Failures are per entry. A failing step is logged and recorded in the
// Result, and the pass continues with the next step. Nothing is rolled
// back and nothing is retried; an entry is retried only when it changes
// again. Removing something that is already gone counts as success.
//
// # Usage
//
//	r := reconcile.NewOS("/srv/workspace", logger)
//	result := r.Reconcile(previous, current)
//	for _, f := range result.Failures() {
//	    log.Printf("%s: %v", f.Step, f.Err)
//	}
package reconcile
