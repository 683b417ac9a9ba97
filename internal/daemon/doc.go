// Package daemon keeps an in-memory workspace document and a directory on
// disk in sync.
//
// # Architecture
//
// The daemon consists of several components:
//
//   - Daemon: loads the tree, owns the live document through a host.Host
//     and writes changes back to disk
//   - Scheduler: decides when a change is saved (debounce or throttle)
//   - FileWatcher: cross-platform file system event monitoring using
//     fsnotify, feeding external edits back into the document
//
// # Saving
//
// Every patch applied to the document schedules a save. While the user is
// interacting (the document's isInteracting flag), saves are throttled to
// one per Throttle interval (default 100ms), so dragging a slider updates
// the files continuously. Otherwise saves are debounced: one save runs
// once no change has arrived for Debounce (default 800ms).
//
// A save compares the current document with the one written by the
// previous save and applies the difference through reconcile. Failures
// are per entry: they are logged, recorded in the journal and metrics,
// and an entry is only retried when it changes again.
//
//	d, err := daemon.New("/path/to/workspace")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = d.Edit(func(doc *workspace.Document) {
//	    doc.Add(workspace.File("notes.md", "# Notes\n"))
//	})
//
// # External Changes
//
// With Watch enabled, the daemon watches every directory not excluded by
// the base ignore set. Events are batched for WatchDebounce (default
// 150ms), then the tree is reloaded and compared with what the last save
// wrote:
//
//   - paths that match the last save are left alone, so the daemon's own
//     writes are never read back
//   - paths that differ are applied to the live document, keeping the ID
//     of an entry at the same path
//   - unsaved edits in the document are kept and saved as usual
//
// Changes read from disk are submitted with the OriginDisk tag and do not
// schedule a save, since the disk already holds them.
//
// # Thread Safety
//
// Daemon methods are safe for concurrent use. Save passes and disk syncs
// are serialized; patches are applied one at a time by the host.
//
// FileWatcher is thread-safe. Multiple goroutines can safely call:
//   - Events() and Errors() (read-only channel access)
//   - IsRunning() (protected by mutex)
//
// Start() and Stop() should only be called from a single controlling goroutine.
//
// # Graceful Shutdown
//
// Stop() will:
//  1. Stop the watcher and wait for the event loops to finish
//  2. Reject further patches
//  3. Run any pending save immediately
//
// Stop is idempotent, and Start calls it when its context is cancelled.
package daemon
