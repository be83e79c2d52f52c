// Package backup implements snapshot, restore, atomic replacement and forced
// cleanup for a live WAL-mode SQLite database file.
//
// All operations are synchronous and blocking; retries sleep between
// attempts. The replace engine is non-reentrant against the same target
// path: callers must serialize replace operations on one logical database.
//
// Atomicity guarantee: on platforms where rename replaces an existing file
// atomically, an external observer of the target path always sees either the
// old or the new database file. On platforms where the engine has to fall
// back to remove-then-rename, there is a narrow window between the removal
// and the rename during which the path is absent. That weaker guarantee is
// deliberate and accepted, not hidden.
package backup
