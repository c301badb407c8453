// Package storage provides the storage engine facade: the collection-level
// API that binds the record engine, the timestamped catalog, the logical
// clock and the namespace lockmgr together.
//
// The package focuses on:
//   - Collection lifecycle: create, rename, drop and database drop, each
//     committed at an explicit timestamp
//   - Two-phase drops: replicated collections are renamed to a drop-pending
//     name and handed to a DropPendingRegistry for deferred physical removal
//   - Document helpers: single-document insert/upsert/delete units of work
//     and snapshot reads at the operation's read timestamp
//
// The two drop paths (database drop and drop-pending finalization) may race
// on the same namespace. Both converge on the catalog's idempotent drop, so
// whichever path commits second degrades to a no-op and the final state is
// identical at every timestamp at or after the later drop point.
package storage
