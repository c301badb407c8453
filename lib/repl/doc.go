// Package repl implements the replication-facing side of the store: oplog
// entry parsing and application, transactional batches, consistency
// markers and the drop-pending reaper.
//
// The central type is the Applier. It replays batches of oplog entries
// against a storage.Store, either atomically (one unit of work, one commit
// timestamp) or non-atomically (one unit of work per entry, committed at
// the entry's own timestamp). An atomic batch that hits a write conflict
// is replayed non-atomically; batches containing real commands always take
// the non-atomic path. DoTxn layers transaction semantics on top of the
// atomic path: it resolves collection UUIDs against the catalog before
// applying and notifies an OpObserver with the batch as applied.
//
// ConsistencyMarkers persists the minimum-valid and applied-through points
// in local.replset.minvalid, timestamping marker updates with the point
// they record. DropPendingReaper completes two-phase collection drops once
// the commit point passes the drop point.
package repl
