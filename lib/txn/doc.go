// Package txn provides the per-operation state of the storage layer: the
// operation context, the snapshot-binding recovery unit and the write unit
// of work.
//
// The package focuses on:
//   - Explicit per-operation state (no globals): every operation carries an
//     OperationContext with its snapshot, commit-timestamp pin and
//     replication mode
//   - Snapshot isolation: a RecoveryUnit selects one read timestamp at a
//     time, and all reads of the operation observe that state
//   - Atomic publication: a WriteUnitOfWork buffers record and catalog
//     mutations and publishes them all-or-nothing at one commit timestamp
//
// Key Components:
//
//   - OperationContext: Per-operation state. A pinned commit timestamp
//     makes every unit of work under the context commit at that timestamp
//     (the replication paths pin the oplog timestamp of the operation they
//     replay); the unreplicated-writes flag makes them commit untimestamped.
//
//   - RecoveryUnit: Select/abandon snapshot discipline. Selecting a second
//     snapshot without abandoning the first fails with OutOfOrder, and
//     selecting below the engine's retention floor fails with
//     SnapshotUnavailable.
//
//   - WriteUnitOfWork: Mutation buffer with insert/upsert/delete document
//     writes and create/rename/drop catalog operations. It takes the
//     exclusive namespace lockmgr of every touched namespace and releases
//     it on every exit path. A Conflict on commit is retryable: the buffer
//     is discarded and nothing was published.
package txn
