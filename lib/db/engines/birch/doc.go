// Package birch implements an in-memory timestamp-versioned record engine
// with per-record version chains. It provides a complete implementation of
// the db.RecordEngine interface with a focus on thread safety and snapshot
// isolation for concurrent readers at distinct timestamps.
//
// The package focuses on:
//   - Optimized concurrent access through sharding of the ident space
//   - Multi-version storage: every committed write becomes an immutable
//     version, and readers pick the version matching their snapshot
//   - Atomic batch publication with first-writer-wins conflict detection
//   - History truncation below a caller-controlled retention floor
//
// Key Components:
//
//   - birchImpl: The central engine structure implementing db.RecordEngine.
//     It manages shards, assigns the engine-global publication sequence, and
//     provides the public API for versioned record operations. The engine
//     does not manage commit timestamps itself, but rather delegates this
//     responsibility to the caller to allow for flexible integration with
//     external clock sources (e.g. logical timestamps, Lamport, ...).
//
//   - Shard: A partition of the ident space. Each shard contains its own
//     concurrent map of IdentStores. Idents are distributed across shards
//     using a seeded hash function to ensure even distribution.
//
//   - IdentStore: All record chains of a single storage object, together
//     with the first-insertion order of its record keys. A single RWMutex
//     per IdentStore keeps batch publication atomic with respect to
//     concurrent snapshot reads.
//
//   - Chain: The version history of one record, ordered by commit timestamp.
//     Untimestamped versions sort before timestamped ones and are therefore
//     visible at every snapshot until superseded.
//
// Note on Conflict Detection:
//
// Every write carries the version sequence its transaction observed when
// buffering (Write.Base). ApplyBatch validates all Bases against the
// pre-batch state before publishing anything, so a batch either publishes
// completely or fails completely with a Conflict error.
package birch
