// Package db provides a standardized interface for timestamp-versioned
// record store implementations. It defines the RecordEngine interface
// that allows for consistent interaction with various storage backends
// while abstracting implementation details.
//
// The package focuses on:
//   - A unified interface for versioned record operations
//   - Feature discovery through capability flags
//   - A shared error taxonomy for storage failures
//   - A canonical document model for record payloads
//
// Key Components:
//
//   - RecordEngine Interface: The core interface that all storage engine
//     implementations must satisfy. It provides atomic batch application
//     (ApplyBatch), timestamped point reads and scans (Get, Cursor),
//     version introspection (LatestVersion), history truncation
//     (SetOldestTimestamp), and metadata retrieval (GetInfo).
//
//   - Feature Flags: The Feature type defines capability flags that
//     implementations can advertise through the SupportsFeature method.
//     This allows clients to discover supported operations at runtime.
//
//   - Error Taxonomy: The Error type carries a machine-readable Code
//     (Conflict, NotFound, NamespaceExists, ...) alongside a message.
//     Callers classify failures with the IsConflict, IsNotFound and
//     related predicates rather than by string matching.
//
//   - Document Model: The Document type is the abstract payload of a
//     record. Documents encode to JSON with sorted keys, so equality and
//     record-key derivation are stable across field orderings.
//
// Note on Timestamps and Visibility:
//   - Every write carries a commit timestamp. A write with the null
//     timestamp (clock.TimestampNull) is visible at every read timestamp.
//   - A read at timestamp T observes, per record, the newest version whose
//     timestamp is null or at most T. A read at the null timestamp observes
//     the newest version outright.
//   - Deletes are tombstone versions and follow the same visibility rule.
//   - Implementations must ensure that ApplyBatch is atomic: either every
//     write in the batch becomes visible or none does.
//
// Note on History Truncation:
//   - SetOldestTimestamp establishes a floor below which version history
//     may be discarded. Reads below the floor must fail rather than return
//     partial history.
//
// Related Packages:
//
// The engines/birch package (github.com/tkv-io/tKV/lib/db/engines/birch)
// provides an implementation of the RecordEngine interface using a sharded
// in-memory architecture with per-record version chains. It is optimized
// for concurrent readers at distinct timestamps.
//
// The util package (github.com/tkv-io/tKV/lib/db/util) provides
// complementary tools for working with db.RecordEngine implementations,
// including a priority queue used for deferred resource reclamation.
package db
