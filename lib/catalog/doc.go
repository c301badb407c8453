// Package catalog maps namespaces to the storage object names (idents) that
// back them, with full timestamp history.
//
// Every create, rename and drop carries the commit timestamp of the
// operation, so the catalog can answer "which collections existed at T, and
// under which names" for any past timestamp. The catalog records only these
// logical facts; record data and the physical removal of idents live in the
// storage engine.
//
// Key Components:
//
//   - Namespace: A "<db>.<collection>" name with helpers for the
//     replication-locality rule (the "local" database and "system."
//     collections are node-local) and for two-phase-drop naming.
//
//   - Catalog: The timestamped name table. Idents are generated as
//     "collection-<n>-<seed>" and never change, in particular not across
//     renames. Drops are idempotent: re-dropping at or after the recorded
//     drop point succeeds as a no-op, which lets concurrent drop paths
//     (database drop and the drop-pending reaper) race safely.
//
// Thread-safety: the Catalog is safe for concurrent use.
package catalog
