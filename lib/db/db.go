package db

import (
	"github.com/tkv-io/tKV/lib/clock"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplBirch Implementation = "birch"
)

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeatureApplyBatch      Feature = 1 << iota // Support for atomic batch publication
	FeatureSnapshotReads                       // Support for timestamped Get/Cursor
	FeatureDropIdent                           // Support for physical ident removal
	FeatureOldestTimestamp                     // Support for a history retention floor
)

func (f Feature) String() string {
	switch f {
	case FeatureApplyBatch:
		return "ApplyBatch"
	case FeatureSnapshotReads:
		return "SnapshotReads"
	case FeatureDropIdent:
		return "DropIdent"
	case FeatureOldestTimestamp:
		return "OldestTimestamp"
	default:
		return "Unknown"
	}
}

type EngineInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	EngineType        Implementation `json:"engine_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Versioned Writes
// --------------------------------------------------------------------------

// Write is a single versioned mutation of one record. A batch of Writes is
// published through RecordEngine.ApplyBatch all-or-nothing.
type Write struct {
	// Ident names the storage object the record lives in.
	Ident string
	// Key is the record id within the ident.
	Key string
	// Value is the record payload; ignored when Tombstone is set.
	Value []byte
	// Ts is the commit timestamp of this version. TimestampNull marks an
	// untimestamped write, visible at every snapshot.
	Ts clock.Timestamp
	// Tombstone marks a deletion version.
	Tombstone bool
	// Base is the record's version sequence the writer observed when it
	// buffered this write. ApplyBatch fails with a Conflict error if the
	// record has moved past Base in the meantime.
	Base uint64
}

// Record is a single live record as seen by a cursor.
type Record struct {
	Key   string
	Value []byte
}

// Cursor iterates the records of one ident that are visible at the cursor's
// snapshot timestamp, in record insertion order.
type Cursor interface {
	// Next returns the next visible record. The boolean is false once the
	// cursor is exhausted.
	Next() (Record, bool)
}

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// RecordEngine is the narrow interface to the physical key-value engine. It
// stores versioned records grouped by ident and provides snapshot-isolated
// reads at arbitrary timestamps. Implementations can vary in their feature
// support, which can be queried with SupportsFeature.
type RecordEngine interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// ApplyBatch validates and publishes a set of versioned writes
	// atomically: either every write becomes visible or none does. A write
	// whose Base is stale fails the whole batch with a Conflict error.
	ApplyBatch(writes []Write) error

	// DropIdent physically discards all record versions of an ident. The
	// catalog, not the engine, records the logical drop timestamp.
	DropIdent(ident string)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get returns the record version visible at the given timestamp.
	// TimestampNull and TimestampMax both read the latest committed version.
	Get(ident, key string, at clock.Timestamp) (value []byte, loaded bool)

	// Cursor returns a cursor over the records of ident visible at the
	// given timestamp, in record insertion order. An unknown ident yields
	// an empty cursor.
	Cursor(ident string, at clock.Timestamp) Cursor

	// LatestVersion returns the current version sequence of a record, for
	// use as Write.Base. A record that has never been written has sequence 0.
	LatestVersion(ident, key string) uint64

	// --------------------------------------------------------------------------
	// History Retention
	// --------------------------------------------------------------------------

	// SetOldestTimestamp raises the history retention floor. Snapshot reads
	// strictly below the floor fail with SnapshotUnavailable at the layer
	// that binds snapshots to operations.
	SetOldestTimestamp(ts clock.Timestamp)

	// OldestTimestamp returns the current retention floor.
	OldestTimestamp() clock.Timestamp

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|).
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the engine.
	GetInfo() (info EngineInfo)

	// Close closes the engine.
	Close() (err error)
}
