package txn

import (
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
)

// --------------------------------------------------------------------------
// RecoveryUnit
// --------------------------------------------------------------------------

// RecoveryUnit binds one operation to a read snapshot. A snapshot is
// selected at a timestamp once, all reads of the operation then observe
// the state as of that timestamp, and the snapshot is abandoned before a
// different one may be selected.
//
// Thread-safety: a RecoveryUnit belongs to a single operation and is not
// safe for concurrent use.
type RecoveryUnit struct {
	engine db.RecordEngine
	readTs clock.Timestamp
	active bool
}

// NewRecoveryUnit creates a recovery unit reading the latest state.
func NewRecoveryUnit(engine db.RecordEngine) *RecoveryUnit {
	return &RecoveryUnit{engine: engine}
}

// SelectSnapshot pins the operation's reads to the given timestamp.
//
// Selecting while a snapshot is active fails with OutOfOrder: the caller
// must abandon the previous snapshot first. Selecting below the engine's
// retention floor fails with SnapshotUnavailable. The null timestamp and
// TimestampMax both select the latest state.
func (ru *RecoveryUnit) SelectSnapshot(ts clock.Timestamp) error {
	if ru.active {
		return db.Errorf(db.CodeOutOfOrder,
			"snapshot already selected at %s, abandon it first", ru.readTs)
	}
	if !ts.IsNull() && ts != clock.TimestampMax {
		if oldest := ru.engine.OldestTimestamp(); ts < oldest {
			return db.Errorf(db.CodeSnapshotUnavailable,
				"read timestamp %s is below the retention floor %s", ts, oldest)
		}
	}
	ru.readTs = ts
	ru.active = true
	return nil
}

// AbandonSnapshot releases the current snapshot. Reads fall back to the
// latest state until a new snapshot is selected. Abandoning without an
// active snapshot is a no-op.
func (ru *RecoveryUnit) AbandonSnapshot() {
	ru.readTs = clock.TimestampNull
	ru.active = false
}

// ReadTimestamp returns the timestamp reads of this operation observe. It
// is null (latest) while no snapshot is selected.
func (ru *RecoveryUnit) ReadTimestamp() clock.Timestamp {
	return ru.readTs
}

// SnapshotActive returns whether a snapshot is currently selected.
func (ru *RecoveryUnit) SnapshotActive() bool {
	return ru.active
}
