package txn

import (
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
)

// --------------------------------------------------------------------------
// OperationContext
// --------------------------------------------------------------------------

// OperationContext carries the per-operation state of one logical operation:
// its recovery unit, an optional pinned commit timestamp, the node's current
// election term and the replication mode of its writes. Contexts are cheap,
// explicitly passed and never shared between concurrent operations.
type OperationContext struct {
	clk  *clock.LogicalClock
	ru   *RecoveryUnit
	term int64

	commitTs           clock.Timestamp
	unreplicatedWrites bool
}

// NewOperationContext creates a context for one logical operation.
func NewOperationContext(clk *clock.LogicalClock, engine db.RecordEngine) *OperationContext {
	return &OperationContext{
		clk:  clk,
		ru:   NewRecoveryUnit(engine),
		term: clock.UninitializedTerm,
	}
}

// Clock returns the logical clock commit timestamps are drawn from.
func (o *OperationContext) Clock() *clock.LogicalClock {
	return o.clk
}

// RecoveryUnit returns the snapshot state of this operation.
func (o *OperationContext) RecoveryUnit() *RecoveryUnit {
	return o.ru
}

// Term returns the election term the operation runs under.
func (o *OperationContext) Term() int64 {
	return o.term
}

// SetTerm sets the election term the operation runs under.
func (o *OperationContext) SetTerm(term int64) {
	o.term = term
}

// SetCommitTimestamp pins the commit timestamp of every write unit of work
// committed under this context. A null timestamp removes the pin.
func (o *OperationContext) SetCommitTimestamp(ts clock.Timestamp) {
	o.commitTs = ts
}

// CommitTimestamp returns the pinned commit timestamp, or null if none is
// pinned.
func (o *OperationContext) CommitTimestamp() clock.Timestamp {
	return o.commitTs
}

// SetUnreplicatedWrites marks the writes of this operation as node-local.
// Unreplicated writes commit untimestamped and are therefore visible at
// every snapshot. A pinned commit timestamp takes precedence.
func (o *OperationContext) SetUnreplicatedWrites(unreplicated bool) {
	o.unreplicatedWrites = unreplicated
}

// UnreplicatedWrites returns whether writes commit untimestamped.
func (o *OperationContext) UnreplicatedWrites() bool {
	return o.unreplicatedWrites
}
