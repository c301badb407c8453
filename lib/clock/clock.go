package clock

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Timestamp
// --------------------------------------------------------------------------

// Timestamp is a logical commit time. Timestamps are opaque, totally ordered
// tick counts handed out by the LogicalClock.
type Timestamp uint64

const (
	// TimestampNull is the distinguished minimum. A null timestamp on a write
	// means the write is untimestamped (visible at every snapshot); a null
	// timestamp on a read means "no pin", i.e. read the latest committed state.
	TimestampNull Timestamp = 0

	// TimestampMax is the "latest" read sentinel. A snapshot selected at
	// TimestampMax tracks the most recent commit, including commits that
	// happen after the snapshot was selected.
	TimestampMax Timestamp = ^Timestamp(0)
)

// IsNull returns whether t is the null timestamp.
func (t Timestamp) IsNull() bool {
	return t == TimestampNull
}

func (t Timestamp) String() string {
	switch t {
	case TimestampNull:
		return "Timestamp(null)"
	case TimestampMax:
		return "Timestamp(max)"
	default:
		return fmt.Sprintf("Timestamp(%d)", uint64(t))
	}
}

// --------------------------------------------------------------------------
// LogicalTime
// --------------------------------------------------------------------------

// LogicalTime is a Timestamp with tick arithmetic. It is the value returned
// by the clock's reservation methods.
type LogicalTime struct {
	ts Timestamp
}

// NewLogicalTime wraps a timestamp in a LogicalTime.
func NewLogicalTime(ts Timestamp) LogicalTime {
	return LogicalTime{ts: ts}
}

// AddTicks derives the n-th successor of this logical time without
// allocating any ticks from the clock.
func (l LogicalTime) AddTicks(n uint64) LogicalTime {
	return LogicalTime{ts: l.ts + Timestamp(n)}
}

// AsTimestamp returns the underlying timestamp.
func (l LogicalTime) AsTimestamp() Timestamp {
	return l.ts
}

func (l LogicalTime) String() string {
	return l.ts.String()
}

// --------------------------------------------------------------------------
// LogicalClock
// --------------------------------------------------------------------------

// ErrOutOfOrder is returned when a strict clock advance would move the
// cluster time backwards. It indicates a caller error, not a transient
// condition.
var ErrOutOfOrder = errors.New("clock: cluster time would move backwards")

// LogicalClock issues monotonically increasing logical timestamps. The zero
// tick is never handed out; it is reserved for the null timestamp.
//
// Thread-safety: all methods are safe for concurrent use.
type LogicalClock struct {
	current atomic.Uint64
}

// NewLogicalClock creates a clock whose next reserved tick is 1.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// ReserveTicks atomically allocates n consecutive, strictly increasing ticks
// and returns the first of them. Concurrent callers receive disjoint ranges.
// Reserved ticks are never reused. n must be at least 1.
func (c *LogicalClock) ReserveTicks(n uint64) LogicalTime {
	if n == 0 {
		panic("clock: ReserveTicks(0)")
	}
	end := c.current.Add(n)
	return NewLogicalTime(Timestamp(end - n + 1))
}

// ClusterTime returns the highest tick the clock has issued or been advanced
// to. It does not allocate a tick.
func (c *LogicalClock) ClusterTime() LogicalTime {
	return NewLogicalTime(Timestamp(c.current.Load()))
}

// AdvanceClusterTime raises the clock floor to t. If t is behind the current
// floor the call is a no-op, unless strict is set, in which case it fails
// with ErrOutOfOrder.
func (c *LogicalClock) AdvanceClusterTime(t Timestamp, strict bool) error {
	for {
		cur := c.current.Load()
		if uint64(t) <= cur {
			if strict && uint64(t) < cur {
				return fmt.Errorf("%w: have %d, got %d", ErrOutOfOrder, cur, uint64(t))
			}
			return nil
		}
		if c.current.CompareAndSwap(cur, uint64(t)) {
			return nil
		}
	}
}
