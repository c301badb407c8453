// Package clock provides the logical time base of the storage layer.
//
// Every write the system performs is stamped with a Timestamp issued by the
// LogicalClock. The clock is a single process-wide monotonic counter:
// callers reserve one or more ticks up front (ReserveTicks) and stamp their
// mutations with the reserved values, or advance the cluster-wide floor when
// they learn of time issued elsewhere (AdvanceClusterTime).
//
// Two sentinel timestamps exist: TimestampNull (the minimum, meaning
// "untimestamped" on writes and "no pin" on reads) and TimestampMax (the
// "latest" read sentinel). OpTime pairs a Timestamp with an election term
// for ordering operations across terms.
package clock
