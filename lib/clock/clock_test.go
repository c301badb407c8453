package clock

import (
	"errors"
	"sync"
	"testing"
)

func TestReserveTicks(t *testing.T) {
	c := NewLogicalClock()

	first := c.ReserveTicks(1)
	if first.AsTimestamp() != 1 {
		t.Errorf("Expected first reserved timestamp 1, got %d", first.AsTimestamp())
	}

	// reserving n ticks returns the first of the range and advances past it
	batch := c.ReserveTicks(3)
	if batch.AsTimestamp() != 2 {
		t.Errorf("Expected batch start 2, got %d", batch.AsTimestamp())
	}
	if got := c.ClusterTime().AsTimestamp(); got != 4 {
		t.Errorf("Expected cluster time 4 after reserving through 4, got %d", got)
	}

	next := c.ReserveTicks(1)
	if next.AsTimestamp() != 5 {
		t.Errorf("Expected next reserved timestamp 5, got %d", next.AsTimestamp())
	}
}

func TestReserveTicksZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected panic for zero tick reservation")
		}
	}()
	NewLogicalClock().ReserveTicks(0)
}

func TestAdvanceClusterTime(t *testing.T) {
	c := NewLogicalClock()

	if err := c.AdvanceClusterTime(10, true); err != nil {
		t.Fatalf("Advance to 10 failed: %v", err)
	}
	if got := c.ClusterTime().AsTimestamp(); got != 10 {
		t.Errorf("Expected cluster time 10, got %d", got)
	}

	// strict regression is rejected and leaves the clock untouched
	err := c.AdvanceClusterTime(5, true)
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("Expected ErrOutOfOrder for strict regression, got %v", err)
	}
	if got := c.ClusterTime().AsTimestamp(); got != 10 {
		t.Errorf("Cluster time must not regress, got %d", got)
	}

	// non-strict regression is ignored
	if err := c.AdvanceClusterTime(5, false); err != nil {
		t.Fatalf("Non-strict regression should be a no-op, got %v", err)
	}
	if got := c.ClusterTime().AsTimestamp(); got != 10 {
		t.Errorf("Cluster time must not regress, got %d", got)
	}

	// equal time is fine in both modes
	if err := c.AdvanceClusterTime(10, true); err != nil {
		t.Fatalf("Advance to the current time should succeed, got %v", err)
	}
}

func TestReserveTicksConcurrent(t *testing.T) {
	c := NewLogicalClock()

	const (
		goroutines = 16
		perRoutine = 100
	)

	var (
		mu   sync.Mutex
		seen = make(map[Timestamp]bool)
		wg   sync.WaitGroup
	)

	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perRoutine; i++ {
				ts := c.ReserveTicks(1).AsTimestamp()
				mu.Lock()
				if seen[ts] {
					t.Errorf("Timestamp %d reserved twice", ts)
				}
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if got := c.ClusterTime().AsTimestamp(); got != goroutines*perRoutine {
		t.Errorf("Expected cluster time %d, got %d", goroutines*perRoutine, got)
	}
}

func TestLogicalTimeAddTicks(t *testing.T) {
	lt := NewLogicalTime(5)
	if got := lt.AddTicks(3).AsTimestamp(); got != 8 {
		t.Errorf("Expected 8, got %d", got)
	}
	// AddTicks does not mutate the receiver
	if lt.AsTimestamp() != 5 {
		t.Errorf("AddTicks must not mutate, got %d", lt.AsTimestamp())
	}
}

func TestOpTimeCompare(t *testing.T) {
	tests := []struct {
		a, b OpTime
		want int
	}{
		{OpTime{Ts: 5, Term: 1}, OpTime{Ts: 5, Term: 1}, 0},
		{OpTime{Ts: 5, Term: 2}, OpTime{Ts: 10, Term: 1}, 1},  // term dominates
		{OpTime{Ts: 5, Term: 1}, OpTime{Ts: 10, Term: 1}, -1}, // same term, timestamp decides
		{OpTime{Ts: 5, Term: UninitializedTerm}, OpTime{Ts: 5, Term: 1}, -1},
	}

	for _, tc := range tests {
		if got := tc.a.Compare(tc.b); got != tc.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}

	if !(OpTime{Ts: 10, Term: 1}).After(OpTime{Ts: 5, Term: 1}) {
		t.Errorf("Expected {10,1} to be after {5,1}")
	}
	if !(OpTime{}).IsNull() {
		t.Errorf("Zero OpTime should be null")
	}
}
