package repl

import (
	"testing"

	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
)

func newMarkers(t *testing.T) (*ConsistencyMarkers, *marksHarness) {
	t.Helper()
	s, _ := newHarness(t)
	m := NewConsistencyMarkers(s)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return m, &marksHarness{t: t, m: m}
}

type marksHarness struct {
	t *testing.T
	m *ConsistencyMarkers
}

func (h *marksHarness) minValid() clock.OpTime {
	h.t.Helper()
	got, err := h.m.GetMinValid()
	if err != nil {
		h.t.Fatalf("GetMinValid failed: %v", err)
	}
	return got
}

func (h *marksHarness) appliedThrough() clock.OpTime {
	h.t.Helper()
	got, err := h.m.GetAppliedThrough()
	if err != nil {
		h.t.Fatalf("GetAppliedThrough failed: %v", err)
	}
	return got
}

func TestMarkersInitialize(t *testing.T) {
	m, h := newMarkers(t)

	if got := h.minValid(); !got.Ts.IsNull() {
		t.Errorf("Expected a null initial minimum valid point, got %v", got)
	}
	if got := h.appliedThrough(); !got.IsNull() {
		t.Errorf("Expected no initial applied-through point, got %v", got)
	}
	if err := m.Initialize(); !db.HasCode(err, db.CodeAlreadyInitialized) {
		t.Errorf("Expected AlreadyInitialized on reinitialization, got %v", err)
	}
}

func TestInitialSyncFlag(t *testing.T) {
	m, h := newMarkers(t)

	flag, err := m.GetInitialSyncFlag()
	if err != nil || flag {
		t.Fatalf("Expected the flag unset initially, got (%v, %v)", flag, err)
	}
	if err := m.SetInitialSyncFlag(); err != nil {
		t.Fatalf("SetInitialSyncFlag failed: %v", err)
	}
	if flag, _ = m.GetInitialSyncFlag(); !flag {
		t.Fatalf("Expected the flag set")
	}

	done := clock.OpTime{Ts: 50, Term: 1}
	if err := m.ClearInitialSyncFlag(done); err != nil {
		t.Fatalf("ClearInitialSyncFlag failed: %v", err)
	}
	if flag, _ = m.GetInitialSyncFlag(); flag {
		t.Errorf("Expected the flag cleared")
	}
	// completing the sync moves both points to the applied-through optime
	if got := h.minValid(); got != done {
		t.Errorf("Expected minimum valid %v, got %v", done, got)
	}
	if got := h.appliedThrough(); got != done {
		t.Errorf("Expected applied-through %v, got %v", done, got)
	}
}

func TestClearInitialSyncFlagIsTimestamped(t *testing.T) {
	m, _ := newMarkers(t)
	if err := m.SetInitialSyncFlag(); err != nil {
		t.Fatalf("SetInitialSyncFlag failed: %v", err)
	}
	if err := m.ClearInitialSyncFlag(clock.OpTime{Ts: 50, Term: 1}); err != nil {
		t.Fatalf("ClearInitialSyncFlag failed: %v", err)
	}

	// before the clear point the marker still shows the sync in progress
	doc := mustFindAt(t, m.store, MinValidNamespace, minValidDocID, 49)
	if doc["doingInitialSync"] != true {
		t.Errorf("Expected the sync flag still set at ts 49, got %v", doc)
	}
	doc = mustFindAt(t, m.store, MinValidNamespace, minValidDocID, 50)
	if _, ok := doc["doingInitialSync"]; ok {
		t.Errorf("Expected the sync flag gone at ts 50, got %v", doc)
	}
	if asTimestamp(doc["ts"]) != 50 {
		t.Errorf("Expected minimum valid 50 at ts 50, got %v", doc["ts"])
	}
}

func TestSetMinValidToAtLeast(t *testing.T) {
	m, h := newMarkers(t)

	if err := m.SetMinValidToAtLeast(clock.OpTime{Ts: 30, Term: 1}); err != nil {
		t.Fatalf("SetMinValidToAtLeast failed: %v", err)
	}
	if got := h.minValid(); got.Ts != 30 {
		t.Fatalf("Expected minimum valid at 30, got %v", got)
	}

	// moving backward is a no-op
	if err := m.SetMinValidToAtLeast(clock.OpTime{Ts: 20, Term: 1}); err != nil {
		t.Fatalf("SetMinValidToAtLeast failed: %v", err)
	}
	if got := h.minValid(); got.Ts != 30 {
		t.Errorf("Expected the point unchanged at 30, got %v", got)
	}

	// SetMinValid moves in either direction
	if err := m.SetMinValid(clock.OpTime{Ts: 10, Term: 1}); err != nil {
		t.Fatalf("SetMinValid failed: %v", err)
	}
	if got := h.minValid(); got.Ts != 10 {
		t.Errorf("Expected the point moved back to 10, got %v", got)
	}

	// the backward move commits as a new version, it does not rewrite history
	doc := mustFindAt(t, m.store, MinValidNamespace, minValidDocID, 30)
	if asTimestamp(doc["ts"]) != 30 {
		t.Errorf("Expected the pre-move state still readable at ts 30, got %v", doc["ts"])
	}
}

func TestAppliedThrough(t *testing.T) {
	m, h := newMarkers(t)

	at := clock.OpTime{Ts: 40, Term: 1}
	if err := m.SetAppliedThrough(at); err != nil {
		t.Fatalf("SetAppliedThrough failed: %v", err)
	}
	if got := h.appliedThrough(); got != at {
		t.Fatalf("Expected applied-through %v, got %v", at, got)
	}

	if err := m.ClearAppliedThrough(45); err != nil {
		t.Fatalf("ClearAppliedThrough failed: %v", err)
	}
	if got := h.appliedThrough(); !got.IsNull() {
		t.Errorf("Expected the applied-through point cleared, got %v", got)
	}
}
