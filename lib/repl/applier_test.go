package repl

import (
	"testing"

	"github.com/google/uuid"
	"github.com/tkv-io/tKV/lib/catalog"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/db/engines/birch"
	"github.com/tkv-io/tKV/lib/storage"
	"github.com/tkv-io/tKV/lib/txn"
)

func newHarness(t *testing.T) (*storage.Store, *Applier) {
	t.Helper()
	s := storage.New(birch.NewBirchDB(nil), clock.NewLogicalClock())
	t.Cleanup(func() { s.Engine().Close() })
	return s, NewApplier(s)
}

func replOpCtx(s *storage.Store) *txn.OperationContext {
	ctx := s.NewOperationContext()
	ctx.SetTerm(1)
	return ctx
}

func mkColl(t *testing.T, s *storage.Store, ns catalog.Namespace) uuid.UUID {
	t.Helper()
	id, err := s.CreateCollection(replOpCtx(s), ns, uuid.Nil)
	if err != nil {
		t.Fatalf("CreateCollection %s failed: %v", ns, err)
	}
	return id
}

// findAt reads one document from a snapshot at ts.
func findAt(t *testing.T, s *storage.Store, ns catalog.Namespace, id any, ts clock.Timestamp) (db.Document, error) {
	t.Helper()
	ctx := s.NewOperationContext()
	if err := ctx.RecoveryUnit().SelectSnapshot(ts); err != nil {
		t.Fatalf("SelectSnapshot(%d) failed: %v", ts, err)
	}
	return s.FindOne(ctx, ns, id)
}

func mustFindAt(t *testing.T, s *storage.Store, ns catalog.Namespace, id any, ts clock.Timestamp) db.Document {
	t.Helper()
	doc, err := findAt(t, s, ns, id, ts)
	if err != nil {
		t.Fatalf("Expected %v in %s at ts %d: %v", id, ns, ts, err)
	}
	return doc
}

// recordingObserver captures atomic batch notifications.
type recordingObserver struct {
	dbName string
	ops    []OplogEntry
	commit clock.OpTime
	calls  int
}

func (o *recordingObserver) OnApplyOps(dbName string, ops []OplogEntry, commitOpTime clock.OpTime) error {
	o.dbName = dbName
	o.ops = ops
	o.commit = commitOpTime
	o.calls++
	return nil
}

// --------------------------------------------------------------------------

func TestApplyInsertTimes(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	entries := make([]OplogEntry, 3)
	for i := range entries {
		entries[i] = OplogEntry{
			Ts: clock.Timestamp(10 + i), T: 1, Op: OpInsert, NS: ns.String(),
			O: db.Document{"_id": i, "field": i},
		}
	}

	res, err := a.ApplyOps(replOpCtx(s), "unittests", entries, ApplyModeNonAtomic)
	if err != nil {
		t.Fatalf("ApplyOps failed: %v", err)
	}
	if res.Applied != 3 {
		t.Fatalf("Expected 3 applied operations, got %d", res.Applied)
	}

	// each document exists exactly from its own timestamp on
	for i := 0; i < 3; i++ {
		ts := clock.Timestamp(10 + i)
		doc := mustFindAt(t, s, ns, i, ts)
		if doc["field"] != float64(i) {
			t.Errorf("Unexpected document at ts %d: %v", ts, doc)
		}
		if _, err := findAt(t, s, ns, i, ts-1); !db.IsNotFound(err) {
			t.Errorf("Document %d should not exist at ts %d, got %v", i, ts-1, err)
		}
	}

	if got := s.Clock().ClusterTime().AsTimestamp(); got < 12 {
		t.Errorf("Cluster time should cover the applied timestamps, got %d", got)
	}
}

func TestApplyGroupedInsertTimes(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	raw := []byte(`[{"ts": [20, 21, 22], "t": [1, 1, 1], "op": "i", "ns": "unittests.coll",
		"o": [{"_id": 0}, {"_id": 1}, {"_id": 2}]}]`)
	entries, err := ParseOplogEntries(raw)
	if err != nil {
		t.Fatalf("ParseOplogEntries failed: %v", err)
	}

	res, err := a.ApplyOps(replOpCtx(s), "unittests", entries, ApplyModeNonAtomic)
	if err != nil || res.Applied != 3 {
		t.Fatalf("ApplyOps returned (%v, %v)", res, err)
	}

	for i := 0; i < 3; i++ {
		ts := clock.Timestamp(20 + i)
		mustFindAt(t, s, ns, i, ts)
		if _, err := findAt(t, s, ns, i, ts-1); !db.IsNotFound(err) {
			t.Errorf("Document %d should not exist at ts %d, got %v", i, ts-1, err)
		}
	}
}

func TestApplyDeleteTimes(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	var entries []OplogEntry
	for i := 0; i < 3; i++ {
		entries = append(entries, OplogEntry{
			Ts: clock.Timestamp(10 + i), T: 1, Op: OpInsert, NS: ns.String(),
			O: db.Document{"_id": i},
		})
	}
	for i := 0; i < 3; i++ {
		entries = append(entries, OplogEntry{
			Ts: clock.Timestamp(20 + i), T: 1, Op: OpDelete, NS: ns.String(),
			O: db.Document{"_id": i},
		})
	}

	res, err := a.ApplyOps(replOpCtx(s), "unittests", entries, ApplyModeNonAtomic)
	if err != nil || res.Applied != 6 {
		t.Fatalf("ApplyOps returned (%v, %v)", res, err)
	}

	// before the first delete everything is present
	for i := 0; i < 3; i++ {
		mustFindAt(t, s, ns, i, 19)
	}
	// each document disappears exactly at its delete timestamp
	for i := 0; i < 3; i++ {
		ts := clock.Timestamp(20 + i)
		if _, err := findAt(t, s, ns, i, ts); !db.IsNotFound(err) {
			t.Errorf("Document %d should be deleted at ts %d, got %v", i, ts, err)
		}
		if i < 2 {
			mustFindAt(t, s, ns, i+1, ts)
		}
	}
}

func TestApplyUpdateTimes(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	entries := []OplogEntry{{
		Ts: 10, T: 1, Op: OpInsert, NS: ns.String(),
		O: db.Document{"_id": 0, "x": 0},
	}}
	for i := 1; i <= 3; i++ {
		entries = append(entries, OplogEntry{
			Ts: clock.Timestamp(20 + i), T: 1, Op: OpUpdate, NS: ns.String(),
			O:  db.Document{"$set": map[string]any{"x": i}},
			O2: db.Document{"_id": 0},
		})
	}

	res, err := a.ApplyOps(replOpCtx(s), "unittests", entries, ApplyModeNonAtomic)
	if err != nil || res.Applied != 4 {
		t.Fatalf("ApplyOps returned (%v, %v)", res, err)
	}

	if doc := mustFindAt(t, s, ns, 0, 20); doc["x"] != float64(0) {
		t.Errorf("Expected the initial value before the first update, got %v", doc)
	}
	for i := 1; i <= 3; i++ {
		ts := clock.Timestamp(20 + i)
		if doc := mustFindAt(t, s, ns, 0, ts); doc["x"] != float64(i) {
			t.Errorf("Expected x=%d at ts %d, got %v", i, ts, doc)
		}
	}
}

func TestAtomicBatchSingleTimestamp(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	obs := &recordingObserver{}
	a.SetObserver(obs)

	entries := []OplogEntry{
		{Op: OpInsert, NS: ns.String(), O: db.Document{"_id": 0}},
		{Op: OpInsert, NS: ns.String(), O: db.Document{"_id": 1}},
	}
	res, err := a.ApplyOps(replOpCtx(s), "unittests", entries, ApplyModeAtomic)
	if err != nil || res.Applied != 2 {
		t.Fatalf("ApplyOps returned (%v, %v)", res, err)
	}
	if obs.calls != 1 || obs.dbName != "unittests" {
		t.Fatalf("Expected one observer notification for unittests, got %d for %q", obs.calls, obs.dbName)
	}

	// both documents appear at the one commit timestamp, neither before
	commitTs := obs.commit.Ts
	for i := 0; i < 2; i++ {
		mustFindAt(t, s, ns, i, commitTs)
		if _, err := findAt(t, s, ns, i, commitTs-1); !db.IsNotFound(err) {
			t.Errorf("Document %d should not exist before the commit, got %v", i, err)
		}
	}
}

func TestAtomicInsertToUpsert(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	// two inserts of the same _id conflict atomically and fall back to the
	// non-atomic path, where the second becomes the record's next version
	entries := []OplogEntry{
		{Ts: 20, T: 1, Op: OpInsert, NS: ns.String(), O: db.Document{"_id": 0, "field": 0}},
		{Ts: 21, T: 1, Op: OpInsert, NS: ns.String(), O: db.Document{"_id": 0, "field": 1}},
		{Op: OpCommand, NS: "unittests.$cmd", O: db.Document{"applyOps": []any{}}},
	}
	res, err := a.ApplyOps(replOpCtx(s), "unittests", entries, ApplyModeAtomic)
	if err != nil {
		t.Fatalf("ApplyOps failed: %v", err)
	}
	if res.Applied != 3 {
		t.Fatalf("Expected 3 applied operations including the no-op, got %d", res.Applied)
	}

	if doc := mustFindAt(t, s, ns, 0, 20); doc["field"] != float64(0) {
		t.Errorf("Expected the first version at ts 20, got %v", doc)
	}
	if doc := mustFindAt(t, s, ns, 0, 21); doc["field"] != float64(1) {
		t.Errorf("Expected the upserted version at ts 21, got %v", doc)
	}
}

func TestAtomicInsertOverExistingConverts(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	if _, err := s.InsertDocument(replOpCtx(s), ns, db.Document{"_id": 0, "field": 0}); err != nil {
		t.Fatalf("InsertDocument failed: %v", err)
	}

	// the record exists, so the atomic insert converts to an upsert instead
	// of conflicting
	entries := []OplogEntry{
		{Op: OpInsert, NS: ns.String(), O: db.Document{"_id": 0, "field": 1}},
	}
	res, err := a.ApplyOps(replOpCtx(s), "unittests", entries, ApplyModeAtomic)
	if err != nil || res.Applied != 1 {
		t.Fatalf("ApplyOps returned (%v, %v)", res, err)
	}
	doc, err := s.FindOne(replOpCtx(s), ns, 0)
	if err != nil || doc["field"] != float64(1) {
		t.Errorf("Expected the upserted document, got %v (%v)", doc, err)
	}
}

func TestAtomicUpdateMissingDocumentFails(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	entries := []OplogEntry{
		{Op: OpInsert, NS: ns.String(), O: db.Document{"_id": 1}},
		{Op: OpUpdate, NS: ns.String(), O: db.Document{"$set": map[string]any{"x": 1}}, O2: db.Document{"_id": 42}},
	}
	_, err := a.ApplyOps(replOpCtx(s), "unittests", entries, ApplyModeAtomic)
	if !db.IsNotFound(err) {
		t.Fatalf("Expected NotFound for the missing update target, got %v", err)
	}

	// the whole batch aborted, including the insert buffered before the
	// failing update
	if _, err := s.FindOne(replOpCtx(s), ns, 1); !db.IsNotFound(err) {
		t.Errorf("Expected the aborted insert to be invisible, got %v", err)
	}
}

func TestApplyCreateCollection(t *testing.T) {
	s, a := newHarness(t)
	id := uuid.New()

	entries := []OplogEntry{
		{Ts: 30, T: 1, Op: OpCommand, NS: "unittests.$cmd", UI: &id, O: db.Document{"create": "coll2"}},
		{Ts: 31, T: 1, Op: OpInsert, NS: "unittests.coll2", O: db.Document{"_id": 0}},
	}
	// the command forces the non-atomic path even in atomic mode
	res, err := a.ApplyOps(replOpCtx(s), "unittests", entries, ApplyModeAtomic)
	if err != nil || res.Applied != 2 {
		t.Fatalf("ApplyOps returned (%v, %v)", res, err)
	}

	ns := catalog.NewNamespace("unittests", "coll2")
	entry, err := s.Catalog().Lookup(ns)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry.UUID != id {
		t.Errorf("Expected collection uuid %s, got %s", id, entry.UUID)
	}
	if entry.CreateTs != 30 {
		t.Errorf("Expected creation at ts 30, got %d", entry.CreateTs)
	}

	name := ns.String()
	if contains(s.Catalog().ListIdents(29), name) {
		t.Errorf("Collection should not exist before its creation timestamp")
	}
	if !contains(s.Catalog().ListIdents(30), name) {
		t.Errorf("Collection should exist at its creation timestamp")
	}
	mustFindAt(t, s, ns, 0, 31)
}

func TestNonAtomicFailureIsolation(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	entries := []OplogEntry{
		{Ts: 40, T: 1, Op: OpUpdate, NS: ns.String(), O: db.Document{"$set": map[string]any{"x": 1}}, O2: db.Document{"_id": 42}},
		{Ts: 41, T: 1, Op: OpInsert, NS: ns.String(), O: db.Document{"_id": 5}},
	}
	res, err := a.ApplyOps(replOpCtx(s), "unittests", entries, ApplyModeNonAtomic)
	if err != nil {
		t.Fatalf("ApplyOps failed: %v", err)
	}
	if res.Applied != 1 || res.Results[0] || !res.Results[1] {
		t.Fatalf("Expected only the insert to apply, got %+v", res)
	}
	mustFindAt(t, s, ns, 5, 41)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
