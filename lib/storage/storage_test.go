package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/tkv-io/tKV/lib/catalog"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/db/engines/birch"
	"github.com/tkv-io/tKV/lib/txn"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(birch.NewBirchDB(nil), clock.NewLogicalClock())
	t.Cleanup(func() { s.Engine().Close() })
	return s
}

func opCtx(s *Store) *txn.OperationContext {
	ctx := s.NewOperationContext()
	ctx.SetTerm(1)
	return ctx
}

// recordingRegistry captures two-phase drop handovers.
type recordingRegistry struct {
	added   []catalog.Namespace
	removed []catalog.Namespace
	optimes []clock.OpTime
}

func (r *recordingRegistry) AddDropPendingNamespace(dropOpTime clock.OpTime, ns catalog.Namespace) {
	r.added = append(r.added, ns)
	r.optimes = append(r.optimes, dropOpTime)
}

func (r *recordingRegistry) RemoveDropPendingNamespace(ns catalog.Namespace) {
	r.removed = append(r.removed, ns)
}

func TestCreateAndFind(t *testing.T) {
	s := newStore(t)
	ns := catalog.NewNamespace("unittests", "coll")

	id, err := s.CreateCollection(opCtx(s), ns, uuid.Nil)
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if id == uuid.Nil {
		t.Fatalf("Expected a generated collection UUID")
	}

	ctx := opCtx(s)
	insertTs, err := s.InsertDocument(ctx, ns, db.Document{"_id": 0, "a": 1})
	if err != nil {
		t.Fatalf("InsertDocument failed: %v", err)
	}

	// latest read sees the document
	doc, err := s.FindOne(opCtx(s), ns, 0)
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc["a"] != float64(1) {
		t.Errorf("Unexpected document %v", doc)
	}

	// a snapshot before the insert does not
	early := opCtx(s)
	if err := early.RecoveryUnit().SelectSnapshot(insertTs - 1); err != nil {
		t.Fatalf("SelectSnapshot failed: %v", err)
	}
	if _, err := s.FindOne(early, ns, 0); !db.IsNotFound(err) {
		t.Errorf("Expected NotFound before the insert timestamp, got %v", err)
	}

	// EnsureCollection is idempotent and returns the same UUID
	got, err := s.EnsureCollection(opCtx(s), ns)
	if err != nil || got != id {
		t.Errorf("EnsureCollection returned %s (%v), want %s", got, err, id)
	}
}

func TestCountAndFindAll(t *testing.T) {
	s := newStore(t)
	ns := catalog.NewNamespace("unittests", "coll")
	if _, err := s.CreateCollection(opCtx(s), ns, uuid.Nil); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	var timestamps []clock.Timestamp
	for i := 0; i < 3; i++ {
		ts, err := s.InsertDocument(opCtx(s), ns, db.Document{"_id": i})
		if err != nil {
			t.Fatalf("InsertDocument failed: %v", err)
		}
		timestamps = append(timestamps, ts)
	}

	// count grows along the timeline
	for i, ts := range timestamps {
		ctx := opCtx(s)
		if err := ctx.RecoveryUnit().SelectSnapshot(ts); err != nil {
			t.Fatalf("SelectSnapshot failed: %v", err)
		}
		n, err := s.Count(ctx, ns)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if n != i+1 {
			t.Errorf("At %s expected count %d, got %d", ts, i+1, n)
		}
	}

	docs, err := s.FindAll(opCtx(s), ns)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("Expected 3 documents, got %d", len(docs))
	}
	for i, doc := range docs {
		if doc["_id"] != float64(i) {
			t.Errorf("Expected insertion order, got %v at position %d", doc, i)
		}
	}
}

func TestDropCollectionTwoPhase(t *testing.T) {
	s := newStore(t)
	reg := &recordingRegistry{}
	s.SetDropPendingRegistry(reg)

	ns := catalog.NewNamespace("unittests", "coll")
	if _, err := s.CreateCollection(opCtx(s), ns, uuid.Nil); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	ident, err := s.Catalog().IdentFor(ns)
	if err != nil {
		t.Fatalf("IdentFor failed: %v", err)
	}

	dropOpTime, err := s.DropCollection(opCtx(s), ns)
	if err != nil {
		t.Fatalf("DropCollection failed: %v", err)
	}

	// the namespace was renamed to its drop-pending name, not dropped
	if len(reg.added) != 1 {
		t.Fatalf("Expected one registry handover, got %d", len(reg.added))
	}
	pending := reg.added[0]
	if !pending.IsDropPending() {
		t.Errorf("Expected a drop-pending name, got %s", pending)
	}
	if got, _ := pending.DropPendingOpTime(); got != dropOpTime {
		t.Errorf("Drop-pending name carries %v, want %v", got, dropOpTime)
	}

	// the ident survives under the new name, with its data
	if got, err := s.Catalog().IdentFor(pending); err != nil || got != ident {
		t.Errorf("Expected ident %s under the drop-pending name, got %s (%v)", ident, got, err)
	}
	if _, err := s.Catalog().Lookup(ns); !db.IsNotFound(err) {
		t.Errorf("Old name should be gone, got %v", err)
	}
}

func TestDropCollectionUnreplicatedIsImmediate(t *testing.T) {
	s := newStore(t)
	reg := &recordingRegistry{}
	s.SetDropPendingRegistry(reg)

	ns := catalog.ParseNamespace("local.replset.minvalid")
	if _, err := s.CreateCollection(opCtx(s), ns, uuid.Nil); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	ident, _ := s.Catalog().IdentFor(ns)
	if _, err := s.InsertDocument(opCtx(s), ns, db.Document{"_id": 0}); err != nil {
		t.Fatalf("InsertDocument failed: %v", err)
	}

	if _, err := s.DropCollection(opCtx(s), ns); err != nil {
		t.Fatalf("DropCollection failed: %v", err)
	}

	if len(reg.added) != 0 {
		t.Errorf("Unreplicated drops must not take the two-phase path")
	}
	// removed from every timestamp, ident physically gone
	if idents := s.Catalog().IdentsVisibleAt(1); len(idents) != 0 {
		t.Errorf("Expected no visible idents, got %v", idents)
	}
	if _, ok := s.Engine().Get(ident, "0", clock.TimestampNull); ok {
		t.Errorf("Expected the ident's records to be discarded")
	}
}

func TestDropDatabasePrimary(t *testing.T) {
	s := newStore(t)
	reg := &recordingRegistry{}
	s.SetDropPendingRegistry(reg)

	for _, coll := range []string{"a", "b"} {
		if _, err := s.CreateCollection(opCtx(s), catalog.NewNamespace("unittests", coll), uuid.Nil); err != nil {
			t.Fatalf("CreateCollection failed: %v", err)
		}
	}
	if _, err := s.CreateCollection(opCtx(s), catalog.NewNamespace("other", "keep"), uuid.Nil); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	// one collection is already drop-pending; dropDatabase must pick it up
	// and withdraw it from the registry
	if _, err := s.DropCollection(opCtx(s), catalog.NewNamespace("unittests", "a")); err != nil {
		t.Fatalf("DropCollection failed: %v", err)
	}

	before := s.Clock().ClusterTime().AsTimestamp()
	if err := s.DropDatabase(opCtx(s), "unittests", DropDatabasePrimary); err != nil {
		t.Fatalf("DropDatabase failed: %v", err)
	}

	if len(reg.removed) != 1 {
		t.Errorf("Expected the pending namespace to be withdrawn, got %v", reg.removed)
	}
	names := s.Catalog().ListIdents(clock.TimestampNull)
	if len(names) != 1 || names[0] != "other.keep" {
		t.Errorf("Expected only other.keep to survive, got %v", names)
	}
	// primary policy stamps fresh ticks after the starting point
	if got := s.Clock().ClusterTime().AsTimestamp(); got <= before {
		t.Errorf("Expected the clock to advance for primary drops, %d <= %d", got, before)
	}
	// the collections remain visible at timestamps before the drop
	if names := s.Catalog().ListIdents(before); len(names) != 3 {
		t.Errorf("Expected all three namespaces visible before the drop, got %v", names)
	}
}

func TestDropDatabaseSecondaryPinnedTimestamp(t *testing.T) {
	s := newStore(t)

	ns := catalog.NewNamespace("unittests", "coll")
	if _, err := s.CreateCollection(opCtx(s), ns, uuid.Nil); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	// a secondary without a pinned timestamp is a caller error
	if err := s.DropDatabase(opCtx(s), "unittests", DropDatabaseSecondary); err == nil {
		t.Fatalf("Expected error without a pinned commit timestamp")
	}

	dropTs := s.Clock().ReserveTicks(5).AddTicks(4).AsTimestamp()
	ctx := opCtx(s)
	ctx.SetCommitTimestamp(dropTs)
	if err := s.DropDatabase(ctx, "unittests", DropDatabaseSecondary); err != nil {
		t.Fatalf("DropDatabase failed: %v", err)
	}

	// visible strictly below the pinned drop timestamp, gone at it
	if names := s.Catalog().ListIdents(dropTs - 1); len(names) != 1 {
		t.Errorf("Expected the namespace below the drop point, got %v", names)
	}
	if names := s.Catalog().ListIdents(dropTs); len(names) != 0 {
		t.Errorf("Expected no namespaces at the drop point, got %v", names)
	}
}

func TestSetInitialDataTimestamp(t *testing.T) {
	s := newStore(t)
	s.SetInitialDataTimestamp(10)

	ctx := opCtx(s)
	if err := ctx.RecoveryUnit().SelectSnapshot(5); !db.IsSnapshotUnavailable(err) {
		t.Errorf("Expected SnapshotUnavailable below the initial data timestamp, got %v", err)
	}
	if err := ctx.RecoveryUnit().SelectSnapshot(10); err != nil {
		t.Errorf("SelectSnapshot at the initial data timestamp failed: %v", err)
	}
}
