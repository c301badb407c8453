package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
)

func TestParseNamespace(t *testing.T) {
	ns := ParseNamespace("unittests.timestampedUpdates")
	if ns.DB() != "unittests" || ns.Collection() != "timestampedUpdates" {
		t.Errorf("Unexpected parse result: %s / %s", ns.DB(), ns.Collection())
	}

	// the collection part may contain dots
	ns = ParseNamespace("local.replset.minvalid")
	if ns.DB() != "local" || ns.Collection() != "replset.minvalid" {
		t.Errorf("Unexpected parse result: %s / %s", ns.DB(), ns.Collection())
	}

	if got := NewNamespace("unittests", "coll").String(); got != "unittests.coll" {
		t.Errorf("Expected unittests.coll, got %s", got)
	}
}

func TestNamespaceIsReplicated(t *testing.T) {
	tests := []struct {
		ns   string
		want bool
	}{
		{"unittests.coll", true},
		{"local.oplog.rs", false},
		{"local.replset.minvalid", false},
		{"unittests.system.drop.5t1.coll", false},
		{"unittests.system.profile", false},
	}
	for _, tc := range tests {
		if got := ParseNamespace(tc.ns).IsReplicated(); got != tc.want {
			t.Errorf("IsReplicated(%s) = %v, want %v", tc.ns, got, tc.want)
		}
	}
}

func TestDropPendingNames(t *testing.T) {
	ns := NewNamespace("unittests", "coll")
	dropOpTime := clock.OpTime{Ts: 5, Term: 1}

	pending := ns.MakeDropPending(dropOpTime)
	if got := pending.String(); got != "unittests.system.drop.5t1.coll" {
		t.Errorf("Unexpected drop-pending name %s", got)
	}
	if !pending.IsDropPending() {
		t.Errorf("Expected %s to be drop-pending", pending)
	}
	if ns.IsDropPending() {
		t.Errorf("Expected %s not to be drop-pending", ns)
	}

	parsed, ok := pending.DropPendingOpTime()
	if !ok || parsed != dropOpTime {
		t.Errorf("Expected drop point %v, got %v (ok=%v)", dropOpTime, parsed, ok)
	}
}

func TestCreateVisibility(t *testing.T) {
	c := NewCatalog()
	ns := NewNamespace("unittests", "coll")

	e, err := c.Create(ns, uuid.New(), 10)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if e.Ident == "" {
		t.Fatalf("Expected a generated ident")
	}

	// invisible before creation, visible from the create timestamp on
	for _, tc := range []struct {
		at   clock.Timestamp
		want bool
	}{
		{5, false}, {9, false}, {10, true}, {50, true}, {clock.TimestampNull, true},
	} {
		idents := c.IdentsVisibleAt(tc.at)
		if got := len(idents) == 1; got != tc.want {
			t.Errorf("At timestamp %d expected visible=%v, got idents %v", tc.at, tc.want, idents)
		}
	}

	// duplicate creation fails
	if _, err := c.Create(ns, uuid.New(), 20); !db.HasCode(err, db.CodeNamespaceExists) {
		t.Errorf("Expected NamespaceExists, got %v", err)
	}
}

func TestUnreplicatedNamespaces(t *testing.T) {
	c := NewCatalog()
	ns := ParseNamespace("local.replset.minvalid")

	// created at ts 10, but unreplicated entries exist at every timestamp
	if _, err := c.Create(ns, uuid.New(), 10); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if idents := c.IdentsVisibleAt(1); len(idents) != 1 {
		t.Errorf("Unreplicated namespace should be visible at timestamp 1, got %v", idents)
	}

	// the drop removes them from every timestamp
	if _, err := c.Drop(ns, 20); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	for _, at := range []clock.Timestamp{1, 15, 50, clock.TimestampNull} {
		if idents := c.IdentsVisibleAt(at); len(idents) != 0 {
			t.Errorf("Dropped unreplicated namespace should be invisible at %d, got %v", at, idents)
		}
	}
}

func TestRenameKeepsIdentAndTimestamps(t *testing.T) {
	c := NewCatalog()
	from := NewNamespace("unittests", "from")
	to := NewNamespace("unittests", "to")

	created, err := c.Create(from, uuid.New(), 10)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := c.Rename(from, to, 20); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	e, err := c.Lookup(to)
	if err != nil {
		t.Fatalf("Lookup after rename failed: %v", err)
	}
	if e.Ident != created.Ident {
		t.Errorf("Rename must not change the ident: %s vs %s", e.Ident, created.Ident)
	}
	if e.CreateTs != 10 {
		t.Errorf("Rename must not change the create timestamp, got %d", e.CreateTs)
	}
	if _, err := c.Lookup(from); !db.IsNotFound(err) {
		t.Errorf("Old name should be gone, got %v", err)
	}

	// reads at earlier timestamps see the old name
	if names := c.ListIdents(15); len(names) != 1 || names[0] != "unittests.from" {
		t.Errorf("Expected old name at timestamp 15, got %v", names)
	}
	if names := c.ListIdents(20); len(names) != 1 || names[0] != "unittests.to" {
		t.Errorf("Expected new name at timestamp 20, got %v", names)
	}

	// rename of a missing source and onto a taken target fail
	if err := c.Rename(from, NewNamespace("unittests", "other"), 30); !db.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if _, err := c.Create(from, uuid.New(), 30); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := c.Rename(from, to, 40); !db.HasCode(err, db.CodeNamespaceExists) {
		t.Errorf("Expected NamespaceExists, got %v", err)
	}
}

func TestDropVisibilityAndIdempotency(t *testing.T) {
	c := NewCatalog()
	ns := NewNamespace("unittests", "coll")

	if _, err := c.Create(ns, uuid.New(), 10); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := c.Drop(ns, 30); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	// visible strictly below the drop timestamp, invisible at and after it
	for _, tc := range []struct {
		at   clock.Timestamp
		want int
	}{
		{10, 1}, {29, 1}, {30, 0}, {50, 0}, {clock.TimestampNull, 0},
	} {
		if idents := c.IdentsVisibleAt(tc.at); len(idents) != tc.want {
			t.Errorf("At timestamp %d expected %d idents, got %v", tc.at, tc.want, idents)
		}
	}

	// dropped names cannot be looked up, but can be recreated
	if _, err := c.Lookup(ns); !db.IsNotFound(err) {
		t.Errorf("Expected NotFound after drop, got %v", err)
	}
	if _, err := c.Create(ns, uuid.New(), 40); err != nil {
		t.Fatalf("Recreate after drop failed: %v", err)
	}

	// a re-drop races: at or after the recorded point it is a no-op
	second, err := c.Drop(ns, 50)
	if err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if again, err := c.Drop(ns, 60); err != nil || again.Ident != second.Ident {
		t.Errorf("Re-drop at a later timestamp should be a no-op success, got %v", err)
	}
	if _, err := c.Drop(ns, 45); !db.HasCode(err, db.CodeAlreadyDropped) {
		t.Errorf("Expected AlreadyDropped for an earlier re-drop, got %v", err)
	}

	if _, err := c.Drop(NewNamespace("unittests", "nonexistent"), 50); !db.IsNotFound(err) {
		t.Errorf("Expected NotFound for unknown namespace, got %v", err)
	}
}

func TestDropPendingFinalizeKeepsHistory(t *testing.T) {
	c := NewCatalog()
	ns := NewNamespace("unittests", "coll")

	if _, err := c.Create(ns, uuid.New(), 10); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// two-phase drop: rename to the drop-pending name, then finalize
	dropOpTime := clock.OpTime{Ts: 20, Term: 1}
	pending := ns.MakeDropPending(dropOpTime)
	if err := c.Rename(ns, pending, 20); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if _, err := c.Drop(pending, 20); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	// the drop-pending name is unreplicated, but the entry was created
	// replicated: finalizing must not erase history below the drop point
	if names := c.ListIdents(15); len(names) != 1 || names[0] != "unittests.coll" {
		t.Errorf("Expected the collection visible under its old name at 15, got %v", names)
	}
	for _, at := range []clock.Timestamp{20, 50, clock.TimestampNull} {
		if idents := c.IdentsVisibleAt(at); len(idents) != 0 {
			t.Errorf("Expected no idents at %d after the finalize, got %v", at, idents)
		}
	}
}

func TestLookupByUUID(t *testing.T) {
	c := NewCatalog()
	id := uuid.New()
	ns := NewNamespace("unittests", "coll")

	if _, err := c.Create(ns, id, 10); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	e, err := c.LookupByUUID(id)
	if err != nil {
		t.Fatalf("LookupByUUID failed: %v", err)
	}
	if e.Ns != ns {
		t.Errorf("Expected namespace %s, got %s", ns, e.Ns)
	}

	if _, err := c.LookupByUUID(uuid.New()); !db.IsNotFound(err) {
		t.Errorf("Expected NotFound for unknown uuid, got %v", err)
	}

	// dropped entries are not found by uuid
	if _, err := c.Drop(ns, 20); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if _, err := c.LookupByUUID(id); !db.IsNotFound(err) {
		t.Errorf("Expected NotFound after drop, got %v", err)
	}
}

func TestListIdentsSorted(t *testing.T) {
	c := NewCatalog()
	for _, coll := range []string{"zebra", "alpha", "middle"} {
		if _, err := c.Create(NewNamespace("unittests", coll), uuid.New(), 10); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	names := c.ListIdents(10)
	want := []string{"unittests.alpha", "unittests.middle", "unittests.zebra"}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Expected %v in sorted order, got %v", want, names)
		}
	}
}
