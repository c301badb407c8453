package repl

import (
	"testing"

	"github.com/google/uuid"
	"github.com/tkv-io/tKV/lib/catalog"
	"github.com/tkv-io/tKV/lib/db"
)

func TestDoTxnAtomicity(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	if _, err := s.InsertDocument(replOpCtx(s), ns, db.Document{"_id": 0}); err != nil {
		t.Fatalf("InsertDocument failed: %v", err)
	}

	ops := []OplogEntry{
		{Op: OpInsert, NS: ns.String(), O: db.Document{"_id": 1}},
		{Op: OpUpdate, NS: ns.String(), O: db.Document{"$set": map[string]any{"x": 1}}, O2: db.Document{"_id": 99}},
	}
	if _, _, err := a.DoTxn(replOpCtx(s), "unittests", ops); !db.IsNotFound(err) {
		t.Fatalf("Expected NotFound, got %v", err)
	}

	// nothing from the failed transaction is visible
	if _, err := s.FindOne(replOpCtx(s), ns, 1); !db.IsNotFound(err) {
		t.Errorf("Expected the aborted insert to be invisible, got %v", err)
	}
	if _, err := s.FindOne(replOpCtx(s), ns, 0); err != nil {
		t.Errorf("The pre-existing document should survive, got %v", err)
	}
}

func TestDoTxnFillsCollectionUUID(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	id := mkColl(t, s, ns)

	ops := []OplogEntry{{Op: OpInsert, NS: ns.String(), O: db.Document{"_id": 0}}}
	rewritten, res, err := a.DoTxn(replOpCtx(s), "unittests", ops)
	if err != nil || res.Applied != 1 {
		t.Fatalf("DoTxn returned (%v, %v)", res, err)
	}
	if rewritten[0].UI == nil || *rewritten[0].UI != id {
		t.Errorf("Expected the collection uuid %s filled in, got %v", id, rewritten[0].UI)
	}
}

func TestDoTxnResolvesUUIDAcrossRename(t *testing.T) {
	s, a := newHarness(t)
	from := catalog.NewNamespace("unittests", "a")
	to := catalog.NewNamespace("unittests", "b")
	id := mkColl(t, s, from)
	if err := s.RenameCollection(replOpCtx(s), from, to); err != nil {
		t.Fatalf("RenameCollection failed: %v", err)
	}

	// the op still names the old namespace but carries the UUID
	ops := []OplogEntry{{Op: OpInsert, NS: from.String(), UI: &id, O: db.Document{"_id": 0}}}
	rewritten, res, err := a.DoTxn(replOpCtx(s), "unittests", ops)
	if err != nil || res.Applied != 1 {
		t.Fatalf("DoTxn returned (%v, %v)", res, err)
	}
	if rewritten[0].NS != to.String() {
		t.Errorf("Expected the op rewritten to %s, got %s", to, rewritten[0].NS)
	}
	if _, err := s.FindOne(replOpCtx(s), to, 0); err != nil {
		t.Errorf("Expected the document in the renamed collection, got %v", err)
	}
}

func TestDoTxnUnknownUUID(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)

	bogus := uuid.New()
	ops := []OplogEntry{{Op: OpInsert, NS: ns.String(), UI: &bogus, O: db.Document{"_id": 0}}}
	if _, _, err := a.DoTxn(replOpCtx(s), "unittests", ops); !db.IsNotFound(err) {
		t.Fatalf("Expected NotFound for an unknown collection uuid, got %v", err)
	}
}

func TestDoTxnRejectsCommands(t *testing.T) {
	s, a := newHarness(t)
	ops := []OplogEntry{{Op: OpCommand, NS: "unittests.$cmd", O: db.Document{"create": "coll"}}}
	if _, _, err := a.DoTxn(replOpCtx(s), "unittests", ops); err == nil {
		t.Fatalf("Expected an error for a command inside a transaction")
	}
	if _, _, err := a.DoTxn(replOpCtx(s), "unittests", nil); err == nil {
		t.Fatalf("Expected an error for an empty transaction")
	}
}

func TestDoTxnWritesOplogEntry(t *testing.T) {
	s, a := newHarness(t)
	ns := catalog.NewNamespace("unittests", "coll")
	mkColl(t, s, ns)
	a.SetObserver(NewOplogWriter(a))

	ops := []OplogEntry{{Op: OpInsert, NS: ns.String(), O: db.Document{"_id": 0, "a": 1}}}
	if _, res, err := a.DoTxn(replOpCtx(s), "unittests", ops); err != nil || res.Applied != 1 {
		t.Fatalf("DoTxn returned (%v, %v)", res, err)
	}

	logged, err := s.FindAll(replOpCtx(s), OplogNamespace)
	if err != nil {
		t.Fatalf("FindAll on the oplog failed: %v", err)
	}
	if len(logged) != 1 {
		t.Fatalf("Expected one oplog entry, got %d", len(logged))
	}
	entry := logged[0]
	if entry["op"] != OpCommand || entry["ns"] != "unittests.$cmd" {
		t.Errorf("Unexpected oplog entry %v", entry)
	}
	if ts := asTimestamp(entry["ts"]); ts.IsNull() {
		t.Errorf("Expected the commit timestamp on the oplog entry, got %v", entry["ts"])
	}
	payload, ok := entry["o"].(map[string]any)
	if !ok {
		t.Fatalf("Unexpected oplog payload %v", entry["o"])
	}
	applied, ok := payload["applyOps"].([]any)
	if !ok || len(applied) != 1 {
		t.Errorf("Expected the applied batch in the entry, got %v", payload)
	}
}
