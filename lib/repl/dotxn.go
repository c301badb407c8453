package repl

import (
	"github.com/tkv-io/tKV/lib/catalog"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/txn"
)

// --------------------------------------------------------------------------
// DoTxn
// --------------------------------------------------------------------------

// DoTxn applies a batch of CRUD operations as one transaction: every
// operation commits at a single timestamp, or none do.
//
// Before applying, every operation is resolved against the catalog. An
// operation without a collection UUID gets the UUID of the named collection
// filled in. An operation that carries a UUID is rewritten to the current
// name of that collection, so the batch keeps targeting the same collection
// across renames. A UUID that is unknown or does not resolve aborts the
// batch with NotFound.
//
// The returned entries are the batch as actually applied, with UUIDs and
// namespaces rewritten.
func (a *Applier) DoTxn(opCtx *txn.OperationContext, dbName string, ops []OplogEntry) ([]OplogEntry, Result, error) {
	if len(ops) == 0 {
		return nil, Result{}, db.Errorf(db.CodeInternal, "doTxn with no operations")
	}

	rewritten := make([]OplogEntry, len(ops))
	for i, op := range ops {
		if op.IsCommand() && !op.IsNoopCommand() {
			return nil, Result{}, db.Errorf(db.CodeInternal,
				"doTxn does not allow command %v on %s", op.O, op.NS)
		}
		resolved, err := a.resolveNamespace(op)
		if err != nil {
			return nil, Result{}, err
		}
		rewritten[i] = resolved
	}

	res, err := a.applyAtomic(opCtx, dbName, rewritten)
	if err != nil {
		return nil, Result{}, err
	}
	return rewritten, res, nil
}

// resolveNamespace fills in or resolves the collection UUID of one entry.
func (a *Applier) resolveNamespace(op OplogEntry) (OplogEntry, error) {
	if op.IsNoopCommand() || op.Op == OpNoop {
		return op, nil
	}
	cat := a.store.Catalog()

	if op.UI == nil {
		entry, err := cat.Lookup(catalog.ParseNamespace(op.NS))
		if err != nil {
			return OplogEntry{}, err
		}
		id := entry.UUID
		op.UI = &id
		return op, nil
	}

	entry, err := cat.LookupByUUID(*op.UI)
	if err != nil {
		return OplogEntry{}, db.Errorf(db.CodeNotFound,
			"no collection with uuid %s for %s", *op.UI, op.NS)
	}
	op.NS = entry.Ns.String()
	return op, nil
}

// --------------------------------------------------------------------------
// Oplog Writer
// --------------------------------------------------------------------------

// OplogNamespace is where applied batches are recorded.
var OplogNamespace = catalog.NewNamespace("local", "oplog.rs")

// OplogWriter records atomically applied batches as applyOps command entries
// in the local oplog collection. It implements OpObserver.
type OplogWriter struct {
	applier *Applier
	counter uint64
}

// NewOplogWriter creates a writer backed by the applier's store. The oplog
// collection is created on first use.
func NewOplogWriter(applier *Applier) *OplogWriter {
	return &OplogWriter{applier: applier}
}

// OnApplyOps appends one applyOps entry describing the batch, timestamped at
// the batch's commit point.
func (w *OplogWriter) OnApplyOps(dbName string, ops []OplogEntry, commitOpTime clock.OpTime) error {
	store := w.applier.store

	opCtx := store.NewOperationContext()
	if _, err := store.EnsureCollection(opCtx, OplogNamespace); err != nil {
		return err
	}

	applyOps := make([]any, 0, len(ops))
	for _, op := range ops {
		applyOps = append(applyOps, db.Document{
			"op": op.Op,
			"ns": op.NS,
			"ui": op.UI,
			"o":  op.O,
			"o2": op.O2,
		})
	}

	w.counter++
	entry := db.Document{
		"_id": w.counter,
		"ts":  commitOpTime.Ts,
		"t":   commitOpTime.Term,
		"op":  OpCommand,
		"ns":  dbName + ".$cmd",
		"o":   db.Document{"applyOps": applyOps},
	}

	writeCtx := store.NewOperationContext()
	writeCtx.SetTerm(commitOpTime.Term)
	writeCtx.SetUnreplicatedWrites(true)
	_, err := store.InsertDocument(writeCtx, OplogNamespace, entry)
	return err
}
