package repl

import (
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/tkv-io/tKV/lib/catalog"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/storage"
	"github.com/tkv-io/tKV/lib/txn"
)

var log = logger.GetLogger("repl")

var (
	atomicBatchesTotal    = metrics.NewCounter(`tkv_applier_batches_total{mode="atomic"}`)
	nonAtomicBatchesTotal = metrics.NewCounter(`tkv_applier_batches_total{mode="nonatomic"}`)
	opsAppliedTotal       = metrics.NewCounter(`tkv_applier_ops_applied_total`)
	opsFailedTotal        = metrics.NewCounter(`tkv_applier_ops_failed_total`)
	atomicFallbacksTotal  = metrics.NewCounter(`tkv_applier_atomic_fallbacks_total`)
)

// --------------------------------------------------------------------------
// Applier Types
// --------------------------------------------------------------------------

// ApplyMode selects how a batch of operations is applied.
type ApplyMode int

const (
	// ApplyModeAtomic applies the whole batch in one unit of work at a
	// single commit timestamp. Batches containing commands other than the
	// empty applyOps no-op, and batches that hit a write conflict, are
	// replayed non-atomically.
	ApplyModeAtomic ApplyMode = iota

	// ApplyModeNonAtomic applies every operation in its own unit of work at
	// the operation's embedded timestamp.
	ApplyModeNonAtomic
)

// Result reports the outcome of a batch application: how many operations
// applied and the per-operation outcomes in batch order.
type Result struct {
	Applied int    `json:"applied"`
	Results []bool `json:"results"`
}

// OpObserver is notified after a batch applied atomically, with the batch
// as it was actually applied and its commit point.
type OpObserver interface {
	OnApplyOps(dbName string, ops []OplogEntry, commitOpTime clock.OpTime) error
}

// Applier replays batches of oplog entries against a store.
type Applier struct {
	store    *storage.Store
	observer OpObserver
}

// NewApplier creates an applier for the given store.
func NewApplier(store *storage.Store) *Applier {
	return &Applier{store: store}
}

// SetObserver wires the observer notified on atomic batch application.
func (a *Applier) SetObserver(obs OpObserver) {
	a.observer = obs
}

// --------------------------------------------------------------------------
// Batch Application
// --------------------------------------------------------------------------

// ApplyOps applies a batch of oplog entries against dbName.
//
// In atomic mode the whole batch commits in one unit of work at a single
// commit timestamp (the context pin, or a fresh clock tick): inserts whose
// record already exists convert to upserts, and a missing update target
// aborts the batch with NotFound. A write conflict aborts the atomic
// attempt and replays the batch non-atomically at the entries' own
// timestamps.
//
// In non-atomic mode every entry applies in its own unit of work at its own
// timestamp; a failing entry fails only itself.
func (a *Applier) ApplyOps(opCtx *txn.OperationContext, dbName string, entries []OplogEntry, mode ApplyMode) (Result, error) {
	if mode == ApplyModeAtomic && !containsCommands(entries) {
		res, err := a.applyAtomic(opCtx, dbName, entries)
		if !db.IsConflict(err) {
			return res, err
		}
		atomicFallbacksTotal.Inc()
		log.Warningf("atomic applyOps on %s hit %v, replaying non-atomically", dbName, err)
	}
	return a.applyNonAtomic(dbName, entries)
}

// containsCommands reports whether any entry forces the non-atomic path.
func containsCommands(entries []OplogEntry) bool {
	for _, e := range entries {
		if e.IsCommand() && !e.IsNoopCommand() {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Atomic Path
// --------------------------------------------------------------------------

func (a *Applier) applyAtomic(opCtx *txn.OperationContext, dbName string, entries []OplogEntry) (Result, error) {
	atomicBatchesTotal.Inc()

	uow := a.store.NewWriteUnitOfWork(opCtx)
	res := Result{Results: make([]bool, len(entries))}

	for i, e := range entries {
		if err := a.bufferAtomic(uow, e); err != nil {
			uow.Abort()
			return Result{}, err
		}
		res.Results[i] = true
		res.Applied++
	}

	ts, err := uow.Commit()
	if err != nil {
		return Result{}, err
	}
	opsAppliedTotal.Add(res.Applied)

	if a.observer != nil {
		commitOpTime := clock.OpTime{Ts: ts, Term: opCtx.Term()}
		if err := a.observer.OnApplyOps(dbName, entries, commitOpTime); err != nil {
			return res, err
		}
	}
	return res, nil
}

// bufferAtomic adds one entry to the shared unit of work.
func (a *Applier) bufferAtomic(uow *txn.WriteUnitOfWork, e OplogEntry) error {
	if e.IsNoopCommand() || e.Op == OpNoop {
		return nil
	}
	ns := catalog.ParseNamespace(e.NS)

	switch e.Op {
	case OpInsert:
		id, ok := e.O.ID()
		if !ok {
			return db.Errorf(db.CodeInternal, "insert for %s has no _id", ns)
		}
		// an insert whose record already exists converts to an upsert
		if _, err := a.findLatest(ns, id); err == nil {
			return uow.Put(ns, e.O)
		} else if !db.IsNotFound(err) {
			return err
		}
		return uow.Insert(ns, e.O)

	case OpUpdate:
		id, ok := e.O2.ID()
		if !ok {
			return db.Errorf(db.CodeInternal, "update for %s has no _id query", ns)
		}
		current, err := a.findLatest(ns, id)
		if err != nil {
			return err
		}
		updated, err := db.ApplyUpdate(current, e.O)
		if err != nil {
			return err
		}
		return uow.Put(ns, updated)

	case OpDelete:
		id, ok := e.O.ID()
		if !ok {
			return db.Errorf(db.CodeInternal, "delete for %s has no _id", ns)
		}
		return uow.Delete(ns, id)

	default:
		return db.Errorf(db.CodeInternal, "unsupported atomic operation %q on %s", e.Op, ns)
	}
}

// findLatest reads the current committed version of a document.
func (a *Applier) findLatest(ns catalog.Namespace, id any) (db.Document, error) {
	return a.store.FindOne(a.store.NewOperationContext(), ns, id)
}

// --------------------------------------------------------------------------
// Non-Atomic Path
// --------------------------------------------------------------------------

func (a *Applier) applyNonAtomic(dbName string, entries []OplogEntry) (Result, error) {
	nonAtomicBatchesTotal.Inc()

	res := Result{Results: make([]bool, len(entries))}
	for i, e := range entries {
		if err := a.applyOne(dbName, e); err != nil {
			opsFailedTotal.Inc()
			log.Warningf("op %d (%s on %s) failed: %v", i, e.Op, e.NS, err)
			continue
		}
		res.Results[i] = true
		res.Applied++
		opsAppliedTotal.Inc()
	}
	return res, nil
}

// applyOne applies a single entry in its own unit of work, committed at the
// entry's embedded timestamp.
func (a *Applier) applyOne(dbName string, e OplogEntry) error {
	if e.IsNoopCommand() || e.Op == OpNoop {
		return nil
	}
	ns := catalog.ParseNamespace(e.NS)

	opCtx := a.store.NewOperationContext()
	opCtx.SetTerm(e.T)
	if !e.Ts.IsNull() {
		opCtx.SetCommitTimestamp(e.Ts)
	} else if !ns.IsReplicated() {
		opCtx.SetUnreplicatedWrites(true)
	}

	var err error
	switch e.Op {
	case OpCommand:
		err = a.applyCommand(opCtx, e)

	case OpInsert:
		// on this path a duplicate insert simply becomes the record's next
		// version at the entry's timestamp
		_, err = a.store.UpsertDocument(opCtx, ns, e.O)

	case OpUpdate:
		id, ok := e.O2.ID()
		if !ok {
			return db.Errorf(db.CodeInternal, "update for %s has no _id query", ns)
		}
		var current, updated db.Document
		if current, err = a.findLatest(ns, id); err != nil {
			return err
		}
		if updated, err = db.ApplyUpdate(current, e.O); err != nil {
			return err
		}
		_, err = a.store.UpsertDocument(opCtx, ns, updated)

	case OpDelete:
		id, ok := e.O.ID()
		if !ok {
			return db.Errorf(db.CodeInternal, "delete for %s has no _id", ns)
		}
		_, err = a.store.DeleteDocument(opCtx, ns, id)

	default:
		return db.Errorf(db.CodeInternal, "unsupported operation %q on %s", e.Op, ns)
	}
	if err != nil {
		return err
	}

	// the node's clock must cover every applied timestamp
	return a.store.Clock().AdvanceClusterTime(e.Ts, false)
}

// applyCommand applies a command entry at the entry's timestamp.
func (a *Applier) applyCommand(opCtx *txn.OperationContext, e OplogEntry) error {
	cmdNs := catalog.ParseNamespace(e.NS)

	switch e.CommandName() {
	case "create":
		coll, ok := e.O["create"].(string)
		if !ok {
			return db.Errorf(db.CodeInternal, "create command without collection name")
		}
		id := uuidOrNil(e.UI)
		_, err := a.store.CreateCollection(opCtx, catalog.NewNamespace(cmdNs.DB(), coll), id)
		return err

	case "drop":
		coll, ok := e.O["drop"].(string)
		if !ok {
			return db.Errorf(db.CodeInternal, "drop command without collection name")
		}
		_, err := a.store.DropCollection(opCtx, catalog.NewNamespace(cmdNs.DB(), coll))
		return err

	case "renameCollection":
		from, _ := e.O["renameCollection"].(string)
		to, _ := e.O["to"].(string)
		if from == "" || to == "" {
			return db.Errorf(db.CodeInternal, "renameCollection command without source or target")
		}
		return a.store.RenameCollection(opCtx, catalog.ParseNamespace(from), catalog.ParseNamespace(to))

	case "dropDatabase":
		return a.store.DropDatabase(opCtx, cmdNs.DB(), storage.DropDatabaseSecondary)

	case "applyOps":
		// the non-empty nested form is not supported on this path
		return db.Errorf(db.CodeInternal, "nested applyOps command on %s", e.NS)

	default:
		return db.Errorf(db.CodeInternal, "unsupported command %v on %s", e.O, e.NS)
	}
}

func uuidOrNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
