package txn

import (
	"github.com/google/uuid"
	"github.com/tkv-io/tKV/lib/catalog"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/lockmgr"
)

// --------------------------------------------------------------------------
// Buffered Mutations
// --------------------------------------------------------------------------

type catalogOpKind int

const (
	catalogCreate catalogOpKind = iota
	catalogRename
	catalogDrop
)

type catalogOp struct {
	kind catalogOpKind
	ns   catalog.Namespace
	to   catalog.Namespace // Rename target
	uuid uuid.UUID         // Create only
}

// bufferedWrite is one pending record mutation. Writes to the same record
// coalesce into a single entry, so the engine sees at most one version per
// record and the Base captured at first buffering stays valid.
type bufferedWrite struct {
	ident     string
	key       string
	value     []byte
	tombstone bool
	base      uint64
	inserted  bool // Set when an insert produced the current buffered state
}

type writeKey struct {
	ident string
	key   string
}

// --------------------------------------------------------------------------
// WriteUnitOfWork
// --------------------------------------------------------------------------

// WriteUnitOfWork buffers record and catalog mutations and publishes them
// atomically at a single commit timestamp. Until Commit, nothing is visible
// to other operations; Abort discards the buffer.
//
// The unit of work holds the exclusive namespace lockmgr of every touched
// namespace from the first buffered mutation until Commit or Abort. Locks
// are released on every exit path.
//
// Thread-safety: a WriteUnitOfWork belongs to a single operation and is not
// safe for concurrent use.
type WriteUnitOfWork struct {
	opCtx  *OperationContext
	engine db.RecordEngine
	cat    *catalog.Catalog
	locks  lockmgr.ILockManager

	held       map[string][]byte // Namespace -> lockmgr owner ID
	order      []writeKey
	writes     map[writeKey]*bufferedWrite
	catalogOps []catalogOp
	done       bool
}

// NewWriteUnitOfWork begins a unit of work under the given operation
// context.
func NewWriteUnitOfWork(opCtx *OperationContext, engine db.RecordEngine, cat *catalog.Catalog, locks lockmgr.ILockManager) *WriteUnitOfWork {
	return &WriteUnitOfWork{
		opCtx:  opCtx,
		engine: engine,
		cat:    cat,
		locks:  locks,
		held:   make(map[string][]byte),
		writes: make(map[writeKey]*bufferedWrite),
	}
}

func (w *WriteUnitOfWork) lockNamespace(ns catalog.Namespace) error {
	key := ns.String()
	if _, ok := w.held[key]; ok {
		return nil
	}
	ownerID, err := w.locks.AcquireLock(key)
	if err != nil {
		return db.Errorf(db.CodeInternal, "acquire namespace lock %s: %v", key, err)
	}
	w.held[key] = ownerID
	return nil
}

func (w *WriteUnitOfWork) releaseLocks() {
	for key, ownerID := range w.held {
		w.locks.ReleaseLock(key, ownerID)
		delete(w.held, key)
	}
}

func (w *WriteUnitOfWork) checkOpen() error {
	if w.done {
		return db.Errorf(db.CodeInternal, "write unit of work already finished")
	}
	return nil
}

// resolveRecord locks the namespace and derives the (ident, record key)
// coordinates of a document id.
func (w *WriteUnitOfWork) resolveRecord(ns catalog.Namespace, id any) (writeKey, error) {
	if err := w.lockNamespace(ns); err != nil {
		return writeKey{}, err
	}
	ident, err := w.cat.IdentFor(ns)
	if err != nil {
		return writeKey{}, err
	}
	key, err := db.RecordKey(id)
	if err != nil {
		return writeKey{}, err
	}
	return writeKey{ident: ident, key: key}, nil
}

// --------------------------------------------------------------------------
// Document Mutations
// --------------------------------------------------------------------------

// Insert buffers a document insert. Inserting the same record id twice
// within one unit of work fails with Conflict. The document must carry an
// "_id" field.
func (w *WriteUnitOfWork) Insert(ns catalog.Namespace, doc db.Document) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	id, ok := doc.ID()
	if !ok {
		return db.Errorf(db.CodeInternal, "document for %s has no _id", ns)
	}
	wk, err := w.resolveRecord(ns, id)
	if err != nil {
		return err
	}
	value, err := db.EncodeDocument(doc)
	if err != nil {
		return err
	}

	if existing, ok := w.writes[wk]; ok {
		if !existing.tombstone {
			return db.Errorf(db.CodeConflict,
				"write conflict: duplicate insert of %v into %s", id, ns)
		}
		// Insert after a buffered delete coalesces into a plain write
		existing.value = value
		existing.tombstone = false
		existing.inserted = true
		return nil
	}

	w.buffer(wk, &bufferedWrite{
		ident:    wk.ident,
		key:      wk.key,
		value:    value,
		base:     w.engine.LatestVersion(wk.ident, wk.key),
		inserted: true,
	})
	return nil
}

// Put buffers a document write regardless of whether the record exists
// (upsert semantics). The document must carry an "_id" field.
func (w *WriteUnitOfWork) Put(ns catalog.Namespace, doc db.Document) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	id, ok := doc.ID()
	if !ok {
		return db.Errorf(db.CodeInternal, "document for %s has no _id", ns)
	}
	wk, err := w.resolveRecord(ns, id)
	if err != nil {
		return err
	}
	value, err := db.EncodeDocument(doc)
	if err != nil {
		return err
	}

	if existing, ok := w.writes[wk]; ok {
		existing.value = value
		existing.tombstone = false
		return nil
	}

	w.buffer(wk, &bufferedWrite{
		ident: wk.ident,
		key:   wk.key,
		value: value,
		base:  w.engine.LatestVersion(wk.ident, wk.key),
	})
	return nil
}

// Delete buffers a deletion of the record with the given document id.
func (w *WriteUnitOfWork) Delete(ns catalog.Namespace, id any) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	wk, err := w.resolveRecord(ns, id)
	if err != nil {
		return err
	}

	if existing, ok := w.writes[wk]; ok {
		existing.value = nil
		existing.tombstone = true
		existing.inserted = false
		return nil
	}

	w.buffer(wk, &bufferedWrite{
		ident:     wk.ident,
		key:       wk.key,
		tombstone: true,
		base:      w.engine.LatestVersion(wk.ident, wk.key),
	})
	return nil
}

func (w *WriteUnitOfWork) buffer(wk writeKey, bw *bufferedWrite) {
	w.writes[wk] = bw
	w.order = append(w.order, wk)
}

// --------------------------------------------------------------------------
// Catalog Mutations
// --------------------------------------------------------------------------

// CreateNamespace buffers the creation of a namespace with the given
// collection UUID.
func (w *WriteUnitOfWork) CreateNamespace(ns catalog.Namespace, id uuid.UUID) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := w.lockNamespace(ns); err != nil {
		return err
	}
	w.catalogOps = append(w.catalogOps, catalogOp{kind: catalogCreate, ns: ns, uuid: id})
	return nil
}

// RenameNamespace buffers a namespace rename.
func (w *WriteUnitOfWork) RenameNamespace(from, to catalog.Namespace) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := w.lockNamespace(from); err != nil {
		return err
	}
	if err := w.lockNamespace(to); err != nil {
		return err
	}
	w.catalogOps = append(w.catalogOps, catalogOp{kind: catalogRename, ns: from, to: to})
	return nil
}

// DropNamespace buffers a namespace drop.
func (w *WriteUnitOfWork) DropNamespace(ns catalog.Namespace) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := w.lockNamespace(ns); err != nil {
		return err
	}
	w.catalogOps = append(w.catalogOps, catalogOp{kind: catalogDrop, ns: ns})
	return nil
}

// --------------------------------------------------------------------------
// Commit / Abort
// --------------------------------------------------------------------------

// commitTimestamp resolves the timestamp every buffered mutation commits
// at: the context pin if set, the null timestamp for unreplicated writes,
// otherwise a fresh clock tick.
func (w *WriteUnitOfWork) commitTimestamp() clock.Timestamp {
	if ts := w.opCtx.CommitTimestamp(); !ts.IsNull() {
		return ts
	}
	if w.opCtx.UnreplicatedWrites() {
		return clock.TimestampNull
	}
	return w.opCtx.Clock().ReserveTicks(1).AsTimestamp()
}

// Commit publishes every buffered mutation at one commit timestamp and
// finishes the unit of work. Catalog mutations and the record batch publish
// together: a failure in either rolls the whole unit of work back, so no
// partial state is ever observed. A Conflict error means a concurrent
// writer moved one of the records past its buffered base version; the unit
// of work may be retried.
func (w *WriteUnitOfWork) Commit() (clock.Timestamp, error) {
	if err := w.checkOpen(); err != nil {
		return clock.TimestampNull, err
	}
	defer func() {
		w.done = true
		w.releaseLocks()
	}()

	ts := w.commitTimestamp()

	var batch []db.Write
	for _, wk := range w.order {
		bw := w.writes[wk]
		batch = append(batch, db.Write{
			Ident:     bw.ident,
			Key:       bw.key,
			Value:     bw.value,
			Ts:        ts,
			Tombstone: bw.tombstone,
			Base:      bw.base,
		})
	}
	publish := func() error {
		if len(batch) == 0 {
			return nil
		}
		return w.engine.ApplyBatch(batch)
	}

	if len(w.catalogOps) == 0 {
		if err := publish(); err != nil {
			return clock.TimestampNull, err
		}
		return ts, nil
	}

	ops := make([]catalog.Op, 0, len(w.catalogOps))
	for _, op := range w.catalogOps {
		switch op.kind {
		case catalogCreate:
			ops = append(ops, catalog.Op{Kind: catalog.OpCreate, NS: op.ns, UUID: op.uuid})
		case catalogRename:
			ops = append(ops, catalog.Op{Kind: catalog.OpRename, NS: op.ns, To: op.to})
		case catalogDrop:
			ops = append(ops, catalog.Op{Kind: catalog.OpDrop, NS: op.ns})
		}
	}
	if err := w.cat.RunStaged(ops, ts, publish); err != nil {
		return clock.TimestampNull, err
	}
	return ts, nil
}

// CommitAt pins the commit timestamp and commits.
func (w *WriteUnitOfWork) CommitAt(ts clock.Timestamp) (clock.Timestamp, error) {
	w.opCtx.SetCommitTimestamp(ts)
	return w.Commit()
}

// Abort discards every buffered mutation and finishes the unit of work.
func (w *WriteUnitOfWork) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.writes = nil
	w.order = nil
	w.catalogOps = nil
	w.releaseLocks()
}
