package storage

import (
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/tkv-io/tKV/lib/catalog"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/lockmgr"
	"github.com/tkv-io/tKV/lib/txn"
)

var log = logger.GetLogger("storage")

// --------------------------------------------------------------------------
// Drop-Pending Registry
// --------------------------------------------------------------------------

// DropPendingRegistry tracks namespaces whose drop is deferred to a later
// point in time (two-phase drops). The replication layer provides the
// implementation; the storage layer only hands namespaces over and removes
// them again when another path dropped them first.
type DropPendingRegistry interface {
	// AddDropPendingNamespace schedules the namespace for physical removal
	// once the drop point has been acknowledged.
	AddDropPendingNamespace(dropOpTime clock.OpTime, ns catalog.Namespace)

	// RemoveDropPendingNamespace withdraws a scheduled removal.
	RemoveDropPendingNamespace(ns catalog.Namespace)
}

// DropDatabasePolicy selects the commit-timestamp rule of DropDatabase.
type DropDatabasePolicy int

const (
	// DropDatabasePrimary stamps every collection drop with its own fresh
	// clock tick.
	DropDatabasePrimary DropDatabasePolicy = iota

	// DropDatabaseSecondary commits every collection drop at the timestamp
	// pinned on the operation context (the replicated drop point).
	DropDatabaseSecondary
)

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store is the storage engine facade. It binds the record engine, the
// timestamped catalog, the logical clock and the namespace lockmgr into the
// collection-level operations the layers above work with.
type Store struct {
	engine db.RecordEngine
	cat    *catalog.Catalog
	clk    *clock.LogicalClock
	locks  lockmgr.ILockManager
	reaper DropPendingRegistry
}

// New creates a store around an engine. The drop-pending registry starts
// empty; without one, drops skip the two-phase detour.
func New(engine db.RecordEngine, clk *clock.LogicalClock) *Store {
	return &Store{
		engine: engine,
		cat:    catalog.NewCatalog(),
		clk:    clk,
		locks:  lockmgr.NewLockManager(),
	}
}

// SetDropPendingRegistry wires the registry two-phase drops hand their
// namespaces to.
func (s *Store) SetDropPendingRegistry(reg DropPendingRegistry) {
	s.reaper = reg
}

// Engine returns the underlying record engine.
func (s *Store) Engine() db.RecordEngine { return s.engine }

// Catalog returns the timestamped catalog.
func (s *Store) Catalog() *catalog.Catalog { return s.cat }

// Clock returns the logical clock.
func (s *Store) Clock() *clock.LogicalClock { return s.clk }

// NewOperationContext creates an operation context bound to this store.
func (s *Store) NewOperationContext() *txn.OperationContext {
	return txn.NewOperationContext(s.clk, s.engine)
}

// NewWriteUnitOfWork begins a unit of work against this store.
func (s *Store) NewWriteUnitOfWork(opCtx *txn.OperationContext) *txn.WriteUnitOfWork {
	return txn.NewWriteUnitOfWork(opCtx, s.engine, s.cat, s.locks)
}

// --------------------------------------------------------------------------
// Collection Lifecycle
// --------------------------------------------------------------------------

// CreateCollection registers a namespace at the operation's commit
// timestamp. A nil UUID is replaced by a fresh one. Returns the collection
// UUID.
func (s *Store) CreateCollection(opCtx *txn.OperationContext, ns catalog.Namespace, id uuid.UUID) (uuid.UUID, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	uow := s.NewWriteUnitOfWork(opCtx)
	if err := uow.CreateNamespace(ns, id); err != nil {
		uow.Abort()
		return uuid.Nil, err
	}
	ts, err := uow.Commit()
	if err != nil {
		return uuid.Nil, err
	}
	log.Debugf("created collection %s at %s", ns, ts)
	return id, nil
}

// EnsureCollection creates a namespace if it does not exist yet and returns
// its UUID.
func (s *Store) EnsureCollection(opCtx *txn.OperationContext, ns catalog.Namespace) (uuid.UUID, error) {
	if e, err := s.cat.Lookup(ns); err == nil {
		return e.UUID, nil
	} else if !db.IsNotFound(err) {
		return uuid.Nil, err
	}
	return s.CreateCollection(opCtx, ns, uuid.Nil)
}

// RenameCollection renames a namespace at the operation's commit timestamp.
// The backing ident and its timestamps are unchanged.
func (s *Store) RenameCollection(opCtx *txn.OperationContext, from, to catalog.Namespace) error {
	uow := s.NewWriteUnitOfWork(opCtx)
	if err := uow.RenameNamespace(from, to); err != nil {
		uow.Abort()
		return err
	}
	_, err := uow.Commit()
	return err
}

// DropCollection removes a namespace. Replicated namespaces take the
// two-phase path: the collection is renamed to its drop-pending name and
// handed to the registry, which physically drops it once the drop point is
// acknowledged. Unreplicated namespaces, and any namespace when no registry
// is wired, are dropped immediately.
//
// Returns the drop point of the namespace.
func (s *Store) DropCollection(opCtx *txn.OperationContext, ns catalog.Namespace) (clock.OpTime, error) {
	if !ns.IsReplicated() || s.reaper == nil {
		return s.dropCollectionImmediate(opCtx, ns)
	}

	// Fix the drop point up front: the drop-pending name embeds it.
	ts := opCtx.CommitTimestamp()
	if ts.IsNull() {
		ts = s.clk.ReserveTicks(1).AsTimestamp()
	}
	dropOpTime := clock.OpTime{Ts: ts, Term: opCtx.Term()}
	pending := ns.MakeDropPending(dropOpTime)

	uow := s.NewWriteUnitOfWork(opCtx)
	if err := uow.RenameNamespace(ns, pending); err != nil {
		uow.Abort()
		return clock.OpTime{}, err
	}
	if _, err := uow.CommitAt(ts); err != nil {
		return clock.OpTime{}, err
	}

	s.reaper.AddDropPendingNamespace(dropOpTime, pending)
	log.Debugf("collection %s renamed to drop-pending %s at %s", ns, pending, ts)
	return dropOpTime, nil
}

// dropCollectionImmediate drops the namespace from the catalog and discards
// its record versions in one step.
func (s *Store) dropCollectionImmediate(opCtx *txn.OperationContext, ns catalog.Namespace) (clock.OpTime, error) {
	entry, err := s.cat.Lookup(ns)
	if err != nil {
		return clock.OpTime{}, err
	}

	uow := s.NewWriteUnitOfWork(opCtx)
	if err := uow.DropNamespace(ns); err != nil {
		uow.Abort()
		return clock.OpTime{}, err
	}
	ts, err := uow.Commit()
	if err != nil {
		return clock.OpTime{}, err
	}

	s.engine.DropIdent(entry.Ident)
	log.Debugf("dropped collection %s (ident %s) at %s", ns, entry.Ident, ts)
	return clock.OpTime{Ts: ts, Term: opCtx.Term()}, nil
}

// DropDatabase removes every collection of a database, including collections
// already renamed to their drop-pending names. Under the primary policy
// every drop commits at its own fresh clock tick; under the secondary policy
// every drop commits at the timestamp pinned on the operation context.
//
// A race with the drop-pending reaper finalizing the same namespace is
// harmless: catalog drops are idempotent, and the later drop point wins.
func (s *Store) DropDatabase(opCtx *txn.OperationContext, dbName string, policy DropDatabasePolicy) error {
	if policy == DropDatabaseSecondary && opCtx.CommitTimestamp().IsNull() {
		return db.Errorf(db.CodeInternal,
			"dropDatabase on a secondary needs a pinned commit timestamp")
	}

	for _, name := range s.cat.ListIdents(clock.TimestampNull) {
		ns := catalog.ParseNamespace(name)
		if ns.DB() != dbName {
			continue
		}

		dropCtx := s.NewOperationContext()
		dropCtx.SetTerm(opCtx.Term())
		if policy == DropDatabaseSecondary {
			dropCtx.SetCommitTimestamp(opCtx.CommitTimestamp())
		}

		if _, err := s.dropCollectionImmediate(dropCtx, ns); err != nil {
			if db.IsNotFound(err) || db.HasCode(err, db.CodeAlreadyDropped) {
				continue
			}
			return err
		}
		if s.reaper != nil && ns.IsDropPending() {
			s.reaper.RemoveDropPendingNamespace(ns)
		}
	}

	log.Infof("dropped database %s", dbName)
	return nil
}

// SetInitialDataTimestamp establishes the timestamp of the node's initial
// data state. History below it is not queryable.
func (s *Store) SetInitialDataTimestamp(ts clock.Timestamp) {
	s.engine.SetOldestTimestamp(ts)
}

// --------------------------------------------------------------------------
// Document Helpers
// --------------------------------------------------------------------------

// InsertDocument inserts one document through its own unit of work and
// returns the commit timestamp.
func (s *Store) InsertDocument(opCtx *txn.OperationContext, ns catalog.Namespace, doc db.Document) (clock.Timestamp, error) {
	uow := s.NewWriteUnitOfWork(opCtx)
	if err := uow.Insert(ns, doc); err != nil {
		uow.Abort()
		return clock.TimestampNull, err
	}
	return uow.Commit()
}

// UpsertDocument writes one document through its own unit of work,
// replacing any existing record with the same id.
func (s *Store) UpsertDocument(opCtx *txn.OperationContext, ns catalog.Namespace, doc db.Document) (clock.Timestamp, error) {
	uow := s.NewWriteUnitOfWork(opCtx)
	if err := uow.Put(ns, doc); err != nil {
		uow.Abort()
		return clock.TimestampNull, err
	}
	return uow.Commit()
}

// DeleteDocument deletes one document by id through its own unit of work.
func (s *Store) DeleteDocument(opCtx *txn.OperationContext, ns catalog.Namespace, id any) (clock.Timestamp, error) {
	uow := s.NewWriteUnitOfWork(opCtx)
	if err := uow.Delete(ns, id); err != nil {
		uow.Abort()
		return clock.TimestampNull, err
	}
	return uow.Commit()
}

// FindOne returns the document with the given id as visible at the
// operation's read timestamp.
func (s *Store) FindOne(opCtx *txn.OperationContext, ns catalog.Namespace, id any) (db.Document, error) {
	entry, err := s.cat.Lookup(ns)
	if err != nil {
		return nil, err
	}
	key, err := db.RecordKey(id)
	if err != nil {
		return nil, err
	}
	raw, ok := s.engine.Get(entry.Ident, key, opCtx.RecoveryUnit().ReadTimestamp())
	if !ok {
		return nil, db.Errorf(db.CodeNotFound, "no document with _id %v in %s", id, ns)
	}
	return db.DecodeDocument(raw)
}

// FindAll returns every document of the namespace visible at the
// operation's read timestamp, in insertion order.
func (s *Store) FindAll(opCtx *txn.OperationContext, ns catalog.Namespace) ([]db.Document, error) {
	entry, err := s.cat.Lookup(ns)
	if err != nil {
		return nil, err
	}

	var docs []db.Document
	cursor := s.engine.Cursor(entry.Ident, opCtx.RecoveryUnit().ReadTimestamp())
	for {
		r, ok := cursor.Next()
		if !ok {
			return docs, nil
		}
		doc, err := db.DecodeDocument(r.Value)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// Count returns the number of documents visible at the operation's read
// timestamp.
func (s *Store) Count(opCtx *txn.OperationContext, ns catalog.Namespace) (int, error) {
	entry, err := s.cat.Lookup(ns)
	if err != nil {
		return 0, err
	}
	count := 0
	cursor := s.engine.Cursor(entry.Ident, opCtx.RecoveryUnit().ReadTimestamp())
	for {
		if _, ok := cursor.Next(); !ok {
			return count, nil
		}
		count++
	}
}
