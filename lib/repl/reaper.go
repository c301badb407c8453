package repl

import (
	"sync"

	"github.com/tkv-io/tKV/lib/catalog"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/db/util"
	"github.com/tkv-io/tKV/lib/storage"
)

// --------------------------------------------------------------------------
// Drop-Pending Reaper
// --------------------------------------------------------------------------

// DropPendingReaper finalizes two-phase collection drops. The storage layer
// renames a dropped collection to a drop-pending name and hands it over
// here; the reaper holds the pending namespaces in a min-heap keyed by drop
// timestamp and physically removes every namespace whose drop point has
// been passed by the commit point.
//
// Thread-safety: all methods are safe for concurrent use.
type DropPendingReaper struct {
	store *storage.Store

	mu      sync.Mutex
	pending *util.MapHeap
}

// NewDropPendingReaper creates a reaper over the given store.
func NewDropPendingReaper(store *storage.Store) *DropPendingReaper {
	return &DropPendingReaper{
		store:   store,
		pending: util.NewMapHeap(),
	}
}

// AddDropPendingNamespace schedules a drop-pending namespace for physical
// removal once its drop point is acknowledged.
func (r *DropPendingReaper) AddDropPendingNamespace(dropOpTime clock.OpTime, ns catalog.Namespace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending.Contains(ns.String()) {
		log.Warningf("namespace %s already scheduled for removal", ns)
		return
	}
	r.pending.AddItem(ns.String(), uint64(dropOpTime.Ts))
}

// RemoveDropPendingNamespace withdraws a scheduled removal, for namespaces
// another path dropped first.
func (r *DropPendingReaper) RemoveDropPendingNamespace(ns catalog.Namespace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.RemoveByKey(ns.String())
}

// ContainsNamespace returns whether ns is scheduled for removal.
func (r *DropPendingReaper) ContainsNamespace(ns catalog.Namespace) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Contains(ns.String())
}

// OldestDropOpTime returns the earliest scheduled drop timestamp, or the
// null timestamp when nothing is pending.
func (r *DropPendingReaper) OldestDropOpTime() clock.Timestamp {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.pending.Peek()
	if !ok {
		return clock.TimestampNull
	}
	return clock.Timestamp(item.Priority)
}

// DropCollectionsOlderThan physically removes every pending namespace whose
// drop point is at or before opTime. Namespaces already gone from the
// catalog are treated as removed; a reaper racing another drop path is not
// an error.
func (r *DropPendingReaper) DropCollectionsOlderThan(opTime clock.OpTime) error {
	for {
		ns, ok := r.popDue(clock.Timestamp(opTime.Ts))
		if !ok {
			return nil
		}
		opCtx := r.store.NewOperationContext()
		opCtx.SetTerm(opTime.Term)
		if _, err := r.store.DropCollection(opCtx, ns); err != nil {
			if db.IsNotFound(err) {
				log.Infof("pending namespace %s was already gone", ns)
				continue
			}
			return err
		}
		log.Infof("removed drop-pending namespace %s", ns)
	}
}

// popDue removes and returns the next pending namespace due at or before
// ts.
func (r *DropPendingReaper) popDue(ts clock.Timestamp) (catalog.Namespace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.pending.Peek()
	if !ok || clock.Timestamp(item.Priority) > ts {
		return catalog.Namespace{}, false
	}
	r.pending.PopItem()
	return catalog.ParseNamespace(item.Key), true
}
