package repl

import (
	"github.com/tkv-io/tKV/lib/catalog"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/storage"
	"github.com/tkv-io/tKV/lib/txn"
)

// MinValidNamespace holds the node's replication consistency marker.
var MinValidNamespace = catalog.NewNamespace("local", "replset.minvalid")

const minValidDocID = "minValid"

// --------------------------------------------------------------------------
// Consistency Markers
// --------------------------------------------------------------------------

// ConsistencyMarkers tracks how far a node's data is known consistent. The
// markers live in a singleton document in an unreplicated collection:
//
//	ts, t             the minimum valid point: data is consistent only once
//	                  the node has applied up to here
//	begin             the applied-through point: resume batch application
//	                  from here after a restart
//	doingInitialSync  set while an initial sync is in progress
//
// Marker updates that record an applied point are timestamped with that
// point, so reading the collection at a given timestamp shows the marker
// state as of that point in the oplog. State flags such as the initial sync
// flag are written untimestamped and are visible at every timestamp.
type ConsistencyMarkers struct {
	store *storage.Store
}

// NewConsistencyMarkers creates the markers interface for a store.
func NewConsistencyMarkers(store *storage.Store) *ConsistencyMarkers {
	return &ConsistencyMarkers{store: store}
}

// Initialize creates the marker collection and its singleton document.
// Reinitializing an existing marker fails with AlreadyInitialized.
func (m *ConsistencyMarkers) Initialize() error {
	opCtx := m.untimestampedCtx()
	if _, err := m.store.EnsureCollection(opCtx, MinValidNamespace); err != nil {
		return err
	}
	if _, err := m.read(); err == nil {
		return db.Errorf(db.CodeAlreadyInitialized, "consistency markers already initialized")
	} else if !db.IsNotFound(err) {
		return err
	}
	doc := db.Document{
		"_id": minValidDocID,
		"ts":  clock.TimestampNull,
		"t":   clock.UninitializedTerm,
	}
	_, err := m.store.InsertDocument(opCtx, MinValidNamespace, doc)
	return err
}

// SetInitialSyncFlag marks an initial sync as in progress. The write is
// untimestamped so the flag survives at every read point.
func (m *ConsistencyMarkers) SetInitialSyncFlag() error {
	doc, err := m.read()
	if err != nil {
		return err
	}
	doc["doingInitialSync"] = true
	return m.write(doc, clock.TimestampNull)
}

// GetInitialSyncFlag returns whether an initial sync is in progress.
func (m *ConsistencyMarkers) GetInitialSyncFlag() (bool, error) {
	doc, err := m.read()
	if err != nil {
		return false, err
	}
	flag, _ := doc["doingInitialSync"].(bool)
	return flag, nil
}

// ClearInitialSyncFlag completes an initial sync: the minimum valid and
// applied-through points both move to appliedThrough, and the whole update
// is timestamped at that point.
func (m *ConsistencyMarkers) ClearInitialSyncFlag(appliedThrough clock.OpTime) error {
	doc, err := m.read()
	if err != nil {
		return err
	}
	delete(doc, "doingInitialSync")
	doc["ts"] = appliedThrough.Ts
	doc["t"] = appliedThrough.Term
	doc["begin"] = opTimeDoc(appliedThrough)
	return m.write(doc, appliedThrough.Ts)
}

// GetMinValid returns the minimum valid point.
func (m *ConsistencyMarkers) GetMinValid() (clock.OpTime, error) {
	doc, err := m.read()
	if err != nil {
		return clock.OpTime{}, err
	}
	return clock.OpTime{
		Ts:   asTimestamp(doc["ts"]),
		Term: asTerm(doc["t"]),
	}, nil
}

// SetMinValid moves the minimum valid point, forward or backward. The write
// commits at a fresh clock tick so it supersedes every earlier marker
// update, including timestamped ones.
func (m *ConsistencyMarkers) SetMinValid(opTime clock.OpTime) error {
	doc, err := m.read()
	if err != nil {
		return err
	}
	doc["ts"] = opTime.Ts
	doc["t"] = opTime.Term
	return m.write(doc, m.store.Clock().ReserveTicks(1).AsTimestamp())
}

// SetMinValidToAtLeast moves the minimum valid point forward to opTime. If
// the current point is already at or past opTime the call is a no-op. The
// write is timestamped at the new point.
func (m *ConsistencyMarkers) SetMinValidToAtLeast(opTime clock.OpTime) error {
	doc, err := m.read()
	if err != nil {
		return err
	}
	current := clock.OpTime{Ts: asTimestamp(doc["ts"]), Term: asTerm(doc["t"])}
	if !opTime.After(current) {
		return nil
	}
	doc["ts"] = opTime.Ts
	doc["t"] = opTime.Term
	return m.write(doc, opTime.Ts)
}

// SetAppliedThrough records that the node has applied a complete batch up
// to opTime. The write is timestamped at that point.
func (m *ConsistencyMarkers) SetAppliedThrough(opTime clock.OpTime) error {
	doc, err := m.read()
	if err != nil {
		return err
	}
	doc["begin"] = opTimeDoc(opTime)
	return m.write(doc, opTime.Ts)
}

// ClearAppliedThrough removes the applied-through point, timestamped at
// writeTs.
func (m *ConsistencyMarkers) ClearAppliedThrough(writeTs clock.Timestamp) error {
	doc, err := m.read()
	if err != nil {
		return err
	}
	delete(doc, "begin")
	return m.write(doc, writeTs)
}

// GetAppliedThrough returns the applied-through point, or a null OpTime if
// none is set.
func (m *ConsistencyMarkers) GetAppliedThrough() (clock.OpTime, error) {
	doc, err := m.read()
	if err != nil {
		return clock.OpTime{}, err
	}
	begin, ok := doc["begin"].(map[string]any)
	if !ok {
		return clock.OpTime{}, nil
	}
	return clock.OpTime{
		Ts:   asTimestamp(begin["ts"]),
		Term: asTerm(begin["t"]),
	}, nil
}

// --------------------------------------------------------------------------
// Internals
// --------------------------------------------------------------------------

func (m *ConsistencyMarkers) untimestampedCtx() *txn.OperationContext {
	opCtx := m.store.NewOperationContext()
	opCtx.SetUnreplicatedWrites(true)
	return opCtx
}

// read fetches the current marker document.
func (m *ConsistencyMarkers) read() (db.Document, error) {
	return m.store.FindOne(m.store.NewOperationContext(), MinValidNamespace, minValidDocID)
}

// write stores the marker document, timestamped at ts when ts is not null.
func (m *ConsistencyMarkers) write(doc db.Document, ts clock.Timestamp) error {
	var opCtx *txn.OperationContext
	if ts.IsNull() {
		opCtx = m.untimestampedCtx()
	} else {
		opCtx = m.store.NewOperationContext()
		opCtx.SetCommitTimestamp(ts)
		// the marker records a point the node has learned of, so the
		// cluster clock must not lag behind it
		m.store.Clock().AdvanceClusterTime(ts, false)
	}
	_, err := m.store.UpsertDocument(opCtx, MinValidNamespace, doc)
	return err
}

func opTimeDoc(opTime clock.OpTime) db.Document {
	return db.Document{"ts": opTime.Ts, "t": opTime.Term}
}

// asTimestamp coerces a decoded numeric field back to a timestamp.
func asTimestamp(v any) clock.Timestamp {
	switch n := v.(type) {
	case clock.Timestamp:
		return n
	case float64:
		return clock.Timestamp(n)
	case uint64:
		return clock.Timestamp(n)
	case int:
		return clock.Timestamp(n)
	default:
		return clock.TimestampNull
	}
}

// asTerm coerces a decoded numeric field back to a term.
func asTerm(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return clock.UninitializedTerm
	}
}
