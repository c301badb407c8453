package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/db/util"
)

// --------------------------------------------------------------------------
// Entry Type
// --------------------------------------------------------------------------

// Entry is a point-in-time snapshot of one catalog entry as returned by the
// lookup methods. The zero DropTs together with HasDrop=false means the
// entry has not been dropped.
type Entry struct {
	Ns       Namespace       // Current name of the namespace
	Ident    string          // Storage object name, stable across renames
	UUID     uuid.UUID       // Collection UUID, stable across renames
	CreateTs clock.Timestamp // Creation timestamp (null for unreplicated namespaces)
	DropTs   clock.Timestamp // Drop timestamp, valid when HasDrop is set
	HasDrop  bool            // Whether the entry carries a drop timestamp
	Dropped  bool            // Whether the entry was removed from every timestamp
}

// nameVersion records one name the entry carried, from ts onwards.
type nameVersion struct {
	ns Namespace
	ts clock.Timestamp
}

// entry is the internal mutable form. All access goes through the catalog
// lock.
type entry struct {
	ident    string
	uuid     uuid.UUID
	createTs clock.Timestamp
	dropTs   clock.Timestamp
	hasDrop  bool
	dropped  bool
	names    []nameVersion // Ascending by ts; the last one is the current name
}

func (e *entry) currentName() Namespace {
	return e.names[len(e.names)-1].ns
}

// retired reports whether the entry no longer answers to its name. Retired
// entries stay in the name index so a racing re-drop can resolve them, but
// lookups skip them and their name can be reused.
func (e *entry) retired() bool {
	return e.dropped || e.hasDrop
}

// nameAt returns the name the entry carried at the given timestamp.
func (e *entry) nameAt(at clock.Timestamp) Namespace {
	name := e.names[0].ns
	for _, nv := range e.names {
		if nv.ts <= at {
			name = nv.ns
		}
	}
	return name
}

// visibleAt implements the catalog visibility rule: an entry exists at T
// once created and strictly before its drop timestamp. Unreplicated entries
// are created at the null timestamp and therefore visible everywhere, until
// their drop removes them from every timestamp.
func (e *entry) visibleAt(at clock.Timestamp) bool {
	if e.dropped {
		return false
	}
	if at.IsNull() {
		at = clock.TimestampMax
	}
	if e.createTs > at {
		return false
	}
	return !e.hasDrop || at < e.dropTs
}

func (e *entry) snapshot() *Entry {
	return &Entry{
		Ns:       e.currentName(),
		Ident:    e.ident,
		UUID:     e.uuid,
		CreateTs: e.createTs,
		DropTs:   e.dropTs,
		HasDrop:  e.hasDrop,
		Dropped:  e.dropped,
	}
}

// --------------------------------------------------------------------------
// Catalog Type
// --------------------------------------------------------------------------

// Catalog maps namespaces to storage object names (idents) with full
// timestamp history: every create, rename and drop is recorded with its
// commit timestamp, so the namespace layout can be reconstructed at any
// point in time.
//
// Thread-safety: all methods are safe for concurrent use. A single RWMutex
// guards the entry list and both indexes; the cross-index invariant (a live
// name appears in exactly one entry) cannot be kept with finer locking.
type Catalog struct {
	mu      sync.RWMutex
	seed    uint64
	counter uint64
	entries []*entry          // Full history, including dropped entries
	byName  map[string]*entry // Current name -> entry, retired entries linger until the name is reused
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		seed:   util.GenerateSeed() % 100000,
		byName: make(map[string]*entry),
	}
}

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

// Create registers a namespace at the given timestamp and returns its new
// entry. The ident is generated and unique for the lifetime of the catalog.
// Unreplicated namespaces are created at the null timestamp regardless of
// ts and are therefore visible at every snapshot.
//
// Fails with NamespaceExists if the name is currently taken.
func (c *Catalog) Create(ns Namespace, id uuid.UUID, ts clock.Timestamp) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createLocked(ns, id, ts, nil)
}

func (c *Catalog) createLocked(ns Namespace, id uuid.UUID, ts clock.Timestamp, undo *stagedLog) (*Entry, error) {
	if existing, ok := c.byName[ns.String()]; ok && !existing.retired() {
		return nil, db.Errorf(db.CodeNamespaceExists, "namespace %s already exists", ns)
	}

	if !ns.IsReplicated() {
		ts = clock.TimestampNull
	}

	// the counter is not rolled back; idents stay unique either way
	c.counter++
	e := &entry{
		ident:    fmt.Sprintf("collection-%d-%d", c.counter, c.seed),
		uuid:     id,
		createTs: ts,
		names:    []nameVersion{{ns: ns, ts: ts}},
	}
	undo.touchName(c, ns.String())
	c.entries = append(c.entries, e)
	c.byName[ns.String()] = e

	return e.snapshot(), nil
}

// Rename changes the current name of a namespace at the given timestamp.
// The ident, UUID and creation timestamp are unchanged; reads at earlier
// timestamps keep seeing the old name.
//
// Fails with NotFound if the source does not exist and NamespaceExists if
// the target name is taken.
func (c *Catalog) Rename(from, to Namespace, ts clock.Timestamp) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renameLocked(from, to, ts, nil)
}

func (c *Catalog) renameLocked(from, to Namespace, ts clock.Timestamp, undo *stagedLog) error {
	e, ok := c.byName[from.String()]
	if !ok || e.retired() {
		return db.Errorf(db.CodeNotFound, "namespace %s not found", from)
	}
	if existing, ok := c.byName[to.String()]; ok && !existing.retired() {
		return db.Errorf(db.CodeNamespaceExists, "namespace %s already exists", to)
	}

	undo.touchEntry(e)
	undo.touchName(c, from.String())
	undo.touchName(c, to.String())
	e.names = append(e.names, nameVersion{ns: to, ts: ts})
	delete(c.byName, from.String())
	c.byName[to.String()] = e

	return nil
}

// Drop marks a namespace dropped at the given timestamp and returns the
// affected entry. The entry stays visible strictly below the drop
// timestamp. Whether the drop erases history follows the entry, not its
// current name: entries created at the null timestamp are unreplicated and
// vanish from every timestamp, while an entry carrying a drop-pending name
// was created replicated and keeps its pre-drop history.
//
// Drops are idempotent: re-dropping at a timestamp at or after the recorded
// drop point is a success no-op. A strictly earlier re-drop fails with
// AlreadyDropped, and an unknown namespace with NotFound. The dropped entry
// stays resolvable under its name until the name is reused.
func (c *Catalog) Drop(ns Namespace, ts clock.Timestamp) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked(ns, ts, nil)
}

func (c *Catalog) dropLocked(ns Namespace, ts clock.Timestamp, undo *stagedLog) (*Entry, error) {
	e, ok := c.byName[ns.String()]
	if !ok {
		return nil, db.Errorf(db.CodeNotFound, "namespace %s not found", ns)
	}

	if e.dropped {
		return e.snapshot(), nil
	}
	if e.hasDrop {
		if ts >= e.dropTs {
			return e.snapshot(), nil
		}
		return nil, db.Errorf(db.CodeAlreadyDropped,
			"namespace %s already dropped at %s", ns, e.dropTs)
	}

	undo.touchEntry(e)
	if e.createTs.IsNull() {
		e.dropped = true
	} else {
		e.dropTs = ts
		e.hasDrop = true
	}

	return e.snapshot(), nil
}

// --------------------------------------------------------------------------
// Staged Application
// --------------------------------------------------------------------------

// OpKind enumerates the staged catalog mutations.
type OpKind int

const (
	OpCreate OpKind = iota
	OpRename
	OpDrop
)

// Op is one staged catalog mutation, applied through RunStaged.
type Op struct {
	Kind OpKind
	NS   Namespace
	To   Namespace // Rename target
	UUID uuid.UUID // Create only
}

// stagedLog captures prior catalog state so a staged application can roll
// back. A nil log records nothing.
type stagedLog struct {
	entriesLen int
	names      map[string]*entry // Prior byName bindings, nil marks an absent name
	snapshots  map[*entry]entry  // Prior field values of touched entries
}

func newStagedLog(c *Catalog) *stagedLog {
	return &stagedLog{
		entriesLen: len(c.entries),
		names:      make(map[string]*entry),
		snapshots:  make(map[*entry]entry),
	}
}

// touchName records the current binding of a name before it changes.
func (l *stagedLog) touchName(c *Catalog, name string) {
	if l == nil {
		return
	}
	if _, ok := l.names[name]; !ok {
		l.names[name] = c.byName[name]
	}
}

// touchEntry records the current field values of an entry before it
// changes.
func (l *stagedLog) touchEntry(e *entry) {
	if l == nil {
		return
	}
	if _, ok := l.snapshots[e]; !ok {
		l.snapshots[e] = *e
	}
}

// rollback restores the state captured by the log.
func (c *Catalog) rollback(undo *stagedLog) {
	c.entries = c.entries[:undo.entriesLen]
	for name, prior := range undo.names {
		if prior == nil {
			delete(c.byName, name)
		} else {
			c.byName[name] = prior
		}
	}
	for e, prior := range undo.snapshots {
		*e = prior
	}
}

// RunStaged applies a sequence of catalog mutations and the caller's
// publish step as one atomic unit. The ops apply in order, then publish
// runs while the catalog lock is still held; any failure rolls every
// applied op back, so readers never observe a partial application.
func (c *Catalog) RunStaged(ops []Op, ts clock.Timestamp, publish func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	undo := newStagedLog(c)
	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpCreate:
			_, err = c.createLocked(op.NS, op.UUID, ts, undo)
		case OpRename:
			err = c.renameLocked(op.NS, op.To, ts, undo)
		case OpDrop:
			_, err = c.dropLocked(op.NS, ts, undo)
		}
		if err != nil {
			c.rollback(undo)
			return err
		}
	}
	if publish != nil {
		if err := publish(); err != nil {
			c.rollback(undo)
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Lookups
// --------------------------------------------------------------------------

// Lookup returns the entry currently carrying the given name.
func (c *Catalog) Lookup(ns Namespace) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.byName[ns.String()]
	if !ok || e.retired() {
		return nil, db.Errorf(db.CodeNotFound, "namespace %s not found", ns)
	}
	return e.snapshot(), nil
}

// LookupByUUID returns the live entry with the given collection UUID.
func (c *Catalog) LookupByUUID(id uuid.UUID) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if e.uuid == id && !e.dropped && !e.hasDrop {
			return e.snapshot(), nil
		}
	}
	return nil, db.Errorf(db.CodeNotFound, "no namespace with uuid %s", id)
}

// IdentFor returns the storage object name currently backing a namespace.
func (c *Catalog) IdentFor(ns Namespace) (string, error) {
	e, err := c.Lookup(ns)
	if err != nil {
		return "", err
	}
	return e.Ident, nil
}

// IdentsVisibleAt returns the idents of every entry that exists at the
// given timestamp, sorted.
func (c *Catalog) IdentsVisibleAt(at clock.Timestamp) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var idents []string
	for _, e := range c.entries {
		if e.visibleAt(at) {
			idents = append(idents, e.ident)
		}
	}
	sort.Strings(idents)
	return idents
}

// ListIdents returns the namespace names that exist at the given timestamp,
// sorted, each under the name it carried at that time.
func (c *Catalog) ListIdents(at clock.Timestamp) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resolved := at
	if resolved.IsNull() {
		resolved = clock.TimestampMax
	}

	var names []string
	for _, e := range c.entries {
		if e.visibleAt(at) {
			names = append(names, e.nameAt(resolved).String())
		}
	}
	sort.Strings(names)
	return names
}
