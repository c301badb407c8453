package catalog

import (
	"fmt"
	"strings"

	"github.com/tkv-io/tKV/lib/clock"
)

// --------------------------------------------------------------------------
// Namespace Type
// --------------------------------------------------------------------------

// Namespace names a collection as "<db>.<collection>". The collection part
// may itself contain dots.
type Namespace struct {
	db   string
	coll string
}

// NewNamespace builds a namespace from its database and collection parts.
func NewNamespace(db, coll string) Namespace {
	return Namespace{db: db, coll: coll}
}

// ParseNamespace splits a "<db>.<collection>" string at the first dot.
// A string without a dot is a database-only namespace.
func ParseNamespace(s string) Namespace {
	db, coll, found := strings.Cut(s, ".")
	if !found {
		return Namespace{db: s}
	}
	return Namespace{db: db, coll: coll}
}

// DB returns the database part of the namespace.
func (ns Namespace) DB() string { return ns.db }

// Collection returns the collection part of the namespace.
func (ns Namespace) Collection() string { return ns.coll }

func (ns Namespace) String() string {
	if ns.coll == "" {
		return ns.db
	}
	return ns.db + "." + ns.coll
}

// IsEmpty returns whether the namespace is the zero value.
func (ns Namespace) IsEmpty() bool {
	return ns.db == "" && ns.coll == ""
}

// IsReplicated returns whether writes to the namespace are replicated.
// Namespaces in the "local" database and "system." collections are local to
// the node: their catalog entries exist at every timestamp.
func (ns Namespace) IsReplicated() bool {
	return ns.db != "local" && !strings.HasPrefix(ns.coll, "system.")
}

// --------------------------------------------------------------------------
// Drop-Pending Names
// --------------------------------------------------------------------------

const dropPendingPrefix = "system.drop."

// IsDropPending returns whether the namespace carries a two-phase-drop name.
func (ns Namespace) IsDropPending() bool {
	return strings.HasPrefix(ns.coll, dropPendingPrefix)
}

// MakeDropPending derives the two-phase-drop name of the namespace for the
// given drop point: "<db>.system.drop.<ts>t<term>.<collection>".
func (ns Namespace) MakeDropPending(dropOpTime clock.OpTime) Namespace {
	return Namespace{
		db:   ns.db,
		coll: fmt.Sprintf("%s%dt%d.%s", dropPendingPrefix, uint64(dropOpTime.Ts), dropOpTime.Term, ns.coll),
	}
}

// DropPendingOpTime parses the drop point out of a two-phase-drop name.
func (ns Namespace) DropPendingOpTime() (clock.OpTime, bool) {
	if !ns.IsDropPending() {
		return clock.OpTime{}, false
	}
	rest := strings.TrimPrefix(ns.coll, dropPendingPrefix)
	point, _, found := strings.Cut(rest, ".")
	if !found {
		return clock.OpTime{}, false
	}
	var (
		ts   uint64
		term int64
	)
	if _, err := fmt.Sscanf(point, "%dt%d", &ts, &term); err != nil {
		return clock.OpTime{}, false
	}
	return clock.OpTime{Ts: clock.Timestamp(ts), Term: term}, true
}
