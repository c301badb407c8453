package repl

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
)

// --------------------------------------------------------------------------
// OplogEntry Type
// --------------------------------------------------------------------------

// Operation type codes on the wire.
const (
	OpInsert  = "i"
	OpUpdate  = "u"
	OpDelete  = "d"
	OpCommand = "c"
	OpNoop    = "n"
)

// OplogEntry is one replicated operation. The field names follow the wire
// format of the operation log.
type OplogEntry struct {
	Ts clock.Timestamp `json:"ts,omitempty"` // Commit timestamp of the operation
	T  int64           `json:"t,omitempty"`  // Election term
	H  int64           `json:"h,omitempty"`  // Entry hash (carried, not interpreted)
	V  int             `json:"v,omitempty"`  // Protocol version
	Op string          `json:"op"`           // Operation type code
	NS string          `json:"ns"`           // Target namespace
	UI *uuid.UUID      `json:"ui,omitempty"` // Collection UUID, if addressed by UUID
	O  db.Document     `json:"o,omitempty"`  // Operation payload
	O2 db.Document     `json:"o2,omitempty"` // Update query (the "_id" of the target)
}

// OpTime returns the position of the entry in the operation log.
func (e OplogEntry) OpTime() clock.OpTime {
	return clock.OpTime{Ts: e.Ts, Term: e.T}
}

// IsCommand returns whether the entry is a command operation.
func (e OplogEntry) IsCommand() bool {
	return e.Op == OpCommand
}

// IsNoopCommand returns whether the entry is the empty applyOps command,
// which applies as a no-op but still counts as applied.
func (e OplogEntry) IsNoopCommand() bool {
	if !e.IsCommand() {
		return false
	}
	nested, ok := e.O["applyOps"]
	if !ok {
		return false
	}
	arr, ok := nested.([]any)
	return ok && len(arr) == 0
}

// CommandName returns the name of a command operation: the first (and by
// convention only) key of the payload.
func (e OplogEntry) CommandName() string {
	for _, name := range []string{"create", "drop", "renameCollection", "applyOps", "dropDatabase"} {
		if _, ok := e.O[name]; ok {
			return name
		}
	}
	return ""
}

// --------------------------------------------------------------------------
// Wire Parsing
// --------------------------------------------------------------------------

// groupedEntry is the wire shape with possibly array-valued ts/t/o fields.
// A grouped entry batches several operations of the same type and target
// into one entry; it expands into one sub-operation per array position.
type groupedEntry struct {
	Ts json.RawMessage `json:"ts"`
	T  json.RawMessage `json:"t"`
	H  int64           `json:"h"`
	V  int             `json:"v"`
	Op string          `json:"op"`
	NS string          `json:"ns"`
	UI *uuid.UUID      `json:"ui"`
	O  json.RawMessage `json:"o"`
	O2 db.Document     `json:"o2"`
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// ParseOplogEntries decodes a JSON array of oplog entries, expanding
// grouped entries (array-valued ts/t/o) into their sub-operations in array
// order.
func ParseOplogEntries(data []byte) ([]OplogEntry, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, db.Errorf(db.CodeInternal, "parse oplog entries: %v", err)
	}

	var entries []OplogEntry
	for _, r := range raw {
		expanded, err := parseOplogEntry(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, expanded...)
	}
	return entries, nil
}

func parseOplogEntry(data []byte) ([]OplogEntry, error) {
	var g groupedEntry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, db.Errorf(db.CodeInternal, "parse oplog entry: %v", err)
	}

	if !isJSONArray(g.O) {
		var e OplogEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, db.Errorf(db.CodeInternal, "parse oplog entry: %v", err)
		}
		return []OplogEntry{e}, nil
	}

	// grouped: ts, t and o expand position by position
	var (
		timestamps []clock.Timestamp
		terms      []int64
		payloads   []db.Document
	)
	if err := json.Unmarshal(g.O, &payloads); err != nil {
		return nil, db.Errorf(db.CodeInternal, "parse grouped oplog payloads: %v", err)
	}
	if g.Ts != nil {
		if err := json.Unmarshal(g.Ts, &timestamps); err != nil {
			return nil, db.Errorf(db.CodeInternal, "parse grouped oplog timestamps: %v", err)
		}
	}
	if g.T != nil {
		if err := json.Unmarshal(g.T, &terms); err != nil {
			return nil, db.Errorf(db.CodeInternal, "parse grouped oplog terms: %v", err)
		}
	}
	if len(timestamps) > 0 && len(timestamps) != len(payloads) {
		return nil, db.Errorf(db.CodeInternal,
			"grouped oplog entry has %d timestamps for %d payloads", len(timestamps), len(payloads))
	}
	if len(terms) > 0 && len(terms) != len(payloads) {
		return nil, db.Errorf(db.CodeInternal,
			"grouped oplog entry has %d terms for %d payloads", len(terms), len(payloads))
	}

	entries := make([]OplogEntry, 0, len(payloads))
	for i, payload := range payloads {
		e := OplogEntry{H: g.H, V: g.V, Op: g.Op, NS: g.NS, UI: g.UI, O: payload, O2: g.O2}
		if len(timestamps) > 0 {
			e.Ts = timestamps[i]
		}
		if len(terms) > 0 {
			e.T = terms[i]
		}
		entries = append(entries, e)
	}
	return entries, nil
}
