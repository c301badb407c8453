package db

import (
	"bytes"
	"encoding/json"
	"strings"
)

// --------------------------------------------------------------------------
// Document Type
// --------------------------------------------------------------------------

// Document is the abstract document payload of an operation. Field order is
// not significant; documents compare by their canonical encoding.
type Document map[string]any

// ID returns the document's "_id" value.
func (d Document) ID() (any, bool) {
	id, ok := d["_id"]
	return id, ok
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// --------------------------------------------------------------------------
// Canonical Encoding
// --------------------------------------------------------------------------

// EncodeDocument renders a document in its canonical form: JSON with
// lexicographically sorted keys. Two documents are equal iff their canonical
// encodings are byte-equal.
func EncodeDocument(d Document) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, Errorf(CodeInternal, "encode document: %v", err)
	}
	return b, nil
}

// DecodeDocument parses a canonical encoding back into a Document.
func DecodeDocument(b []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, Errorf(CodeInternal, "decode document: %v", err)
	}
	return d, nil
}

// EqualDocuments compares two documents by canonical encoding.
func EqualDocuments(a, b Document) bool {
	ab, err := EncodeDocument(a)
	if err != nil {
		return false
	}
	bb, err := EncodeDocument(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// RecordKey derives the record id under which a document value is stored.
// The key is the canonical encoding of the value, so 0 and 0.0 resolve to
// the same record.
func RecordKey(id any) (string, error) {
	b, err := json.Marshal(id)
	if err != nil {
		return "", Errorf(CodeInternal, "encode record key: %v", err)
	}
	return string(b), nil
}

// --------------------------------------------------------------------------
// Update Application
// --------------------------------------------------------------------------

// ApplyUpdate transforms a document by an update description. Updates whose
// top-level keys are operators ($set, $unset) are applied field-wise with
// dotted-path support; any other update replaces the whole document while
// preserving "_id".
func ApplyUpdate(current, update Document) (Document, error) {
	if !hasOperators(update) {
		out := update.Clone()
		if _, ok := out["_id"]; !ok {
			if id, ok := current.ID(); ok {
				out["_id"] = id
			}
		}
		return out, nil
	}

	out := deepClone(current)
	for op, arg := range update {
		fields, ok := arg.(map[string]any)
		if !ok {
			if doc, isDoc := arg.(Document); isDoc {
				fields = doc
			} else {
				return nil, Errorf(CodeInternal, "update operator %s: expected document argument", op)
			}
		}
		switch op {
		case "$set":
			for path, v := range fields {
				setPath(out, path, v)
			}
		case "$unset":
			for path := range fields {
				unsetPath(out, path)
			}
		default:
			return nil, Errorf(CodeInternal, "unsupported update operator %s", op)
		}
	}
	return out, nil
}

func hasOperators(update Document) bool {
	for k := range update {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func deepClone(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		if m, ok := v.(map[string]any); ok {
			out[k] = map[string]any(deepClone(m))
			continue
		}
		out[k] = v
	}
	return out
}

func setPath(d Document, path string, v any) {
	parts := strings.Split(path, ".")
	cur := map[string]any(d)
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func unsetPath(d Document, path string) {
	parts := strings.Split(path, ".")
	cur := map[string]any(d)
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}
