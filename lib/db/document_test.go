package db

import (
	"testing"
)

func TestEncodeDocumentCanonical(t *testing.T) {
	a := Document{"b": 2, "a": 1, "_id": 0}
	b := Document{"_id": 0, "a": 1, "b": 2}

	ab, err := EncodeDocument(a)
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}
	bb, err := EncodeDocument(b)
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}

	if string(ab) != string(bb) {
		t.Errorf("Field order must not change the encoding: %s vs %s", ab, bb)
	}
	if want := `{"_id":0,"a":1,"b":2}`; string(ab) != want {
		t.Errorf("Expected %s, got %s", want, ab)
	}
}

func TestEqualDocumentsAcrossDecodeRoundTrip(t *testing.T) {
	// ints become float64 when decoded; canonical comparison must not care
	doc := Document{"_id": 0, "count": 5}

	encoded, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}
	decoded, err := DecodeDocument(encoded)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}

	if !EqualDocuments(doc, decoded) {
		t.Errorf("Document should equal its decoded form")
	}
	if EqualDocuments(doc, Document{"_id": 0, "count": 6}) {
		t.Errorf("Distinct documents must not compare equal")
	}
}

func TestRecordKey(t *testing.T) {
	intKey, err := RecordKey(0)
	if err != nil {
		t.Fatalf("RecordKey failed: %v", err)
	}
	floatKey, err := RecordKey(float64(0))
	if err != nil {
		t.Fatalf("RecordKey failed: %v", err)
	}
	if intKey != floatKey {
		t.Errorf("0 and 0.0 must resolve to the same record key: %s vs %s", intKey, floatKey)
	}

	strKey, err := RecordKey("0")
	if err != nil {
		t.Fatalf("RecordKey failed: %v", err)
	}
	if strKey == intKey {
		t.Errorf(`"0" and 0 must resolve to distinct record keys`)
	}
}

func TestApplyUpdateReplace(t *testing.T) {
	current := Document{"_id": 1, "field": "old", "extra": true}

	// a replacement without operators drops unmentioned fields but keeps _id
	updated, err := ApplyUpdate(current, Document{"field": "new"})
	if err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	if !EqualDocuments(updated, Document{"_id": 1, "field": "new"}) {
		t.Errorf("Unexpected replacement result: %v", updated)
	}

	// the original is untouched
	if current["field"] != "old" {
		t.Errorf("ApplyUpdate must not mutate the current document")
	}
}

func TestApplyUpdateSetUnset(t *testing.T) {
	current := Document{"_id": 1, "keep": "yes", "gone": "soon"}

	updated, err := ApplyUpdate(current, Document{
		"$set":   map[string]any{"added": 7, "nested.deep": "value"},
		"$unset": map[string]any{"gone": 1},
	})
	if err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}

	want := Document{
		"_id":    1,
		"keep":   "yes",
		"added":  7,
		"nested": map[string]any{"deep": "value"},
	}
	if !EqualDocuments(updated, want) {
		t.Errorf("Expected %v, got %v", want, updated)
	}

	// unknown operators are rejected
	if _, err := ApplyUpdate(current, Document{"$rename": map[string]any{"keep": "kept"}}); err == nil {
		t.Errorf("Expected error for unsupported update operator")
	}
}
