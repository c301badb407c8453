package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
)

// EngineFactory is a function that creates a new instance of a RecordEngine implementation
type EngineFactory func() db.RecordEngine

// RunRecordEngineTests runs a comprehensive test suite for a RecordEngine implementation.
func RunRecordEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("ApplyBatch&Get", func(t *testing.T) {
			testApplyBatchGet(t, factory())
		})

		t.Run("SnapshotVisibility", func(t *testing.T) {
			testSnapshotVisibility(t, factory())
		})

		t.Run("UntimestampedWrites", func(t *testing.T) {
			testUntimestampedWrites(t, factory())
		})

		t.Run("Tombstones", func(t *testing.T) {
			testTombstones(t, factory())
		})

		t.Run("BatchAtomicity", func(t *testing.T) {
			testBatchAtomicity(t, factory())
		})

		t.Run("ConflictDetection", func(t *testing.T) {
			testConflictDetection(t, factory())
		})

		t.Run("Cursor", func(t *testing.T) {
			testCursor(t, factory())
		})

		t.Run("DropIdent", func(t *testing.T) {
			testDropIdent(t, factory())
		})

		t.Run("HistoryTruncation", func(t *testing.T) {
			testHistoryTruncation(t, factory())
		})

		t.Run("ConcurrentReaders", func(t *testing.T) {
			testConcurrentReaders(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the engine supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, engine db.RecordEngine, feature db.Feature) {
	if !engine.SupportsFeature(feature) {
		t.Skip()
	}
}

// insert publishes a single timestamped write and fails the test on error
func insert(t testing.TB, engine db.RecordEngine, ident, key, value string, ts clock.Timestamp) {
	t.Helper()
	err := engine.ApplyBatch([]db.Write{{
		Ident: ident,
		Key:   key,
		Value: []byte(value),
		Ts:    ts,
		Base:  engine.LatestVersion(ident, key),
	}})
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testApplyBatchGet(t *testing.T, engine db.RecordEngine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureApplyBatch)
	requireFeature(t, engine, db.FeatureSnapshotReads)

	insert(t, engine, "ident-1", "key-1", "value-1", 10)

	result, exists := engine.Get("ident-1", "key-1", 10)
	if !exists {
		t.Errorf("Expected key-1 to exist at its commit timestamp")
	}
	if !bytes.Equal(result, []byte("value-1")) {
		t.Errorf("Expected value-1, got %s", result)
	}

	_, exists = engine.Get("ident-1", "nonexistent-key", 10)
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	_, exists = engine.Get("nonexistent-ident", "key-1", 10)
	if exists {
		t.Errorf("Expected nonexistent ident to return exists=false")
	}

	retrievedValue, _ := engine.Get("ident-1", "key-1", 10)
	retrievedValue[0] = 'X'

	originalValue, _ := engine.Get("ident-1", "key-1", 10)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testSnapshotVisibility(t *testing.T, engine db.RecordEngine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureApplyBatch)
	requireFeature(t, engine, db.FeatureSnapshotReads)

	insert(t, engine, "ident-1", "key-1", "v10", 10)
	insert(t, engine, "ident-1", "key-1", "v20", 20)
	insert(t, engine, "ident-1", "key-1", "v30", 30)

	// before the first version
	_, exists := engine.Get("ident-1", "key-1", 5)
	if exists {
		t.Errorf("Key should not be visible before its first commit timestamp")
	}

	// at and between versions
	for _, tc := range []struct {
		at   clock.Timestamp
		want string
	}{
		{10, "v10"}, {15, "v10"}, {20, "v20"}, {29, "v20"}, {30, "v30"}, {100, "v30"},
	} {
		result, exists := engine.Get("ident-1", "key-1", tc.at)
		if !exists {
			t.Errorf("Key should be visible at timestamp %d", tc.at)
			continue
		}
		if string(result) != tc.want {
			t.Errorf("At timestamp %d expected %s, got %s", tc.at, tc.want, result)
		}
	}

	// null timestamp reads the latest version
	result, exists := engine.Get("ident-1", "key-1", clock.TimestampNull)
	if !exists || string(result) != "v30" {
		t.Errorf("Null-timestamp read should see the latest version, got %s (exists=%v)", result, exists)
	}
}

func testUntimestampedWrites(t *testing.T, engine db.RecordEngine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureApplyBatch)
	requireFeature(t, engine, db.FeatureSnapshotReads)

	insert(t, engine, "ident-1", "key-1", "untimestamped", clock.TimestampNull)

	// visible at every snapshot, even "before" any timestamp
	for _, at := range []clock.Timestamp{1, 50, clock.TimestampNull} {
		result, exists := engine.Get("ident-1", "key-1", at)
		if !exists {
			t.Errorf("Untimestamped write should be visible at timestamp %d", at)
			continue
		}
		if string(result) != "untimestamped" {
			t.Errorf("At timestamp %d expected untimestamped, got %s", at, result)
		}
	}

	// a later timestamped version supersedes it at and after its timestamp
	insert(t, engine, "ident-1", "key-1", "timestamped", 20)

	result, _ := engine.Get("ident-1", "key-1", 10)
	if string(result) != "untimestamped" {
		t.Errorf("Expected untimestamped version below timestamp 20, got %s", result)
	}
	result, _ = engine.Get("ident-1", "key-1", 20)
	if string(result) != "timestamped" {
		t.Errorf("Expected timestamped version at timestamp 20, got %s", result)
	}
}

func testTombstones(t *testing.T, engine db.RecordEngine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureApplyBatch)
	requireFeature(t, engine, db.FeatureSnapshotReads)

	insert(t, engine, "ident-1", "key-1", "value-1", 10)

	err := engine.ApplyBatch([]db.Write{{
		Ident:     "ident-1",
		Key:       "key-1",
		Ts:        20,
		Tombstone: true,
		Base:      engine.LatestVersion("ident-1", "key-1"),
	}})
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if _, exists := engine.Get("ident-1", "key-1", 15); !exists {
		t.Errorf("Key should still be visible before the tombstone")
	}
	if _, exists := engine.Get("ident-1", "key-1", 20); exists {
		t.Errorf("Key should not be visible at the tombstone timestamp")
	}
	if _, exists := engine.Get("ident-1", "key-1", clock.TimestampNull); exists {
		t.Errorf("Key should not be visible at the latest snapshot after deletion")
	}

	// reinsert after deletion
	insert(t, engine, "ident-1", "key-1", "value-2", 30)
	result, exists := engine.Get("ident-1", "key-1", 30)
	if !exists || string(result) != "value-2" {
		t.Errorf("Reinserted key should be visible after the tombstone, got %s (exists=%v)", result, exists)
	}
}

func testBatchAtomicity(t *testing.T, engine db.RecordEngine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureApplyBatch)

	// a batch spanning several idents publishes completely
	err := engine.ApplyBatch([]db.Write{
		{Ident: "ident-1", Key: "a", Value: []byte("1"), Ts: 10},
		{Ident: "ident-2", Key: "b", Value: []byte("2"), Ts: 10},
		{Ident: "ident-3", Key: "c", Value: []byte("3"), Ts: 10},
	})
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	for _, tc := range []struct{ ident, key string }{
		{"ident-1", "a"}, {"ident-2", "b"}, {"ident-3", "c"},
	} {
		if _, exists := engine.Get(tc.ident, tc.key, 10); !exists {
			t.Errorf("Expected %s/%s to be published", tc.ident, tc.key)
		}
	}

	// a batch with one stale write publishes nothing
	err = engine.ApplyBatch([]db.Write{
		{Ident: "ident-1", Key: "d", Value: []byte("4"), Ts: 20},
		{Ident: "ident-2", Key: "b", Value: []byte("5"), Ts: 20, Base: 0}, // stale: b already has a version
	})
	if !db.IsConflict(err) {
		t.Fatalf("Expected Conflict error, got %v", err)
	}
	if _, exists := engine.Get("ident-1", "d", 20); exists {
		t.Errorf("No write of a failed batch may be published")
	}
	result, _ := engine.Get("ident-2", "b", 20)
	if string(result) != "2" {
		t.Errorf("Failed batch must not overwrite existing versions, got %s", result)
	}
}

func testConflictDetection(t *testing.T, engine db.RecordEngine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureApplyBatch)

	insert(t, engine, "ident-1", "key-1", "value-1", 10)
	base := engine.LatestVersion("ident-1", "key-1")
	if base == 0 {
		t.Fatalf("Expected non-zero version sequence after insert")
	}

	// a write based on the current version succeeds
	err := engine.ApplyBatch([]db.Write{{
		Ident: "ident-1", Key: "key-1", Value: []byte("value-2"), Ts: 20, Base: base,
	}})
	if err != nil {
		t.Fatalf("ApplyBatch with current base failed: %v", err)
	}

	// a second write based on the same (now stale) version conflicts
	err = engine.ApplyBatch([]db.Write{{
		Ident: "ident-1", Key: "key-1", Value: []byte("value-3"), Ts: 30, Base: base,
	}})
	if !db.IsConflict(err) {
		t.Fatalf("Expected Conflict error for stale base, got %v", err)
	}
}

func testCursor(t *testing.T, engine db.RecordEngine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureApplyBatch)
	requireFeature(t, engine, db.FeatureSnapshotReads)

	// cursor over an unknown ident is empty
	if _, ok := engine.Cursor("nonexistent-ident", 10).Next(); ok {
		t.Errorf("Cursor over unknown ident should be empty")
	}

	for i, key := range []string{"c", "a", "b"} {
		insert(t, engine, "ident-1", key, fmt.Sprintf("value-%s", key), clock.Timestamp(10*(i+1)))
	}
	insert(t, engine, "ident-1", "a", "value-a2", 40)

	// records come back in insertion order, not key order, at their
	// snapshot-visible versions
	cursor := engine.Cursor("ident-1", 40)
	var keys, values []string
	for {
		r, ok := cursor.Next()
		if !ok {
			break
		}
		keys = append(keys, r.Key)
		values = append(values, string(r.Value))
	}
	wantKeys := []string{"c", "a", "b"}
	wantValues := []string{"value-c", "value-a2", "value-b"}
	for i := range wantKeys {
		if i >= len(keys) || keys[i] != wantKeys[i] {
			t.Fatalf("Expected keys %v in insertion order, got %v", wantKeys, keys)
		}
		if values[i] != wantValues[i] {
			t.Errorf("Expected value %s for key %s, got %s", wantValues[i], keys[i], values[i])
		}
	}

	// an earlier snapshot sees fewer records
	cursor = engine.Cursor("ident-1", 15)
	count := 0
	for {
		if _, ok := cursor.Next(); !ok {
			break
		}
		count++
	}
	if count != 1 {
		t.Errorf("Expected 1 record visible at timestamp 15, got %d", count)
	}
}

func testDropIdent(t *testing.T, engine db.RecordEngine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureApplyBatch)
	requireFeature(t, engine, db.FeatureDropIdent)

	insert(t, engine, "ident-1", "key-1", "value-1", 10)
	insert(t, engine, "ident-2", "key-2", "value-2", 10)

	engine.DropIdent("ident-1")

	if _, exists := engine.Get("ident-1", "key-1", 10); exists {
		t.Errorf("Dropped ident should not return records")
	}
	if engine.LatestVersion("ident-1", "key-1") != 0 {
		t.Errorf("Dropped ident should report version sequence 0")
	}
	if _, exists := engine.Get("ident-2", "key-2", 10); !exists {
		t.Errorf("Dropping one ident must not affect another")
	}

	// dropping an unknown ident is a no-op
	engine.DropIdent("nonexistent-ident")
}

func testHistoryTruncation(t *testing.T, engine db.RecordEngine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureApplyBatch)
	requireFeature(t, engine, db.FeatureOldestTimestamp)

	insert(t, engine, "ident-1", "key-1", "v10", 10)
	insert(t, engine, "ident-1", "key-1", "v20", 20)
	insert(t, engine, "ident-1", "key-1", "v30", 30)

	engine.SetOldestTimestamp(20)
	if engine.OldestTimestamp() != 20 {
		t.Errorf("Expected oldest timestamp 20, got %d", engine.OldestTimestamp())
	}

	// reads at and above the floor still resolve
	result, exists := engine.Get("ident-1", "key-1", 20)
	if !exists || string(result) != "v20" {
		t.Errorf("Expected v20 at the floor, got %s (exists=%v)", result, exists)
	}
	result, exists = engine.Get("ident-1", "key-1", 25)
	if !exists || string(result) != "v20" {
		t.Errorf("Expected v20 above the floor, got %s (exists=%v)", result, exists)
	}

	// lowering the floor is ignored
	engine.SetOldestTimestamp(5)
	if engine.OldestTimestamp() != 20 {
		t.Errorf("Lowering the oldest timestamp should be ignored")
	}
}

func testConcurrentReaders(t *testing.T, engine db.RecordEngine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureApplyBatch)
	requireFeature(t, engine, db.FeatureSnapshotReads)

	const numKeys = 64
	for i := 0; i < numKeys; i++ {
		insert(t, engine, "ident-1", fmt.Sprintf("key-%d", i), "v1", 10)
		insert(t, engine, "ident-1", fmt.Sprintf("key-%d", i), "v2", 20)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(at clock.Timestamp, want string) {
			defer wg.Done()
			for i := 0; i < numKeys; i++ {
				result, exists := engine.Get("ident-1", fmt.Sprintf("key-%d", i), at)
				if !exists || string(result) != want {
					t.Errorf("At timestamp %d expected %s, got %s (exists=%v)", at, want, result, exists)
					return
				}
			}
		}(clock.Timestamp(10*(g%2+1)), fmt.Sprintf("v%d", g%2+1))
	}
	wg.Wait()
}
