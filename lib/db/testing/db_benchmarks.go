package testing

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
)

// RunRecordEngineBenchmarks runs all benchmarks for a RecordEngine implementation
func RunRecordEngineBenchmarks(b *testing.B, name string, factory EngineFactory) {

	b.Run("ApplyBatch", func(b *testing.B) {
		benchmarkApplyBatch(b, factory())
	})

	b.Run("ApplyBatchExisting", func(b *testing.B) {
		benchmarkApplyBatchExisting(b, factory())
	})

	b.Run("ApplyBatchLargeValue", func(b *testing.B) {
		benchmarkApplyBatchLargeValue(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("GetSnapshot", func(b *testing.B) {
		benchmarkGetSnapshot(b, factory())
	})

	b.Run("Tombstone", func(b *testing.B) {
		benchmarkTombstone(b, factory())
	})

	b.Run("Cursor", func(b *testing.B) {
		benchmarkCursor(b, factory())
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// nextTs hands out strictly increasing commit timestamps across goroutines
type tsSource struct {
	counter atomic.Uint64
}

func (s *tsSource) next() clock.Timestamp {
	return clock.Timestamp(s.counter.Add(1))
}

// write publishes a single timestamped write and fails the benchmark on error
func write(b *testing.B, engine db.RecordEngine, ident, key string, value []byte, ts clock.Timestamp) {
	err := engine.ApplyBatch([]db.Write{{
		Ident: ident,
		Key:   key,
		Value: value,
		Ts:    ts,
		Base:  engine.LatestVersion(ident, key),
	}})
	if err != nil {
		b.Errorf("ApplyBatch failed: %v", err)
	}
}

// Benchmark for publishing fresh records
func benchmarkApplyBatch(b *testing.B, engine db.RecordEngine) {

	b.Cleanup(func() {
		engine.Close()
	})

	ts := &tsSource{}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d-%d", ts.counter.Load(), counter)
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			write(b, engine, "bench", key, value, ts.next())
			counter++
		}
	})
}

// Benchmark for publishing new versions of existing records
func benchmarkApplyBatchExisting(b *testing.B, engine db.RecordEngine) {

	b.Cleanup(func() {
		engine.Close()
	})

	ts := &tsSource{}

	// Prepare data
	numKeys := 1024
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		write(b, engine, "bench", key, []byte("test-value"), ts.next())
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			// Base must track the record's version chain, so conflicts are
			// retried once with a fresh Base
			if err := engine.ApplyBatch([]db.Write{{
				Ident: "bench",
				Key:   key,
				Value: value,
				Ts:    ts.next(),
				Base:  engine.LatestVersion("bench", key),
			}}); err != nil && db.IsConflict(err) {
				write(b, engine, "bench", key, value, ts.next())
			}
			counter++
		}
	})
}

// Benchmark for publishing large payloads
func benchmarkApplyBatchLargeValue(b *testing.B, engine db.RecordEngine) {

	b.Cleanup(func() {
		engine.Close()
	})

	ts := &tsSource{}
	largeValue := make([]byte, 100*1024)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d-%d", ts.counter.Load(), counter)
			write(b, engine, "bench", key, largeValue, ts.next())
			counter++
		}
	})
}

// Benchmark for latest reads
func benchmarkGet(b *testing.B, engine db.RecordEngine) {

	b.Cleanup(func() {
		engine.Close()
	})

	ts := &tsSource{}

	// Prepare data
	numKeys := 1024
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		write(b, engine, "bench", key, []byte("test-value"), ts.next())
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			if _, loaded := engine.Get("bench", key, clock.TimestampMax); !loaded {
				b.Errorf("Get did not find key %s", key)
			}
			counter++
		}
	})
}

// Benchmark for snapshot reads below the latest version
func benchmarkGetSnapshot(b *testing.B, engine db.RecordEngine) {

	b.Cleanup(func() {
		engine.Close()
	})

	ts := &tsSource{}

	// Prepare records with several versions each
	numKeys := 256
	numVersions := 8
	for v := 0; v < numVersions; v++ {
		for i := 0; i < numKeys; i++ {
			key := fmt.Sprintf("test-key-%d", i)
			value := []byte(fmt.Sprintf("test-value-%d", v))
			write(b, engine, "bench", key, value, ts.next())
		}
	}

	// Read in the middle of the history
	at := clock.Timestamp(numKeys * numVersions / 2)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			engine.Get("bench", key, at)
			counter++
		}
	})
}

// Benchmark for tombstone writes
func benchmarkTombstone(b *testing.B, engine db.RecordEngine) {

	b.Cleanup(func() {
		engine.Close()
	})

	ts := &tsSource{}

	// Prepare data
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		write(b, engine, "bench", key, []byte("test-value"), ts.next())
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		if err := engine.ApplyBatch([]db.Write{{
			Ident:     "bench",
			Key:       key,
			Ts:        ts.next(),
			Tombstone: true,
			Base:      engine.LatestVersion("bench", key),
		}}); err != nil {
			b.Errorf("ApplyBatch failed: %v", err)
		}
	}
}

// Benchmark for cursor scans
func benchmarkCursor(b *testing.B, engine db.RecordEngine) {

	b.Cleanup(func() {
		engine.Close()
	})

	ts := &tsSource{}

	// Prepare data
	numKeys := 1024
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		write(b, engine, "bench", key, []byte("test-value"), ts.next())
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cursor := engine.Cursor("bench", clock.TimestampMax)
		count := 0
		for _, ok := cursor.Next(); ok; _, ok = cursor.Next() {
			count++
		}
		if count != numKeys {
			b.Errorf("cursor saw %d records, expected %d", count, numKeys)
		}
	}
}

// Benchmark for a mixed read/write workload
func benchmarkMixedUsage(b *testing.B, engine db.RecordEngine) {

	b.Cleanup(func() {
		engine.Close()
	})

	ts := &tsSource{}

	// Prepare data
	numKeys := 1024
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		write(b, engine, "bench", key, []byte("test-value"), ts.next())
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			switch counter % 4 {
			case 0:
				value := []byte(fmt.Sprintf("test-value-%d", counter))
				if err := engine.ApplyBatch([]db.Write{{
					Ident: "bench",
					Key:   key,
					Value: value,
					Ts:    ts.next(),
					Base:  engine.LatestVersion("bench", key),
				}}); err != nil && !db.IsConflict(err) {
					b.Errorf("ApplyBatch failed: %v", err)
				}
			default:
				engine.Get("bench", key, clock.TimestampMax)
			}
			counter++
		}
	})
}
