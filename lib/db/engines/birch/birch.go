package birch

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db"
	"github.com/tkv-io/tKV/lib/db/engines/birch/internal"
	"github.com/tkv-io/tKV/lib/db/util"
)

// --------------------------------------------------------------------------
// Core Birch engine structure
// --------------------------------------------------------------------------

// birchImpl implements db.RecordEngine with per-record version chains,
// sharded by ident
type birchImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	seq       atomic.Uint64     // Engine-global publication sequence
	oldest    atomic.Uint64     // History retention floor
}

// DBOptions configures the birchImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default birchImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewBirchDB creates a new BirchDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewBirchDB(opts *DBOptions) db.RecordEngine {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	// Generate a seed for this birchImpl instance
	seed := util.GenerateSeed()

	// Create shards
	shards := make([]*internal.Shard, opts.NumShards)
	for i := 0; i < opts.NumShards; i++ {
		shards[i] = internal.NewShard()
	}

	return &birchImpl{
		numShards: opts.NumShards,
		seed:      seed,
		shards:    shards,
	}
}

// shardFor returns the shard responsible for an ident
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (birch *birchImpl) shardFor(ident string) *internal.Shard {
	return internal.GetShard(uint64(util.HashString(ident, birch.seed)), birch.shards)
}

// store returns the IdentStore of an ident, creating it if create is set
func (birch *birchImpl) store(ident string, create bool) (*internal.IdentStore, bool) {
	shard := birch.shardFor(ident)
	if create {
		s, _ := shard.Idents.LoadOrCompute(ident, internal.NewIdentStore)
		return s, true
	}
	return shard.Idents.Load(ident)
}

// --------------------------------------------------------------------------
// RecordEngine Interface Methods - Write Operations
// --------------------------------------------------------------------------

// ApplyBatch validates and publishes a set of versioned writes atomically.
//
// Validation checks every write's Base against the record's current version
// sequence before any write is applied. A stale Base fails the whole batch
// with a Conflict error and leaves the engine untouched. Several writes to
// the same record within one batch validate against the pre-batch state
// once and then apply in order.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// It locks every touched IdentStore in sorted ident order for the duration
// of the batch.
func (birch *birchImpl) ApplyBatch(writes []db.Write) error {
	if len(writes) == 0 {
		return nil
	}

	// Group writes by ident, preserving per-ident order
	grouped := make(map[string][]db.Write)
	for _, w := range writes {
		grouped[w.Ident] = append(grouped[w.Ident], w)
	}

	// Lock idents in sorted order to avoid deadlocks between batches
	idents := make([]string, 0, len(grouped))
	for ident := range grouped {
		idents = append(idents, ident)
	}
	sort.Strings(idents)

	stores := make(map[string]*internal.IdentStore, len(idents))
	for _, ident := range idents {
		s, _ := birch.store(ident, true)
		s.Mu.Lock()
		stores[ident] = s
	}
	defer func() {
		for i := len(idents) - 1; i >= 0; i-- {
			stores[idents[i]].Mu.Unlock()
		}
	}()

	// Validate all writes against the pre-batch state
	checked := make(map[[2]string]bool, len(writes))
	for _, w := range writes {
		id := [2]string{w.Ident, w.Key}
		if checked[id] {
			continue
		}
		checked[id] = true

		var current uint64
		if c, ok := stores[w.Ident].Records[w.Key]; ok {
			if v, ok := c.Latest(); ok {
				current = v.Seq
			}
		}
		if current != w.Base {
			return db.Errorf(db.CodeConflict,
				"write conflict on %s/%s: base version %d, current %d",
				w.Ident, w.Key, w.Base, current)
		}
	}

	// Publish all writes
	for _, w := range writes {
		value := make([]byte, len(w.Value))
		copy(value, w.Value)
		if w.Tombstone {
			value = nil
		}

		stores[w.Ident].Chain(w.Key).Insert(internal.Version{
			Value:     value,
			Ts:        w.Ts,
			Tombstone: w.Tombstone,
			Seq:       birch.seq.Add(1),
		})
	}

	return nil
}

// DropIdent physically discards all record versions of an ident.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (birch *birchImpl) DropIdent(ident string) {
	birch.shardFor(ident).Idents.Delete(ident)
}

// --------------------------------------------------------------------------
// RecordEngine Interface Methods - Query Operations
// --------------------------------------------------------------------------

// Get retrieves the record version visible at the given timestamp.
// The returned value is a copy of the stored data and therefore safe to use
// and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (birch *birchImpl) Get(ident, key string, at clock.Timestamp) ([]byte, bool) {
	s, ok := birch.store(ident, false)
	if !ok {
		return nil, false
	}

	s.Mu.RLock()
	defer s.Mu.RUnlock()

	c, ok := s.Records[key]
	if !ok {
		return nil, false
	}

	v, ok := c.VisibleAt(resolveReadTimestamp(at))
	if !ok || v.Tombstone {
		return nil, false
	}

	value := make([]byte, len(v.Value))
	copy(value, v.Value)
	return value, true
}

// Cursor returns a cursor over the records visible at the given timestamp,
// in record insertion order. The cursor iterates a snapshot taken at call
// time; later writes do not affect it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (birch *birchImpl) Cursor(ident string, at clock.Timestamp) db.Cursor {
	s, ok := birch.store(ident, false)
	if !ok {
		return &sliceCursor{}
	}

	readTs := resolveReadTimestamp(at)

	s.Mu.RLock()
	defer s.Mu.RUnlock()

	records := make([]db.Record, 0, len(s.Order))
	for _, key := range s.Order {
		v, ok := s.Records[key].VisibleAt(readTs)
		if !ok || v.Tombstone {
			continue
		}
		value := make([]byte, len(v.Value))
		copy(value, v.Value)
		records = append(records, db.Record{Key: key, Value: value})
	}

	return &sliceCursor{records: records}
}

// LatestVersion returns the current version sequence of a record.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (birch *birchImpl) LatestVersion(ident, key string) uint64 {
	s, ok := birch.store(ident, false)
	if !ok {
		return 0
	}

	s.Mu.RLock()
	defer s.Mu.RUnlock()

	c, ok := s.Records[key]
	if !ok {
		return 0
	}
	v, ok := c.Latest()
	if !ok {
		return 0
	}
	return v.Seq
}

// resolveReadTimestamp maps the null timestamp to a latest-version read
func resolveReadTimestamp(at clock.Timestamp) clock.Timestamp {
	if at.IsNull() {
		return clock.TimestampMax
	}
	return at
}

// sliceCursor iterates a pre-collected snapshot of records
type sliceCursor struct {
	records []db.Record
	pos     int
}

func (c *sliceCursor) Next() (db.Record, bool) {
	if c.pos >= len(c.records) {
		return db.Record{}, false
	}
	r := c.records[c.pos]
	c.pos++
	return r, true
}

// --------------------------------------------------------------------------
// History Retention
// --------------------------------------------------------------------------

// SetOldestTimestamp raises the history retention floor and discards version
// history no snapshot at or above the floor can observe. Lowering the floor
// is ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (birch *birchImpl) SetOldestTimestamp(ts clock.Timestamp) {
	// Only update if the new floor is greater
	for {
		curr := birch.oldest.Load()
		if uint64(ts) <= curr {
			return
		}
		if birch.oldest.CompareAndSwap(curr, uint64(ts)) {
			break
		}
	}

	// Truncate chains below the new floor
	for _, shard := range birch.shards {
		shard.Idents.Range(func(_ string, s *internal.IdentStore) bool {
			s.Mu.Lock()
			for _, c := range s.Records {
				c.TruncateBelow(ts)
			}
			s.Mu.Unlock()
			return true
		})
	}
}

// OldestTimestamp returns the current retention floor.
func (birch *birchImpl) OldestTimestamp() clock.Timestamp {
	return clock.Timestamp(birch.oldest.Load())
}

// --------------------------------------------------------------------------
// RecordEngine Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the engine
func (birch *birchImpl) GetInfo() db.EngineInfo {

	// create a size histogram for the info
	histogram := util.NewSizeHistogram()
	wg := sync.WaitGroup{}
	wg.Add(len(birch.shards))

	// more stats
	mu := sync.Mutex{}
	identCount := 0
	recordCount := 0
	versionCount := 0
	shardSizes := make([]float64, len(birch.shards))

	// concurrently collect stats from all shards
	for shardIndex, shard := range birch.shards {
		go func(i int, sh *internal.Shard) {
			defer wg.Done()
			idents := 0
			records := 0
			versions := 0
			sh.Idents.Range(func(_ string, s *internal.IdentStore) bool {
				s.Mu.RLock()
				idents++
				records += len(s.Records)
				for _, c := range s.Records {
					versions += c.Len()
					if v, ok := c.Latest(); ok {
						histogram.AddSample(len(v.Value))
					}
				}
				s.Mu.RUnlock()
				return true
			})

			// stats lock
			mu.Lock()
			defer mu.Unlock()

			identCount += idents
			recordCount += records
			versionCount += versions
			shardSizes[i] = float64(idents)
		}(shardIndex, shard)
	}

	// wait for all shards to finish
	wg.Wait()

	// Metadata for this specific engine implementation
	meta := &struct {
		Sequence          uint64                 `json:"sequence"`
		OldestTimestamp   uint64                 `json:"oldest_timestamp"`
		IdentCount        int                    `json:"ident_count"`
		RecordCount       int                    `json:"record_count"`
		VersionCount      int                    `json:"version_count"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		Info              string                 `json:"info"`
	}{
		Sequence:          birch.seq.Load(),
		OldestTimestamp:   birch.oldest.Load(),
		IdentCount:        identCount,
		RecordCount:       recordCount,
		VersionCount:      versionCount,
		ShardCount:        len(birch.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		Info:              "SizeBytes is an estimate based on latest-version payloads only.",
	}

	return db.EngineInfo{
		SizeBytes:  recordCount * (histogram.MedianEstimate() + 48),
		EngineType: db.ImplBirch,
		SupportedFeatures: []db.Feature{
			db.FeatureApplyBatch, db.FeatureSnapshotReads,
			db.FeatureDropIdent, db.FeatureOldestTimestamp,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific engine feature
func (birch *birchImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureApplyBatch |
		db.FeatureSnapshotReads |
		db.FeatureDropIdent |
		db.FeatureOldestTimestamp
	return supportedFeatures&feature == feature
}

// Close releases the engine. The in-memory engine has no background workers
// to stop.
func (birch *birchImpl) Close() error {
	return nil
}
