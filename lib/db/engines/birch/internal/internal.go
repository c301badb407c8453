package internal

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tkv-io/tKV/lib/clock"
)

// --------------------------------------------------------------------------
// Version Type (one committed state of a record)
// --------------------------------------------------------------------------

// Version is one committed state of a record. Versions are ordered first by
// commit timestamp, then by the engine-global sequence number that broke the
// tie at publication time.
type Version struct {
	Value     []byte          // Record payload (nil for tombstones)
	Ts        clock.Timestamp // Commit timestamp (TimestampNull = untimestamped)
	Tombstone bool            // Marks a deletion version
	Seq       uint64          // Engine-global publication sequence
}

// --------------------------------------------------------------------------
// Chain Type (version history of one record)
// --------------------------------------------------------------------------

// Chain holds the version history of a single record, ordered ascending by
// (Ts, Seq). An untimestamped version carries TimestampNull and therefore
// sorts before every timestamped one, which makes it visible at every
// snapshot until a timestamped version supersedes it.
type Chain struct {
	versions []Version
}

// Insert adds a version at its (Ts, Seq) position. Out-of-order commit
// timestamps are allowed; the chain re-sorts the new version into place.
func (c *Chain) Insert(v Version) {
	i := sort.Search(len(c.versions), func(i int) bool {
		o := c.versions[i]
		if o.Ts != v.Ts {
			return o.Ts > v.Ts
		}
		return o.Seq > v.Seq
	})
	c.versions = append(c.versions, Version{})
	copy(c.versions[i+1:], c.versions[i:])
	c.versions[i] = v
}

// VisibleAt returns the newest version whose timestamp is at most the given
// snapshot timestamp. Untimestamped versions are visible at every snapshot.
func (c *Chain) VisibleAt(at clock.Timestamp) (Version, bool) {
	for i := len(c.versions) - 1; i >= 0; i-- {
		if c.versions[i].Ts <= at {
			return c.versions[i], true
		}
	}
	return Version{}, false
}

// Latest returns the newest version of the chain.
func (c *Chain) Latest() (Version, bool) {
	if len(c.versions) == 0 {
		return Version{}, false
	}
	return c.versions[len(c.versions)-1], true
}

// Len returns the number of versions in the chain.
func (c *Chain) Len() int {
	return len(c.versions)
}

// TruncateBelow discards history that no snapshot at or above the given
// floor can observe: everything older than the newest version visible at
// the floor. The visible version itself is kept as the base of the chain.
func (c *Chain) TruncateBelow(floor clock.Timestamp) {
	base := -1
	for i := len(c.versions) - 1; i >= 0; i-- {
		if c.versions[i].Ts <= floor {
			base = i
			break
		}
	}
	if base <= 0 {
		return
	}
	c.versions = append([]Version(nil), c.versions[base:]...)
}

// --------------------------------------------------------------------------
// IdentStore Type (all records of one storage object)
// --------------------------------------------------------------------------

// IdentStore holds the record chains of a single ident. The mutex guards
// both the chain map and the insertion-order slice; batch publication locks
// every touched IdentStore in sorted ident order to stay deadlock-free.
type IdentStore struct {
	Mu      sync.RWMutex
	Records map[string]*Chain
	Order   []string // Record keys in first-insertion order
}

// NewIdentStore creates an empty IdentStore.
func NewIdentStore() *IdentStore {
	return &IdentStore{Records: make(map[string]*Chain)}
}

// Chain returns the record's chain, creating it (and registering the key in
// insertion order) if needed. Callers must hold the write lock.
func (s *IdentStore) Chain(key string) *Chain {
	c, ok := s.Records[key]
	if !ok {
		c = &Chain{}
		s.Records[key] = c
		s.Order = append(s.Order, key)
	}
	return c
}

// --------------------------------------------------------------------------
// Shard Type (partition of the ident space)
// --------------------------------------------------------------------------

// Shard represents a partition of the ident space. Each shard has its own
// independent concurrent map of IdentStores.
type Shard struct {
	Idents *xsync.MapOf[string, *IdentStore]
}

// NewShard creates a new empty shard.
func NewShard() *Shard {
	return &Shard{Idents: xsync.NewMapOf[string, *IdentStore]()}
}

// GetShard returns the appropriate shard for a given ident hash.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard(hash uint64, shards []*Shard) *Shard {
	// Shift right by 7 bits to use higher-quality bits for distribution
	return shards[(hash>>7)%uint64(len(shards))]
}
