package lockmgr

import (
	"bytes"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// nsLock is one exclusive lockmgr. The mutex carries the exclusivity; owner
// records who holds it so releases can be verified.
type nsLock struct {
	mu      sync.Mutex
	ownerMu sync.Mutex
	owner   []byte
}

type lockMgmImpl struct {
	locks *xsync.MapOf[string, *nsLock]
}

// NewLockManager creates an in-process lockmgr provider. Locks are keyed by
// arbitrary strings and created lazily on first acquisition.
func NewLockManager() ILockManager {
	return &lockMgmImpl{
		locks: xsync.NewMapOf[string, *nsLock](),
	}
}

func (lp *lockMgmImpl) lockFor(key string) *nsLock {
	l, _ := lp.locks.LoadOrCompute(key, func() *nsLock {
		return &nsLock{}
	})
	return l
}

func (lp *lockMgmImpl) AcquireLock(key string) ([]byte, error) {
	// Generate owner ID (256 bit random value)
	ownerID, err := generateOwnerID()
	if err != nil {
		return nil, err
	}

	l := lp.lockFor(key)
	l.mu.Lock()

	l.ownerMu.Lock()
	l.owner = ownerID
	l.ownerMu.Unlock()

	return ownerID, nil
}

func (lp *lockMgmImpl) TryAcquireLock(key string) (bool, []byte, error) {
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	l := lp.lockFor(key)
	if !l.mu.TryLock() {
		// Lock is held BY SOMEONE ELSE
		return false, nil, nil
	}

	l.ownerMu.Lock()
	l.owner = ownerID
	l.ownerMu.Unlock()

	return true, ownerID, nil
}

func (lp *lockMgmImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	l, ok := lp.locks.Load(key)
	if !ok {
		// The lockmgr never existed, nothing to release
		return true, nil
	}

	// Check if the lockmgr is owned by us
	l.ownerMu.Lock()
	owned := l.owner != nil && bytes.Equal(l.owner, ownerID)
	if owned {
		l.owner = nil
	}
	l.ownerMu.Unlock()

	if !owned {
		return false, nil
	}

	l.mu.Unlock()
	return true, nil
}
