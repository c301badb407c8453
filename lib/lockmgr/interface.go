package lockmgr

// ILockManager defines the interface for a lockmgr provider.
type ILockManager interface {
	// AcquireLock acquires the exclusive lockmgr for the given key, blocking
	// until it is available.
	// Returns an owner ID that must be presented on release, and an error if any.
	AcquireLock(key string) (ownerID []byte, err error)

	// TryAcquireLock acquires the exclusive lockmgr for the given key without
	// blocking.
	// Returns a boolean indicating whether the lockmgr was acquired, an owner ID,
	// and an error if any.
	TryAcquireLock(key string) (ok bool, ownerID []byte, err error)

	// ReleaseLock releases the lockmgr for the given key.
	// Returns a boolean indicating whether the lockmgr was released, and an error
	// if any. Releasing with a foreign owner ID fails.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)
}
