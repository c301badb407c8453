// Package lockmgr implements an in-process locking mechanism for
// coordinating exclusive access to shared resources, keyed by arbitrary
// strings (typically namespace names).
//
// The lockmgr has no external dependencies and no persistent state. Locks
// are created lazily on first acquisition and live for the lifetime of the
// manager.
//
// Core Functionality:
//   - Blocking and non-blocking lockmgr acquisition
//   - Ownership verification on release
//
// Implementation Approach:
//
//	Each key maps to one mutex that carries the exclusivity. A successful
//	acquisition returns a randomly generated owner ID that identifies the
//	lockmgr holder.
//
//	- Safe Release: The ReleaseLock operation first verifies that the
//	  requester is the legitimate owner of the lockmgr by comparing owner IDs
//	  before unlocking. A release with a foreign owner ID fails and leaves
//	  the lockmgr held.
//
//	- Cross-Goroutine Handoff: The owner ID, not the goroutine, identifies
//	  the holder, so a lockmgr acquired in one goroutine may be released in
//	  another as long as the owner ID is passed along.
//
// Thread Safety:
//
//	All operations are safe for concurrent use from multiple goroutines.
package lockmgr
