package lockmgr

import (
	"sync"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	mgr := NewLockManager()

	ownerID, err := mgr.AcquireLock("unittests.coll")
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if len(ownerID) == 0 {
		t.Fatalf("Expected a non-empty owner ID")
	}

	ok, err := mgr.ReleaseLock("unittests.coll", ownerID)
	if err != nil || !ok {
		t.Fatalf("ReleaseLock failed: ok=%v err=%v", ok, err)
	}
}

func TestTryAcquireContention(t *testing.T) {
	mgr := NewLockManager()

	ownerID, err := mgr.AcquireLock("unittests.coll")
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	// a second acquisition of the same key fails without blocking
	ok, _, err := mgr.TryAcquireLock("unittests.coll")
	if err != nil {
		t.Fatalf("TryAcquireLock failed: %v", err)
	}
	if ok {
		t.Errorf("TryAcquireLock should fail while the lock is held")
	}

	// other keys are unaffected
	ok, otherID, err := mgr.TryAcquireLock("unittests.other")
	if err != nil || !ok {
		t.Fatalf("TryAcquireLock on a free key failed: ok=%v err=%v", ok, err)
	}
	if _, err := mgr.ReleaseLock("unittests.other", otherID); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}

	// after release, the key can be acquired again
	if _, err := mgr.ReleaseLock("unittests.coll", ownerID); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	ok, _, err = mgr.TryAcquireLock("unittests.coll")
	if err != nil || !ok {
		t.Errorf("Expected acquisition after release, ok=%v err=%v", ok, err)
	}
}

func TestReleaseWithForeignOwnerID(t *testing.T) {
	mgr := NewLockManager()

	ownerID, err := mgr.AcquireLock("unittests.coll")
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	// a foreign owner ID must not release the lock
	ok, err := mgr.ReleaseLock("unittests.coll", []byte("not-the-owner"))
	if err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if ok {
		t.Errorf("ReleaseLock with a foreign owner ID should fail")
	}

	// the real owner still can
	if ok, err := mgr.ReleaseLock("unittests.coll", ownerID); err != nil || !ok {
		t.Errorf("ReleaseLock by the owner failed: ok=%v err=%v", ok, err)
	}

	// releasing a lock that never existed succeeds
	if ok, err := mgr.ReleaseLock("unittests.unknown", ownerID); err != nil || !ok {
		t.Errorf("ReleaseLock on unknown key should succeed: ok=%v err=%v", ok, err)
	}
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	mgr := NewLockManager()

	ownerID, err := mgr.AcquireLock("unittests.coll")
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	acquired := make(chan []byte)
	go func() {
		id, err := mgr.AcquireLock("unittests.coll")
		if err != nil {
			t.Errorf("AcquireLock failed: %v", err)
		}
		acquired <- id
	}()

	select {
	case <-acquired:
		t.Fatalf("AcquireLock should block while the lock is held")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := mgr.ReleaseLock("unittests.coll", ownerID); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}

	select {
	case id := <-acquired:
		if _, err := mgr.ReleaseLock("unittests.coll", id); err != nil {
			t.Fatalf("ReleaseLock failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("AcquireLock should proceed after release")
	}
}

func TestConcurrentExclusion(t *testing.T) {
	mgr := NewLockManager()

	var (
		wg      sync.WaitGroup
		counter int
	)

	const goroutines = 16
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ownerID, err := mgr.AcquireLock("counter")
				if err != nil {
					t.Errorf("AcquireLock failed: %v", err)
					return
				}
				counter++
				if _, err := mgr.ReleaseLock("counter", ownerID); err != nil {
					t.Errorf("ReleaseLock failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*50 {
		t.Errorf("Expected counter %d, got %d", goroutines*50, counter)
	}
}
