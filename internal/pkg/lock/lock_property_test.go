package lock

import (
	"sync"
	"testing"

	"pgregory.net/rapid"
)

// TestWithLockMutualExclusion checks that concurrent WithLock calls for
// the same chat never interleave: a shared counter incremented
// non-atomically under the lock must end up exact.
func TestWithLockMutualExclusion(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chatID := rapid.Int64Range(1, 1000).Draw(t, "chatID")
		workers := rapid.IntRange(2, 8).Draw(t, "workers")
		iterations := rapid.IntRange(1, 50).Draw(t, "iterations")

		cl := NewChatLock()
		counter := 0

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < iterations; i++ {
					_ = cl.WithLock(chatID, func() error {
						counter++
						return nil
					})
				}
			}()
		}
		wg.Wait()

		if counter != workers*iterations {
			t.Fatalf("lost updates: got %d, want %d", counter, workers*iterations)
		}
	})
}

// TestDifferentChatsIndependent checks that locking one chat does not
// block another chat's lock.
func TestDifferentChatsIndependent(t *testing.T) {
	cl := NewChatLock()

	cl.Lock(1)
	defer cl.Unlock(1)

	if !cl.TryLock(2) {
		t.Fatal("lock on chat 1 blocked chat 2")
	}
	cl.Unlock(2)
}

// TestTryLockWhileHeld checks TryLock fails while the chat is locked
// and succeeds after release.
func TestTryLockWhileHeld(t *testing.T) {
	cl := NewChatLock()

	cl.Lock(7)
	if cl.TryLock(7) {
		t.Fatal("TryLock succeeded while lock held")
	}
	if !cl.IsLocked(7) {
		t.Fatal("IsLocked reported free while lock held")
	}
	cl.Unlock(7)

	if !cl.TryLock(7) {
		t.Fatal("TryLock failed on free lock")
	}
	cl.Unlock(7)
}
