package routing

import (
	"sync"
	"testing"
)

func TestSessionLocksSerializesSameKey(t *testing.T) {
	locks := NewSessionLocks()

	var mu sync.Mutex
	counter := 0
	maxSeen := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("biz|+549|customer")
			defer unlock()
			mu.Lock()
			counter++
			if counter > maxSeen {
				maxSeen = counter
			}
			mu.Unlock()
			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestSessionLocksReleasesEntries(t *testing.T) {
	locks := NewSessionLocks()

	unlock := locks.Lock("key-a")
	unlock()

	locks.mu.Lock()
	n := len(locks.locks)
	locks.mu.Unlock()
	if n != 0 {
		t.Errorf("lock map has %d entries after release, want 0", n)
	}
}

func TestSessionLocksIndependentKeys(t *testing.T) {
	locks := NewSessionLocks()

	unlockA := locks.Lock("key-a")
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("key-b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
