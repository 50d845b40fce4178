package routing

import "sync"

// SessionLocks serializes work per session key. Concurrent messages for the
// same (business, phone, flow) run one at a time; unrelated sessions proceed
// in parallel. Entries are reference counted and removed when idle so the map
// does not grow with every phone number ever seen.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewSessionLocks creates an empty lock set.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[string]*lockEntry)}
}

// Lock acquires the lock for key and returns its release function.
func (l *SessionLocks) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
